package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/service/access"
)

type Service struct {
	store  repo.Store
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

func New(store repo.Store, logger *slog.Logger) *Service {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, newID: uuid.NewString, now: time.Now}
}

type StatusInput struct {
	BoardID   string
	Name      string
	Label     string
	Color     string
	Position  *int
	IsInitial bool
	IsFinal   bool
}

// StatusPatch changes presentation and flags of a status. Nil fields are kept.
type StatusPatch struct {
	Label     *string
	Color     *string
	IsInitial *bool
	IsFinal   *bool
}

type TransitionInput struct {
	BoardID      string
	FromStatusID string
	ToStatusID   string
	Name         string
	Guards       []domain.Guard
	Automations  []domain.Automation
}

// Load reads a board's workflow through r. Engines call it inside their own
// unit of work.
func Load(ctx context.Context, r repo.Repos, boardID string) (domain.Workflow, error) {
	statuses, err := r.Statuses.ListStatuses(ctx, boardID)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("list statuses: %w", err)
	}
	transitions, err := r.Transitions.ListTransitions(ctx, boardID)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("list transitions: %w", err)
	}
	return domain.NewWorkflow(boardID, statuses, transitions), nil
}

func (s *Service) Snapshot(ctx context.Context, boardID string) (domain.Workflow, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return domain.Workflow{}, domain.Invalid("board_id", "board id is required")
	}
	var w domain.Workflow
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		w, err = Load(ctx, r, boardID)
		return err
	})
	return w, err
}

func (s *Service) ListStatuses(ctx context.Context, actor domain.Actor, boardID string) ([]domain.Status, error) {
	var out []domain.Status
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, boardID, auth.RoleViewer); err != nil {
			return err
		}
		w, err := Load(ctx, r, boardID)
		if err != nil {
			return err
		}
		out = w.Statuses
		return nil
	})
	return out, err
}

func (s *Service) ListTransitions(ctx context.Context, actor domain.Actor, boardID string) ([]domain.Transition, error) {
	var out []domain.Transition
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, boardID, auth.RoleViewer); err != nil {
			return err
		}
		w, err := Load(ctx, r, boardID)
		if err != nil {
			return err
		}
		out = w.Transitions
		return nil
	})
	return out, err
}

func (s *Service) CreateStatus(ctx context.Context, actor domain.Actor, in StatusInput) (domain.Status, error) {
	in.BoardID = strings.TrimSpace(in.BoardID)
	in.Name = strings.TrimSpace(in.Name)
	in.Label = strings.TrimSpace(in.Label)
	in.Color = strings.TrimSpace(in.Color)
	if in.BoardID == "" {
		return domain.Status{}, domain.Invalid("board_id", "board id is required")
	}
	if in.Label == "" {
		in.Label = in.Name
	}

	var created domain.Status
	err := s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, in.BoardID, auth.RoleAdmin); err != nil {
			return err
		}
		if err := domain.ValidateStatusName(in.Name); err != nil {
			return err
		}
		w, err := Load(ctx, r, in.BoardID)
		if err != nil {
			return err
		}
		status, err := s.newStatus(w, actor, in)
		if err != nil {
			return err
		}
		if err := r.Statuses.CreateStatus(ctx, status); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return domain.Invalid("name", "status name or position already exists on this board")
			}
			return fmt.Errorf("create status: %w", err)
		}
		created = status
		return nil
	})
	if err != nil {
		return domain.Status{}, err
	}
	s.logger.Info("workflow status created", "board_id", created.BoardID, "status_id", created.ID, "name", created.Name, "actor", actor.Subject)
	return created, nil
}

// newStatus checks (board,name) and (board,position) uniqueness against w.
func (s *Service) newStatus(w domain.Workflow, actor domain.Actor, in StatusInput) (domain.Status, error) {
	if _, exists := w.StatusByName(in.Name); exists {
		return domain.Status{}, domain.Invalid("name", fmt.Sprintf("status %q already exists on this board", in.Name))
	}
	position := w.NextPosition()
	if in.Position != nil {
		position = *in.Position
		for _, existing := range w.Statuses {
			if existing.Position == position {
				return domain.Status{}, domain.Invalid("position", fmt.Sprintf("position %d is taken by status %q", position, existing.Name))
			}
		}
	}
	status := domain.Status{
		ID:        s.newID(),
		BoardID:   in.BoardID,
		Name:      in.Name,
		Label:     in.Label,
		Color:     in.Color,
		Position:  position,
		IsInitial: in.IsInitial,
		IsFinal:   in.IsFinal,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
		CreatedBy: actor.Subject,
	}
	if err := status.Validate(); err != nil {
		return domain.Status{}, err
	}
	return status, nil
}

func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, boardID, statusID string, patch StatusPatch) (domain.Status, error) {
	return s.modifyStatus(ctx, actor, boardID, statusID, func(status *domain.Status) error {
		if patch.Label != nil {
			status.Label = strings.TrimSpace(*patch.Label)
		}
		if patch.Color != nil {
			status.Color = strings.TrimSpace(*patch.Color)
		}
		if patch.IsInitial != nil {
			status.IsInitial = *patch.IsInitial
		}
		if patch.IsFinal != nil {
			status.IsFinal = *patch.IsFinal
		}
		return status.Validate()
	})
}

// DeactivateStatus hides a status from new transitions. Tasks already in it
// keep their reference and history keeps its name.
func (s *Service) DeactivateStatus(ctx context.Context, actor domain.Actor, boardID, statusID string) (domain.Status, error) {
	return s.modifyStatus(ctx, actor, boardID, statusID, func(status *domain.Status) error {
		status.IsActive = false
		return nil
	})
}

func (s *Service) modifyStatus(ctx context.Context, actor domain.Actor, boardID, statusID string, mutate func(*domain.Status) error) (domain.Status, error) {
	boardID = strings.TrimSpace(boardID)
	statusID = strings.TrimSpace(statusID)
	var updated domain.Status
	err := s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, boardID, auth.RoleAdmin); err != nil {
			return err
		}
		status, err := r.Statuses.GetStatus(ctx, boardID, statusID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.NotFound("status", statusID)
			}
			return fmt.Errorf("get status: %w", err)
		}
		if err := mutate(&status); err != nil {
			return err
		}
		if err := r.Statuses.UpdateStatus(ctx, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		updated = status
		return nil
	})
	if err != nil {
		return domain.Status{}, err
	}
	s.logger.Info("workflow status updated", "board_id", boardID, "status_id", statusID, "active", updated.IsActive, "actor", actor.Subject)
	return updated, nil
}

func (s *Service) CreateTransition(ctx context.Context, actor domain.Actor, in TransitionInput) (domain.Transition, error) {
	transition := domain.Transition{
		ID:           s.newID(),
		BoardID:      strings.TrimSpace(in.BoardID),
		FromStatusID: strings.TrimSpace(in.FromStatusID),
		ToStatusID:   strings.TrimSpace(in.ToStatusID),
		Name:         strings.TrimSpace(in.Name),
		Guards:       normalizeGuards(in.Guards),
		Automations:  normalizeAutomations(in.Automations),
		CreatedAt:    s.now().UTC(),
		CreatedBy:    actor.Subject,
	}
	if transition.BoardID == "" {
		return domain.Transition{}, domain.Invalid("board_id", "board id is required")
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, transition.BoardID, auth.RoleAdmin); err != nil {
			return err
		}
		if err := transition.Validate(); err != nil {
			return err
		}
		w, err := Load(ctx, r, transition.BoardID)
		if err != nil {
			return err
		}
		if err := checkEdge(ctx, r, w, transition); err != nil {
			return err
		}
		if err := r.Transitions.CreateTransition(ctx, transition); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return domain.Conflict("a transition between these statuses already exists")
			}
			return fmt.Errorf("create transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Transition{}, err
	}
	s.logger.Info("workflow transition created",
		"board_id", transition.BoardID,
		"transition_id", transition.ID,
		"from_status_id", transition.FromStatusID,
		"to_status_id", transition.ToStatusID,
		"actor", actor.Subject,
	)
	return transition, nil
}

// checkEdge verifies both endpoints belong to the board, the pair is unused,
// and move_to_list targets are lists of the same board.
func checkEdge(ctx context.Context, r repo.Repos, w domain.Workflow, t domain.Transition) error {
	for _, id := range []string{t.FromStatusID, t.ToStatusID} {
		status, ok := w.StatusByID(id)
		if !ok {
			return domain.NotFound("status", id)
		}
		if !status.IsActive {
			return domain.Invalid("status", fmt.Sprintf("status %q is inactive", status.Name))
		}
	}
	if _, exists := w.Edge(t.FromStatusID, t.ToStatusID); exists {
		return domain.Conflict("a transition between these statuses already exists")
	}
	for _, a := range t.Automations {
		if a.Kind != domain.AutomationMoveToList {
			continue
		}
		list, err := r.Lists.GetList(ctx, a.ListID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Invalid("automations.list_id", fmt.Sprintf("list %q does not exist", a.ListID))
			}
			return fmt.Errorf("get list: %w", err)
		}
		if list.BoardID != t.BoardID {
			return domain.Invalid("automations.list_id", fmt.Sprintf("list %q belongs to another board", a.ListID))
		}
	}
	return nil
}

func (s *Service) DeleteTransition(ctx context.Context, actor domain.Actor, boardID, transitionID string) error {
	boardID = strings.TrimSpace(boardID)
	transitionID = strings.TrimSpace(transitionID)
	err := s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, boardID, auth.RoleAdmin); err != nil {
			return err
		}
		if err := r.Transitions.DeleteTransition(ctx, boardID, transitionID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.NotFound("transition", transitionID)
			}
			return fmt.Errorf("delete transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("workflow transition deleted", "board_id", boardID, "transition_id", transitionID, "actor", actor.Subject)
	return nil
}

func normalizeGuards(in []domain.Guard) []domain.Guard {
	out := make([]domain.Guard, 0, len(in))
	for _, g := range in {
		g.Kind = domain.GuardKind(strings.ToLower(strings.TrimSpace(string(g.Kind))))
		if len(g.Roles) > 0 {
			roles := make([]string, 0, len(g.Roles))
			for _, role := range g.Roles {
				roles = append(roles, strings.ToLower(strings.TrimSpace(role)))
			}
			g.Roles = roles
		}
		out = append(out, g)
	}
	return out
}

func normalizeAutomations(in []domain.Automation) []domain.Automation {
	out := make([]domain.Automation, 0, len(in))
	for _, a := range in {
		a.Kind = domain.AutomationKind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
		a.ListID = strings.TrimSpace(a.ListID)
		out = append(out, a)
	}
	return out
}
