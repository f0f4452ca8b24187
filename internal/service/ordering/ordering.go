package ordering

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/platform/locks"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/service/access"
)

const defaultLockWait = 5 * time.Second

type Service struct {
	store  repo.Store
	locker locks.Locker
	logger *slog.Logger
	tracer trace.Tracer
}

// New returns an ordering service. A nil locker falls back to in-process locks.
func New(store repo.Store, locker locks.Locker, logger *slog.Logger) *Service {
	if store == nil {
		return nil
	}
	if locker == nil {
		locker = locks.NewLocal(defaultLockWait)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		locker: locker,
		logger: logger,
		tracer: otel.Tracer("github.com/taskflow-labs/taskflow/internal/service/ordering"),
	}
}

type MoveRequest struct {
	TaskID         string
	TargetListID   string
	TargetPosition int
}

// Move places a task at a position of the target list, which may be the
// list it is already in.
func (s *Service) Move(ctx context.Context, actor domain.Actor, req MoveRequest) (Placement, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.Move", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("list.target", req.TargetListID),
		attribute.Int("position.target", req.TargetPosition),
	))
	defer span.End()

	if req.TargetPosition < 0 {
		return Placement{}, endSpan(span, domain.Invalid("targetPosition", "position must be >= 0"))
	}
	target := strings.TrimSpace(req.TargetListID)
	if target == "" {
		return Placement{}, endSpan(span, domain.Invalid("targetListId", "target list id is required"))
	}

	var out Placement
	err := s.withTask(ctx, req.TaskID, []string{target}, func(ctx context.Context, r repo.Repos, task domain.Task) error {
		if err := authorize(ctx, r, actor, task); err != nil {
			return err
		}
		list, err := LoadList(ctx, r, target)
		if err != nil {
			return err
		}
		if list.ID == task.ListID {
			out, err = MoveWithinListTx(ctx, r, task, req.TargetPosition)
		} else {
			out, err = MoveAcrossListsTx(ctx, r, task, list, req.TargetPosition)
		}
		return err
	})
	if err != nil {
		return Placement{}, endSpan(span, err)
	}
	s.logMove(actor, out)
	return out, nil
}

// MoveWithinList reorders a task inside its current list.
func (s *Service) MoveWithinList(ctx context.Context, actor domain.Actor, taskID string, position int) (Placement, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.MoveWithinList", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	var out Placement
	err := s.withTask(ctx, taskID, nil, func(ctx context.Context, r repo.Repos, task domain.Task) error {
		if err := authorize(ctx, r, actor, task); err != nil {
			return err
		}
		var err error
		out, err = MoveWithinListTx(ctx, r, task, position)
		return err
	})
	if err != nil {
		return Placement{}, endSpan(span, err)
	}
	s.logMove(actor, out)
	return out, nil
}

// MoveAcrossLists moves a task into another list of the same board.
func (s *Service) MoveAcrossLists(ctx context.Context, actor domain.Actor, taskID, targetListID string, position int) (Placement, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.MoveAcrossLists", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("list.target", targetListID),
	))
	defer span.End()

	targetListID = strings.TrimSpace(targetListID)
	var out Placement
	err := s.withTask(ctx, taskID, []string{targetListID}, func(ctx context.Context, r repo.Repos, task domain.Task) error {
		if err := authorize(ctx, r, actor, task); err != nil {
			return err
		}
		list, err := LoadList(ctx, r, targetListID)
		if err != nil {
			return err
		}
		if list.ID == task.ListID {
			return domain.Invalid("targetListId", "task is already in this list")
		}
		out, err = MoveAcrossListsTx(ctx, r, task, list, position)
		return err
	})
	if err != nil {
		return Placement{}, endSpan(span, err)
	}
	s.logMove(actor, out)
	return out, nil
}

// BatchMoveToList appends the tasks to the target list in input order.
func (s *Service) BatchMoveToList(ctx context.Context, actor domain.Actor, taskIDs []string, targetListID string) ([]Placement, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.BatchMoveToList", trace.WithAttributes(
		attribute.Int("batch.size", len(taskIDs)),
		attribute.String("list.target", targetListID),
	))
	defer span.End()

	ids, err := NormalizeIDs(taskIDs)
	if err != nil {
		return nil, endSpan(span, err)
	}
	targetListID = strings.TrimSpace(targetListID)

	sources, err := s.currentLists(ctx, ids)
	if err != nil {
		return nil, endSpan(span, err)
	}
	release, err := s.LockLists(ctx, append(sources, targetListID)...)
	if err != nil {
		return nil, endSpan(span, err)
	}
	defer release()

	var out []Placement
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		list, err := LoadList(ctx, r, targetListID)
		if err != nil {
			return err
		}
		if _, err := access.Require(ctx, r.Members, actor, list.BoardID, auth.RoleEditor); err != nil {
			return forTasks(err, ids)
		}
		out, err = BatchMoveTx(ctx, r, ids, list)
		return err
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	s.logger.Info("tasks moved", "count", len(out), "list_id", targetListID, "actor", actor.Subject)
	return out, nil
}

// Detach takes a task out of its list ordering.
func (s *Service) Detach(ctx context.Context, actor domain.Actor, taskID string) error {
	ctx, span := s.tracer.Start(ctx, "ordering.Detach", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	err := s.withTask(ctx, taskID, nil, func(ctx context.Context, r repo.Repos, task domain.Task) error {
		if err := authorize(ctx, r, actor, task); err != nil {
			return err
		}
		return DetachTx(ctx, r, task)
	})
	return endSpan(span, err)
}

// AppendToList moves a task to the end of listID on behalf of the system.
// It is the move_to_list automation and performs no role check.
func (s *Service) AppendToList(ctx context.Context, taskID, listID string) error {
	ctx, span := s.tracer.Start(ctx, "ordering.AppendToList", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("list.target", listID),
	))
	defer span.End()

	listID = strings.TrimSpace(listID)
	err := s.withTask(ctx, taskID, []string{listID}, func(ctx context.Context, r repo.Repos, task domain.Task) error {
		list, err := LoadList(ctx, r, listID)
		if err != nil {
			return err
		}
		if list.ID == task.ListID {
			return nil
		}
		_, err = MoveAcrossListsTx(ctx, r, task, list, maxPosition)
		return err
	})
	return endSpan(span, err)
}

// LockLists takes the per-list locks of listIDs. A lock wait timeout is
// reported as a ConflictError.
func (s *Service) LockLists(ctx context.Context, listIDs ...string) (func(), error) {
	keys := make([]string, 0, len(listIDs))
	for _, id := range listIDs {
		if strings.TrimSpace(id) != "" {
			keys = append(keys, locks.ListKey(id))
		}
	}
	release, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		if errors.Is(err, locks.ErrTimeout) {
			return nil, domain.Conflict("list is being reordered, retry")
		}
		return nil, err
	}
	return release, nil
}

// withTask locks the task's current list plus extra, then runs fn in a unit
// of work with the task re-read inside it.
func (s *Service) withTask(ctx context.Context, taskID string, extra []string, fn func(ctx context.Context, r repo.Repos, task domain.Task) error) error {
	var before domain.Task
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		before, err = LoadTask(ctx, r, taskID)
		return err
	})
	if err != nil {
		return err
	}

	release, err := s.LockLists(ctx, append([]string{before.ListID}, extra...)...)
	if err != nil {
		return err
	}
	defer release()

	return s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		task, err := LoadTask(ctx, r, before.ID)
		if err != nil {
			return err
		}
		if task.ListID != before.ListID {
			return &domain.ConflictError{Reason: "task moved concurrently, retry", TaskID: task.ID}
		}
		return fn(ctx, r, task)
	})
}

func (s *Service) currentLists(ctx context.Context, taskIDs []string) ([]string, error) {
	var out []string
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		for _, id := range taskIDs {
			task, err := LoadTask(ctx, r, id)
			if err != nil {
				return err
			}
			out = append(out, task.ListID)
		}
		return nil
	})
	return out, err
}

func (s *Service) logMove(actor domain.Actor, p Placement) {
	if p.NoOp {
		return
	}
	s.logger.Info("task moved", "task_id", p.TaskID, "list_id", p.ListID, "position", p.Position, "actor", actor.Subject)
}

// NormalizeIDs trims ids and rejects empty input, blanks and duplicates.
func NormalizeIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, domain.Invalid("taskIds", "at least one task id is required")
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, domain.Invalid("taskIds", "task ids must not be blank")
		}
		if _, ok := seen[id]; ok {
			return nil, domain.Invalid("taskIds", "duplicate task id "+id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func authorize(ctx context.Context, r repo.Repos, actor domain.Actor, task domain.Task) error {
	if _, err := access.Require(ctx, r.Members, actor, task.BoardID, auth.RoleEditor); err != nil {
		return forTasks(err, []string{task.ID})
	}
	return nil
}

func forTasks(err error, taskIDs []string) error {
	var denied *domain.PermissionDenied
	if errors.As(err, &denied) {
		denied.TaskIDs = append([]string(nil), taskIDs...)
	}
	return err
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
