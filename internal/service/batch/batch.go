// Package batch applies one operation to many tasks atomically.
//
// A batch runs in two phases. Phase one authorizes every task and rejects the
// whole batch, naming each offending task, if the actor may not edit any of
// them. Phase two applies the operation to every task in one unit of work;
// the first failing item aborts it and nothing is written.
//
// All tasks of a batch belong to one board.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/platform/env"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/service/access"
	"github.com/taskflow-labs/taskflow/internal/service/ordering"
	"github.com/taskflow-labs/taskflow/internal/service/statemachine"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

type Operation string

const (
	OpDelete         Operation = "delete"
	OpChangeStatus   Operation = "change_status"
	OpChangePriority Operation = "change_priority"
	OpAssign         Operation = "assign"
	OpMoveToList     Operation = "move_to_list"
)

// Payload carries the operation arguments; each operation reads its own fields.
type Payload struct {
	Status    string          `json:"status,omitempty"`
	Comment   string          `json:"comment,omitempty"`
	Priority  domain.Priority `json:"priority,omitempty"`
	Assignees []string        `json:"assignees,omitempty"`
	ListID    string          `json:"list_id,omitempty"`
}

type Request struct {
	TaskIDs   []string
	Operation Operation
	Payload   Payload
}

type Result struct {
	Succeeded int
}

type Config struct {
	MaxItems int
}

func ConfigFromEnv() (Config, error) {
	maxItems, err := env.Int("BATCH_MAX_ITEMS", 500)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{MaxItems: maxItems}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxItems <= 0 {
		return fmt.Errorf("BATCH_MAX_ITEMS must be > 0")
	}
	return nil
}

type Service struct {
	store    repo.Store
	engine   *statemachine.Engine
	ordering *ordering.Service
	logger   *slog.Logger
	cfg      Config
	tracer   trace.Tracer
}

func New(store repo.Store, engine *statemachine.Engine, ord *ordering.Service, logger *slog.Logger, cfg Config) *Service {
	if store == nil || engine == nil || ord == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 500
	}
	return &Service{
		store:    store,
		engine:   engine,
		ordering: ord,
		logger:   logger,
		cfg:      cfg,
		tracer:   otel.Tracer("github.com/taskflow-labs/taskflow/internal/service/batch"),
	}
}

func (s *Service) Execute(ctx context.Context, actor domain.Actor, req Request) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("batch service not initialized")
	}
	ctx, span := s.tracer.Start(ctx, "batch.Execute", trace.WithAttributes(
		attribute.String("batch.operation", string(req.Operation)),
		attribute.Int("batch.size", len(req.TaskIDs)),
	))
	defer span.End()

	res, err := s.execute(ctx, actor, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("batch.succeeded", res.Succeeded))
	return res, nil
}

func (s *Service) execute(ctx context.Context, actor domain.Actor, req Request) (Result, error) {
	if err := access.ValidateActor(actor); err != nil {
		return Result{}, err
	}
	ids, err := ordering.NormalizeIDs(req.TaskIDs)
	if err != nil {
		return Result{}, err
	}
	if len(ids) > s.cfg.MaxItems {
		return Result{}, domain.Invalid("taskIds", fmt.Sprintf("batch exceeds %d items", s.cfg.MaxItems))
	}
	payload, err := normalizePayload(req.Operation, req.Payload)
	if err != nil {
		return Result{}, err
	}

	tasks, err := s.authorize(ctx, actor, ids)
	if err != nil {
		return Result{}, err
	}
	boardID := tasks[0].BoardID
	for _, task := range tasks[1:] {
		if task.BoardID != boardID {
			return Result{}, &domain.ConflictError{Reason: "batch spans more than one board", TaskID: task.ID}
		}
	}

	lists := make([]string, 0, len(tasks)+1)
	for _, task := range tasks {
		lists = append(lists, task.ListID)
	}
	if req.Operation == OpMoveToList {
		lists = append(lists, payload.ListID)
	}
	if req.Operation == OpDelete || req.Operation == OpMoveToList {
		release, err := s.ordering.LockLists(ctx, lists...)
		if err != nil {
			return Result{}, err
		}
		defer release()
	}

	var outcomes []statemachine.Outcome
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var err error
		outcomes, err = s.apply(ctx, r, actor, boardID, ids, req.Operation, payload)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("batch applied",
		"operation", req.Operation,
		"board_id", boardID,
		"count", len(ids),
		"actor", actor.Subject,
	)
	for _, out := range outcomes {
		s.engine.RunAutomations(ctx, out)
	}
	return Result{Succeeded: len(ids)}, nil
}

// authorize loads every task and requires edit access to each one. The
// returned error names every task the actor may not edit.
func (s *Service) authorize(ctx context.Context, actor domain.Actor, ids []string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0, len(ids))
	var denied []string
	err := s.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		editable := make(map[string]bool)
		for _, id := range ids {
			task, err := ordering.LoadTask(ctx, r, id)
			if err != nil {
				return err
			}
			ok, seen := editable[task.BoardID]
			if !seen {
				roles, err := access.Roles(ctx, r.Members, actor, task.BoardID)
				if err != nil {
					return err
				}
				ok = auth.HasAtLeast(roles, auth.RoleEditor)
				editable[task.BoardID] = ok
			}
			if !ok {
				denied = append(denied, task.ID)
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(denied) > 0 {
		return nil, &domain.PermissionDenied{TaskIDs: denied, Required: auth.RoleEditor}
	}
	return tasks, nil
}

func (s *Service) apply(ctx context.Context, r repo.Repos, actor domain.Actor, boardID string, ids []string, op Operation, p Payload) ([]statemachine.Outcome, error) {
	switch op {
	case OpMoveToList:
		list, err := ordering.LoadList(ctx, r, p.ListID)
		if err != nil {
			return nil, err
		}
		if list.BoardID != boardID {
			return nil, domain.Conflict("target list belongs to another board")
		}
		_, err = ordering.BatchMoveTx(ctx, r, ids, list)
		return nil, err

	case OpChangeStatus:
		w, err := workflows.Load(ctx, r, boardID)
		if err != nil {
			return nil, err
		}
		outcomes := make([]statemachine.Outcome, 0, len(ids))
		for i, id := range ids {
			out, err := s.engine.ApplyTx(ctx, r, w, actor, statemachine.ApplyRequest{
				TaskID:       id,
				TargetStatus: p.Status,
				Comment:      p.Comment,
			})
			if err != nil {
				return nil, &domain.BatchItemError{Index: i, TaskID: id, Err: err}
			}
			outcomes = append(outcomes, out)
		}
		return outcomes, nil
	}

	for i, id := range ids {
		if err := applyItem(ctx, r, id, op, p); err != nil {
			return nil, &domain.BatchItemError{Index: i, TaskID: id, Err: err}
		}
	}
	return nil, nil
}

func applyItem(ctx context.Context, r repo.Repos, id string, op Operation, p Payload) error {
	switch op {
	case OpDelete:
		task, err := ordering.LoadTask(ctx, r, id)
		if err != nil {
			return err
		}
		if err := ordering.DetachTx(ctx, r, task); err != nil {
			return err
		}
		if err := r.Tasks.Archive(ctx, id); err != nil {
			return fmt.Errorf("archive task: %w", err)
		}
	case OpChangePriority:
		if err := r.Tasks.SetPriority(ctx, id, p.Priority); err != nil {
			return fmt.Errorf("set priority: %w", err)
		}
	case OpAssign:
		if err := r.Tasks.AddAssignees(ctx, id, p.Assignees); err != nil {
			return fmt.Errorf("add assignees: %w", err)
		}
	default:
		return domain.Invalid("operation", fmt.Sprintf("unknown operation %q", op))
	}
	return nil
}

func normalizePayload(op Operation, p Payload) (Payload, error) {
	switch op {
	case OpDelete:
		return Payload{}, nil
	case OpChangeStatus:
		p.Status = strings.TrimSpace(p.Status)
		if p.Status == "" {
			return Payload{}, domain.Invalid("payload.status", "status is required")
		}
		return Payload{Status: p.Status, Comment: p.Comment}, nil
	case OpChangePriority:
		p.Priority = domain.Priority(strings.ToLower(strings.TrimSpace(string(p.Priority))))
		if !p.Priority.Valid() {
			return Payload{}, domain.Invalid("payload.priority", "priority must be one of low, medium, high, urgent")
		}
		return Payload{Priority: p.Priority}, nil
	case OpAssign:
		out := make([]string, 0, len(p.Assignees))
		for _, a := range p.Assignees {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
		if len(out) == 0 {
			return Payload{}, domain.Invalid("payload.assignees", "at least one assignee is required")
		}
		return Payload{Assignees: out}, nil
	case OpMoveToList:
		p.ListID = strings.TrimSpace(p.ListID)
		if p.ListID == "" {
			return Payload{}, domain.Invalid("payload.list_id", "list id is required")
		}
		return Payload{ListID: p.ListID}, nil
	default:
		return Payload{}, domain.Invalid("operation", fmt.Sprintf("unknown operation %q", op))
	}
}
