package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/notify"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/service/access"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Mover relocates a task to the end of another list, keeping both lists dense.
type Mover interface {
	AppendToList(ctx context.Context, taskID, listID string) error
}

type Options struct {
	Policy   Policy
	Mover    Mover
	Notifier notify.Notifier
	Now      func() time.Time
}

type Engine struct {
	store    repo.Store
	logger   *slog.Logger
	policy   Policy
	mover    Mover
	notifier notify.Notifier
	now      func() time.Time
	tracer   trace.Tracer
}

func New(store repo.Store, logger *slog.Logger, opts Options) *Engine {
	if store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyAdmin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    store,
		logger:   logger,
		policy:   opts.Policy,
		mover:    opts.Mover,
		notifier: opts.Notifier,
		now:      opts.Now,
		tracer:   otel.Tracer("github.com/taskflow-labs/taskflow/internal/service/statemachine"),
	}
}

type ApplyRequest struct {
	TaskID       string
	TargetStatus string
	Comment      string
	TransitionID string
}

type ApplyResult struct {
	TaskID    string
	OldStatus string
	NewStatus string
	HistoryID int64
	NoOp      bool
}

// Outcome is the committed part of a change plus the automations still to run.
type Outcome struct {
	ApplyResult
	Task        domain.Task
	Actor       domain.Actor
	Automations []domain.Automation
}

func (e *Engine) Apply(ctx context.Context, actor domain.Actor, req ApplyRequest) (ApplyResult, error) {
	ctx, span := e.tracer.Start(ctx, "statemachine.Apply", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("status.target", req.TargetStatus),
	))
	defer span.End()

	var out Outcome
	err := e.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		task, err := loadTask(ctx, r, req.TaskID)
		if err != nil {
			return err
		}
		w, err := workflows.Load(ctx, r, task.BoardID)
		if err != nil {
			return err
		}
		out, err = e.ApplyTx(ctx, r, w, actor, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ApplyResult{}, err
	}
	span.SetAttributes(attribute.Bool("noop", out.NoOp), attribute.Int64("history.id", out.HistoryID))

	if !out.NoOp {
		e.logger.Info("task status changed",
			"task_id", out.TaskID,
			"board_id", out.Task.BoardID,
			"from", out.OldStatus,
			"to", out.NewStatus,
			"history_id", out.HistoryID,
			"actor", actor.Subject,
		)
	}
	e.RunAutomations(ctx, out)
	return out.ApplyResult, nil
}

// ApplyTx validates and writes one status change through r, against the
// snapshot w of the task's board. The caller owns the unit of work and must
// call RunAutomations after it commits.
func (e *Engine) ApplyTx(ctx context.Context, r repo.Repos, w domain.Workflow, actor domain.Actor, req ApplyRequest) (Outcome, error) {
	req.TaskID = strings.TrimSpace(req.TaskID)
	req.TargetStatus = strings.TrimSpace(req.TargetStatus)
	req.TransitionID = strings.TrimSpace(req.TransitionID)
	if err := access.ValidateActor(actor); err != nil {
		return Outcome{}, err
	}
	if req.TargetStatus == "" {
		return Outcome{}, domain.Invalid("targetStatus", "target status is required")
	}

	task, err := loadTask(ctx, r, req.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	if task.BoardID != w.BoardID {
		return Outcome{}, &domain.ConflictError{Reason: "task belongs to another board", TaskID: task.ID}
	}
	if task.Archived {
		return Outcome{}, &domain.ConflictError{Reason: "task is archived", TaskID: task.ID}
	}
	roles, err := access.Require(ctx, r.Members, actor, task.BoardID, auth.RoleEditor)
	if err != nil {
		return Outcome{}, forTask(err, task.ID)
	}

	target, ok := w.ActiveStatus(req.TargetStatus)
	if !ok {
		return Outcome{}, domain.Invalid("targetStatus", fmt.Sprintf("%q is not an active status of this board", req.TargetStatus))
	}
	currentName, typed := task.StatusName(w)
	current, _ := w.StatusByID(task.StatusID)

	out := Outcome{
		ApplyResult: ApplyResult{TaskID: task.ID, OldStatus: currentName, NewStatus: target.Name},
		Task:        task,
		Actor:       actor,
	}
	if typed && current.ID == target.ID {
		out.NoOp = true
		return out, nil
	}

	transition, err := e.resolveTransition(w, task, typed, current, target, roles, req.TransitionID)
	if err != nil {
		return Outcome{}, err
	}

	if transition != nil {
		failures := evaluateGuards(transition.Guards, guardInput{task: task, comment: req.Comment, roles: roles})
		if len(failures) > 0 {
			return Outcome{}, &domain.GuardViolation{TaskID: task.ID, TransitionID: transition.ID, Failures: failures}
		}
	}

	if err := r.Tasks.SetStatus(ctx, task.ID, target.ID); err != nil {
		return Outcome{}, fmt.Errorf("set task status: %w", err)
	}
	entry := domain.HistoryEntry{
		TaskID:     task.ID,
		BoardID:    task.BoardID,
		FromStatus: currentName,
		ToStatus:   target.Name,
		ToStatusID: target.ID,
		Actor:      actor.Subject,
		Comment:    strings.TrimSpace(req.Comment),
		OccurredAt: e.now().UTC(),
	}
	if typed {
		entry.FromStatusID = current.ID
	}
	if transition != nil {
		entry.TransitionID = transition.ID
		out.Automations = orderAutomations(transition.Automations)
	}
	historyID, err := r.History.Append(ctx, entry)
	if err != nil {
		return Outcome{}, fmt.Errorf("append history: %w", err)
	}

	out.HistoryID = historyID
	out.Task.StatusID = target.ID
	out.Task.LegacyStatus = ""
	return out, nil
}

// resolveTransition returns the edge to apply, or nil for an unguarded set
// the policy admits.
func (e *Engine) resolveTransition(w domain.Workflow, task domain.Task, typed bool, current, target domain.Status, roles []string, transitionID string) (*domain.Transition, error) {
	if transitionID != "" {
		t, ok := w.TransitionByID(transitionID)
		if !ok {
			return nil, domain.NotFound("transition", transitionID)
		}
		if !typed || t.FromStatusID != current.ID || t.ToStatusID != target.ID {
			return nil, &domain.ConflictError{
				Reason: fmt.Sprintf("transition %s does not lead from %q to %q", t.ID, current.Name, target.Name),
				TaskID: task.ID,
			}
		}
		return &t, nil
	}

	if !typed {
		return nil, nil
	}
	if t, ok := w.Edge(current.ID, target.ID); ok {
		return &t, nil
	}

	switch e.policy {
	case PolicyAllow:
		return nil, nil
	case PolicyDeny:
		return nil, &domain.ConflictError{
			Reason: fmt.Sprintf("no transition from %q to %q", current.Name, target.Name),
			TaskID: task.ID,
		}
	default:
		if auth.HasAtLeast(roles, auth.RoleAdmin) {
			return nil, nil
		}
		return nil, &domain.PermissionDenied{TaskIDs: []string{task.ID}, BoardID: task.BoardID, Required: auth.RoleAdmin}
	}
}

// History returns the task's status changes, newest first.
func (e *Engine) History(ctx context.Context, actor domain.Actor, taskID string, limit int) ([]domain.HistoryEntry, error) {
	switch {
	case limit < 0:
		return nil, domain.Invalid("limit", "limit must be >= 0")
	case limit == 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	var out []domain.HistoryEntry
	err := e.store.Read(ctx, func(ctx context.Context, r repo.Repos) error {
		task, err := loadTask(ctx, r, taskID)
		if err != nil {
			return err
		}
		if _, err := access.Require(ctx, r.Members, actor, task.BoardID, auth.RoleViewer); err != nil {
			return forTask(err, task.ID)
		}
		out, err = r.History.ListByTask(ctx, task.ID, limit)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		return nil
	})
	return out, err
}

func loadTask(ctx context.Context, r repo.Repos, taskID string) (domain.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.Task{}, domain.Invalid("taskId", "task id is required")
	}
	task, err := r.Tasks.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, domain.NotFound("task", taskID)
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// forTask names the task in a board-level permission error.
func forTask(err error, taskID string) error {
	var denied *domain.PermissionDenied
	if errors.As(err, &denied) {
		denied.TaskIDs = []string{taskID}
	}
	return err
}

func orderAutomations(in []domain.Automation) []domain.Automation {
	out := append([]domain.Automation(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return domain.AutomationRank(out[i].Kind) < domain.AutomationRank(out[j].Kind)
	})
	return out
}
