package statemachine

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/notify"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

var errSkipped = errors.New("skipped")

type automationFunc func(ctx context.Context, e *Engine, out *Outcome, a domain.Automation) error

var automationTable = map[domain.AutomationKind]automationFunc{
	domain.AutomationAssignCreator:   assignCreator,
	domain.AutomationMoveToList:      moveToList,
	domain.AutomationNotifyAssignees: notifyAssignees,
}

// RunAutomations executes the outcome's automations in order. It never
// fails: errors are logged and the remaining automations still run.
func (e *Engine) RunAutomations(ctx context.Context, out Outcome) {
	if out.NoOp || len(out.Automations) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	ctx, span := e.tracer.Start(ctx, "statemachine.RunAutomations")
	defer span.End()

	for _, a := range out.Automations {
		fn, ok := automationTable[a.Kind]
		if !ok {
			e.logger.Warn("automation skipped", "task_id", out.TaskID, "kind", a.Kind, "reason", "unknown kind")
			continue
		}
		err := fn(ctx, e, &out, a)
		switch {
		case err == nil:
			e.logger.Info("automation applied", "task_id", out.TaskID, "kind", a.Kind)
		case errors.Is(err, errSkipped):
			e.logger.Debug("automation skipped", "task_id", out.TaskID, "kind", a.Kind, "reason", err.Error())
		default:
			span.RecordError(err)
			e.logger.Warn("automation failed", "task_id", out.TaskID, "kind", a.Kind, "error", err.Error())
		}
	}
}

func assignCreator(ctx context.Context, e *Engine, out *Outcome, a domain.Automation) error {
	creator := out.Task.CreatedBy
	if creator == "" {
		return fmt.Errorf("%w: task has no creator", errSkipped)
	}
	if out.Task.IsAssigned(creator) {
		return fmt.Errorf("%w: creator already assigned", errSkipped)
	}
	err := e.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		return r.Tasks.AddAssignees(ctx, out.TaskID, []string{creator})
	})
	if err != nil {
		return fmt.Errorf("assign creator: %w", err)
	}
	out.Task.Assignees = append(out.Task.Assignees, creator)
	return nil
}

func moveToList(ctx context.Context, e *Engine, out *Outcome, a domain.Automation) error {
	if e.mover == nil {
		return fmt.Errorf("%w: no mover configured", errSkipped)
	}
	if out.Task.ListID == a.ListID {
		return fmt.Errorf("%w: task already in list", errSkipped)
	}
	if err := e.mover.AppendToList(ctx, out.TaskID, a.ListID); err != nil {
		return fmt.Errorf("move to list %s: %w", a.ListID, err)
	}
	out.Task.ListID = a.ListID
	return nil
}

func notifyAssignees(ctx context.Context, e *Engine, out *Outcome, a domain.Automation) error {
	if e.notifier == nil {
		return fmt.Errorf("%w: no notifier configured", errSkipped)
	}
	if !out.Task.HasAssignee() {
		return fmt.Errorf("%w: task has no assignees", errSkipped)
	}
	return e.notifier.NotifyAssignees(ctx, notify.Notification{
		TaskID:     out.TaskID,
		BoardID:    out.Task.BoardID,
		FromStatus: out.OldStatus,
		ToStatus:   out.NewStatus,
		Actor:      out.Actor.Subject,
		Assignees:  append([]string(nil), out.Task.Assignees...),
		OccurredAt: e.now().UTC(),
	})
}
