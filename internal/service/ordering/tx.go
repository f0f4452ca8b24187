package ordering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

// Placement is where a task ended up.
type Placement struct {
	TaskID   string
	ListID   string
	Position int
	NoOp     bool
}

// MoveWithinListTx moves task to position inside its own list. task must have
// been read in the same unit of work.
func MoveWithinListTx(ctx context.Context, r repo.Repos, task domain.Task, position int) (Placement, error) {
	if position < 0 {
		return Placement{}, domain.Invalid("targetPosition", "position must be >= 0")
	}
	if err := requirePlaced(task); err != nil {
		return Placement{}, err
	}
	if err := lockLists(ctx, r, task.ListID); err != nil {
		return Placement{}, err
	}
	k, err := r.Tasks.CountInList(ctx, task.ListID)
	if err != nil {
		return Placement{}, fmt.Errorf("count list: %w", err)
	}
	if position > k-1 {
		position = k - 1
	}

	out := Placement{TaskID: task.ID, ListID: task.ListID, Position: position}
	old := task.Position
	switch {
	case position == old:
		out.NoOp = true
		return out, nil
	case position > old:
		_, err = r.Tasks.ShiftPositions(ctx, task.ListID, old+1, position, -1)
	default:
		_, err = r.Tasks.ShiftPositions(ctx, task.ListID, position, old-1, 1)
	}
	if err != nil {
		return Placement{}, fmt.Errorf("shift positions: %w", err)
	}
	if err := r.Tasks.SetPlacement(ctx, task.ID, task.ListID, position); err != nil {
		return Placement{}, fmt.Errorf("set placement: %w", err)
	}
	return out, nil
}

// MoveAcrossListsTx moves task into target at position, closing the gap it
// leaves behind.
func MoveAcrossListsTx(ctx context.Context, r repo.Repos, task domain.Task, target domain.List, position int) (Placement, error) {
	if position < 0 {
		return Placement{}, domain.Invalid("targetPosition", "position must be >= 0")
	}
	if err := requirePlaced(task); err != nil {
		return Placement{}, err
	}
	if target.BoardID != task.BoardID {
		return Placement{}, &domain.ConflictError{Reason: "target list belongs to another board", TaskID: task.ID}
	}
	if target.ID == task.ListID {
		return MoveWithinListTx(ctx, r, task, position)
	}
	if err := lockLists(ctx, r, task.ListID, target.ID); err != nil {
		return Placement{}, err
	}
	k, err := r.Tasks.CountInList(ctx, target.ID)
	if err != nil {
		return Placement{}, fmt.Errorf("count list: %w", err)
	}
	if position > k {
		position = k
	}

	if _, err := r.Tasks.ShiftPositions(ctx, task.ListID, task.Position+1, -1, -1); err != nil {
		return Placement{}, fmt.Errorf("close source gap: %w", err)
	}
	if _, err := r.Tasks.ShiftPositions(ctx, target.ID, position, -1, 1); err != nil {
		return Placement{}, fmt.Errorf("open target slot: %w", err)
	}
	if err := r.Tasks.SetPlacement(ctx, task.ID, target.ID, position); err != nil {
		return Placement{}, fmt.Errorf("set placement: %w", err)
	}
	return Placement{TaskID: task.ID, ListID: target.ID, Position: position}, nil
}

// BatchMoveTx appends the tasks to the end of target in the given order.
// Tasks already in target move to its end as well.
func BatchMoveTx(ctx context.Context, r repo.Repos, taskIDs []string, target domain.List) ([]Placement, error) {
	tasks := make([]domain.Task, 0, len(taskIDs))
	lists := []string{target.ID}
	for _, id := range taskIDs {
		task, err := LoadTask(ctx, r, id)
		if err != nil {
			return nil, err
		}
		if task.BoardID != target.BoardID {
			return nil, &domain.ConflictError{Reason: "target list belongs to another board", TaskID: task.ID}
		}
		if err := requirePlaced(task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		lists = append(lists, task.ListID)
	}
	if err := lockLists(ctx, r, lists...); err != nil {
		return nil, err
	}

	out := make([]Placement, 0, len(tasks))
	for i, task := range tasks {
		// earlier iterations shift positions; re-read before each move
		current, err := LoadTask(ctx, r, task.ID)
		if err != nil {
			return nil, &domain.BatchItemError{Index: i, TaskID: task.ID, Err: err}
		}
		var p Placement
		if current.ListID == target.ID {
			p, err = MoveWithinListTx(ctx, r, current, maxPosition)
		} else {
			p, err = MoveAcrossListsTx(ctx, r, current, target, maxPosition)
		}
		if err != nil {
			return nil, &domain.BatchItemError{Index: i, TaskID: task.ID, Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

// DetachTx removes task from its list ordering and closes the gap.
func DetachTx(ctx context.Context, r repo.Repos, task domain.Task) error {
	if task.Archived || task.Position < 0 {
		return nil
	}
	if err := lockLists(ctx, r, task.ListID); err != nil {
		return err
	}
	if _, err := r.Tasks.ShiftPositions(ctx, task.ListID, task.Position+1, -1, -1); err != nil {
		return fmt.Errorf("close gap: %w", err)
	}
	if err := r.Tasks.SetPlacement(ctx, task.ID, task.ListID, domain.Detached); err != nil {
		return fmt.Errorf("detach task: %w", err)
	}
	return nil
}

// LoadTask reads a task and translates a missing row into NotFoundError.
func LoadTask(ctx context.Context, r repo.Repos, taskID string) (domain.Task, error) {
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

// LoadList reads a list and translates a missing row into NotFoundError.
func LoadList(ctx context.Context, r repo.Repos, listID string) (domain.List, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return domain.List{}, domain.Invalid("targetListId", "list id is required")
	}
	list, err := r.Lists.GetList(ctx, listID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.List{}, domain.NotFound("list", listID)
		}
		return domain.List{}, fmt.Errorf("get list: %w", err)
	}
	return list, nil
}

const maxPosition = int(^uint(0) >> 1)

func requirePlaced(task domain.Task) error {
	if task.Archived {
		return &domain.ConflictError{Reason: "task is archived", TaskID: task.ID}
	}
	if task.Position < 0 {
		return &domain.ConflictError{Reason: "task is not part of a list ordering", TaskID: task.ID}
	}
	return nil
}

// lockLists row-locks the lists in sorted order.
func lockLists(ctx context.Context, r repo.Repos, listIDs ...string) error {
	ids := make([]string, 0, len(listIDs))
	seen := make(map[string]struct{}, len(listIDs))
	for _, id := range listIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.Tasks.LockList(ctx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.NotFound("list", id)
			}
			return fmt.Errorf("lock list: %w", err)
		}
	}
	return nil
}
