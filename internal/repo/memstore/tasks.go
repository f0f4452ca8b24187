package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

type taskRepo struct{ v *view }

func (r taskRepo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	task, ok := r.v.d.Tasks[id]
	if !ok {
		return domain.Task{}, repo.ErrNotFound
	}
	task.Assignees = append([]string(nil), task.Assignees...)
	return task, nil
}

func (r taskRepo) ListTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	out := make([]domain.Task, 0)
	for _, task := range r.v.d.Tasks {
		if task.ListID == listID && !task.Archived && task.Position >= 0 {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// LockList is a no-op: a unit of work already holds the store mutex.
func (r taskRepo) LockList(ctx context.Context, listID string) error {
	if _, ok := r.v.d.Lists[listID]; !ok {
		return repo.ErrNotFound
	}
	return nil
}

func (r taskRepo) CountInList(ctx context.Context, listID string) (int, error) {
	n := 0
	for _, task := range r.v.d.Tasks {
		if task.ListID == listID && !task.Archived && task.Position >= 0 {
			n++
		}
	}
	return n, nil
}

func (r taskRepo) ShiftPositions(ctx context.Context, listID string, from, to, delta int) (int64, error) {
	if err := r.v.mutate("ShiftPositions"); err != nil {
		return 0, err
	}
	if from < 0 {
		from = 0
	}
	var n int64
	for id, task := range r.v.d.Tasks {
		if task.ListID != listID || task.Archived || task.Position < from {
			continue
		}
		if to >= 0 && task.Position > to {
			continue
		}
		task.Position += delta
		task.UpdatedAt = r.v.now().UTC()
		r.v.d.Tasks[id] = task
		n++
	}
	return n, nil
}

func (r taskRepo) SetPlacement(ctx context.Context, taskID, listID string, position int) error {
	if err := r.v.mutate("SetPlacement"); err != nil {
		return err
	}
	if _, ok := r.v.d.Lists[listID]; !ok {
		return repo.ErrNotFound
	}
	return r.update(taskID, func(t *domain.Task) {
		t.ListID = listID
		t.Position = position
	})
}

func (r taskRepo) SetStatus(ctx context.Context, taskID, statusID string) error {
	if err := r.v.mutate("SetStatus"); err != nil {
		return err
	}
	return r.update(taskID, func(t *domain.Task) {
		t.StatusID = statusID
		t.LegacyStatus = ""
	})
}

func (r taskRepo) SetPriority(ctx context.Context, taskID string, priority domain.Priority) error {
	if err := r.v.mutate("SetPriority"); err != nil {
		return err
	}
	return r.update(taskID, func(t *domain.Task) { t.Priority = priority })
}

func (r taskRepo) AddAssignees(ctx context.Context, taskID string, subjects []string) error {
	if err := r.v.mutate("AddAssignees"); err != nil {
		return err
	}
	return r.update(taskID, func(t *domain.Task) {
		for _, subject := range subjects {
			subject = strings.TrimSpace(subject)
			if subject != "" && !t.IsAssigned(subject) {
				t.Assignees = append(t.Assignees, subject)
			}
		}
	})
}

func (r taskRepo) Archive(ctx context.Context, taskID string) error {
	if err := r.v.mutate("Archive"); err != nil {
		return err
	}
	return r.update(taskID, func(t *domain.Task) {
		t.Archived = true
		t.Position = domain.Detached
	})
}

func (r taskRepo) update(taskID string, fn func(t *domain.Task)) error {
	task, ok := r.v.d.Tasks[taskID]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&task)
	task.UpdatedAt = r.v.now().UTC()
	r.v.d.Tasks[taskID] = task
	return nil
}

type historyRepo struct{ v *view }

func (r historyRepo) Append(ctx context.Context, entry domain.HistoryEntry) (int64, error) {
	if err := r.v.mutate("AppendHistory"); err != nil {
		return 0, err
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.v.now()
	}
	entry.OccurredAt = domain.StoredTime(entry.OccurredAt)
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	integrity, err := domain.ComputeHistoryIntegrity(entry)
	if err != nil {
		return 0, err
	}
	entry.ID = r.v.d.NextHistoryID
	entry.IntegritySHA256 = integrity
	r.v.d.NextHistoryID++
	r.v.d.History = append(r.v.d.History, entry)
	return entry.ID, nil
}

func (r historyRepo) ListByTask(ctx context.Context, taskID string, limit int) ([]domain.HistoryEntry, error) {
	out := make([]domain.HistoryEntry, 0)
	for i := len(r.v.d.History) - 1; i >= 0; i-- {
		entry := r.v.d.History[i]
		if entry.TaskID != taskID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r historyRepo) ListByBoard(ctx context.Context, boardID string, since time.Time) ([]domain.HistoryEntry, error) {
	out := make([]domain.HistoryEntry, 0)
	for _, entry := range r.v.d.History {
		if entry.BoardID == boardID && !entry.OccurredAt.Before(since) {
			out = append(out, entry)
		}
	}
	return out, nil
}
