// Package memstore is an in-process repo.Store. A unit of work runs against a
// deep copy of the data, which replaces the live data only when the unit
// commits, so a failed unit leaves nothing behind.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohae/deepcopy"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

// data holds every table. Fields are exported so deepcopy can reach them.
type data struct {
	Statuses      map[string]domain.Status
	Transitions   map[string]domain.Transition
	Tasks         map[string]domain.Task
	Lists         map[string]domain.List
	Members       map[string][]string
	History       []domain.HistoryEntry
	NextHistoryID int64
}

// FaultFunc is consulted before every mutation; a non-nil error aborts it.
type FaultFunc func(op string) error

type Store struct {
	mu    sync.Mutex
	data  *data
	fault FaultFunc
	now   func() time.Time
}

func New() *Store {
	return &Store{
		data: &data{
			Statuses:      map[string]domain.Status{},
			Transitions:   map[string]domain.Transition{},
			Tasks:         map[string]domain.Task{},
			Lists:         map[string]domain.List{},
			Members:       map[string][]string{},
			NextHistoryID: 1,
		},
		now: time.Now,
	}
}

// InjectFault installs fn for subsequent units of work; nil removes it.
func (s *Store) InjectFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) WithinTx(ctx context.Context, fn repo.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := deepcopy.Copy(s.data).(*data)
	v := &view{d: working, fault: s.fault, now: s.now}
	if err := fn(ctx, v.repos()); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) Read(ctx context.Context, fn repo.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &view{d: s.data, readOnly: true, now: s.now}
	return fn(ctx, v.repos())
}

// PutList registers a list owned by the board CRUD collaborator.
func (s *Store) PutList(list domain.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Lists[list.ID] = list
}

// PutTask stores a task as the task CRUD collaborator would create it.
func (s *Store) PutTask(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	task.Assignees = append([]string(nil), task.Assignees...)
	s.data.Tasks[task.ID] = task
}

// Grant adds board roles for subject.
func (s *Store) Grant(boardID, subject string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(boardID, subject)
	s.data.Members[key] = append(s.data.Members[key], roles...)
}

func memberKey(boardID, subject string) string {
	return strings.TrimSpace(boardID) + "\x00" + strings.TrimSpace(subject)
}

type view struct {
	d        *data
	readOnly bool
	fault    FaultFunc
	now      func() time.Time
}

func (v *view) repos() repo.Repos {
	return repo.Repos{
		Statuses:    statusRepo{v},
		Transitions: transitionRepo{v},
		Tasks:       taskRepo{v},
		History:     historyRepo{v},
		Lists:       listRepo{v},
		Members:     memberRepo{v},
	}
}

func (v *view) mutate(op string) error {
	if v.readOnly {
		return repo.ErrReadOnly
	}
	if v.fault != nil {
		return v.fault(op)
	}
	return nil
}

type statusRepo struct{ v *view }

func (r statusRepo) CreateStatus(ctx context.Context, status domain.Status) error {
	if err := r.v.mutate("CreateStatus"); err != nil {
		return err
	}
	if err := status.Validate(); err != nil {
		return err
	}
	for _, existing := range r.v.d.Statuses {
		if existing.ID == status.ID {
			return repo.ErrDuplicate
		}
		if existing.BoardID != status.BoardID {
			continue
		}
		if existing.Name == status.Name || existing.Position == status.Position {
			return repo.ErrDuplicate
		}
	}
	if status.CreatedAt.IsZero() {
		status.CreatedAt = r.v.now().UTC()
	}
	r.v.d.Statuses[status.ID] = status
	return nil
}

func (r statusRepo) GetStatus(ctx context.Context, boardID, id string) (domain.Status, error) {
	status, ok := r.v.d.Statuses[id]
	if !ok || status.BoardID != boardID {
		return domain.Status{}, repo.ErrNotFound
	}
	return status, nil
}

func (r statusRepo) ListStatuses(ctx context.Context, boardID string) ([]domain.Status, error) {
	out := make([]domain.Status, 0)
	for _, status := range r.v.d.Statuses {
		if status.BoardID == boardID {
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r statusRepo) UpdateStatus(ctx context.Context, status domain.Status) error {
	if err := r.v.mutate("UpdateStatus"); err != nil {
		return err
	}
	existing, ok := r.v.d.Statuses[status.ID]
	if !ok || existing.BoardID != status.BoardID {
		return repo.ErrNotFound
	}
	existing.Label = status.Label
	existing.Color = status.Color
	existing.IsInitial = status.IsInitial
	existing.IsFinal = status.IsFinal
	existing.IsActive = status.IsActive
	r.v.d.Statuses[status.ID] = existing
	return nil
}

type transitionRepo struct{ v *view }

func (r transitionRepo) CreateTransition(ctx context.Context, transition domain.Transition) error {
	if err := r.v.mutate("CreateTransition"); err != nil {
		return err
	}
	if err := transition.Validate(); err != nil {
		return err
	}
	for _, existing := range r.v.d.Transitions {
		if existing.ID == transition.ID {
			return repo.ErrDuplicate
		}
		if existing.BoardID == transition.BoardID && existing.FromStatusID == transition.FromStatusID && existing.ToStatusID == transition.ToStatusID {
			return repo.ErrDuplicate
		}
	}
	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = r.v.now().UTC()
	}
	r.v.d.Transitions[transition.ID] = transition
	return nil
}

func (r transitionRepo) DeleteTransition(ctx context.Context, boardID, id string) error {
	if err := r.v.mutate("DeleteTransition"); err != nil {
		return err
	}
	existing, ok := r.v.d.Transitions[id]
	if !ok || existing.BoardID != boardID {
		return repo.ErrNotFound
	}
	delete(r.v.d.Transitions, id)
	return nil
}

func (r transitionRepo) ListTransitions(ctx context.Context, boardID string) ([]domain.Transition, error) {
	out := make([]domain.Transition, 0)
	for _, t := range r.v.d.Transitions {
		if t.BoardID == boardID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type listRepo struct{ v *view }

func (r listRepo) GetList(ctx context.Context, id string) (domain.List, error) {
	list, ok := r.v.d.Lists[id]
	if !ok {
		return domain.List{}, repo.ErrNotFound
	}
	return list, nil
}

type memberRepo struct{ v *view }

func (r memberRepo) BoardRoles(ctx context.Context, boardID, subject string) ([]string, error) {
	return append([]string(nil), r.v.d.Members[memberKey(boardID, subject)]...), nil
}
