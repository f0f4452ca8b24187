package repo

import (
	"context"
	"errors"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write collides with a unique key.
	ErrDuplicate = errors.New("duplicate")
	ErrReadOnly  = errors.New("read-only transaction")
)

// StatusRepository is the board status catalog. Statuses are never deleted.
type StatusRepository interface {
	CreateStatus(ctx context.Context, status domain.Status) error
	GetStatus(ctx context.Context, boardID, id string) (domain.Status, error)
	ListStatuses(ctx context.Context, boardID string) ([]domain.Status, error)
	UpdateStatus(ctx context.Context, status domain.Status) error
}

// TransitionRepository is the board transition table.
type TransitionRepository interface {
	CreateTransition(ctx context.Context, transition domain.Transition) error
	DeleteTransition(ctx context.Context, boardID, id string) error
	ListTransitions(ctx context.Context, boardID string) ([]domain.Transition, error)
}

// TaskRepository exposes the task fields owned by this core.
type TaskRepository interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	// ListTasks returns the non-archived tasks of a list ordered by position.
	ListTasks(ctx context.Context, listID string) ([]domain.Task, error)
	// LockList serializes writers of one list until the transaction ends.
	LockList(ctx context.Context, listID string) error
	CountInList(ctx context.Context, listID string) (int, error)
	// ShiftPositions adds delta to every non-archived task of the list whose
	// position is within [from, to]. A negative to means unbounded.
	ShiftPositions(ctx context.Context, listID string, from, to, delta int) (int64, error)
	SetPlacement(ctx context.Context, taskID, listID string, position int) error
	SetStatus(ctx context.Context, taskID, statusID string) error
	SetPriority(ctx context.Context, taskID string, priority domain.Priority) error
	AddAssignees(ctx context.Context, taskID string, subjects []string) error
	Archive(ctx context.Context, taskID string) error
}

// HistoryRepository is append-only: there is no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, entry domain.HistoryEntry) (int64, error)
	// ListByTask returns entries newest first.
	ListByTask(ctx context.Context, taskID string, limit int) ([]domain.HistoryEntry, error)
	// ListByBoard returns entries oldest first, occurring at or after since.
	ListByBoard(ctx context.Context, boardID string, since time.Time) ([]domain.HistoryEntry, error)
}

type ListRepository interface {
	GetList(ctx context.Context, id string) (domain.List, error)
}

// MembershipRepository resolves board-scoped roles of a subject.
type MembershipRepository interface {
	BoardRoles(ctx context.Context, boardID, subject string) ([]string, error)
}

// Repos groups repositories bound to one unit of work.
type Repos struct {
	Statuses    StatusRepository
	Transitions TransitionRepository
	Tasks       TaskRepository
	History     HistoryRepository
	Lists       ListRepository
	Members     MembershipRepository
}

type TxFunc func(ctx context.Context, r Repos) error

// Store runs units of work. WithinTx commits only when fn returns nil; Read
// runs fn against a read-only view.
type Store interface {
	WithinTx(ctx context.Context, fn TxFunc) error
	Read(ctx context.Context, fn TxFunc) error
}
