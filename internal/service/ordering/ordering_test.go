package ordering

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/locks"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/repo/memstore"
)

var alice = domain.Actor{Subject: "alice"}

func newTestService(store *memstore.Store) *Service {
	return New(store, locks.NewLocal(time.Second), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newBoard seeds L1=[A,B,C] and L2=[X] on board b1, plus L3 on board b2.
func newBoard() *memstore.Store {
	store := memstore.New()
	store.Grant("b1", "alice", "editor")
	store.Grant("b1", "vic", "viewer")
	store.PutList(domain.List{ID: "L1", BoardID: "b1"})
	store.PutList(domain.List{ID: "L2", BoardID: "b1"})
	store.PutList(domain.List{ID: "L3", BoardID: "b2"})
	store.PutTask(domain.Task{ID: "A", BoardID: "b1", ListID: "L1", Position: 0})
	store.PutTask(domain.Task{ID: "B", BoardID: "b1", ListID: "L1", Position: 1})
	store.PutTask(domain.Task{ID: "C", BoardID: "b1", ListID: "L1", Position: 2})
	store.PutTask(domain.Task{ID: "X", BoardID: "b1", ListID: "L2", Position: 0})
	return store
}

// layout returns the task ids of each list in position order and fails the
// test unless positions are exactly 0..k-1.
func layout(t *testing.T, store *memstore.Store, listIDs ...string) map[string][]string {
	t.Helper()
	out := make(map[string][]string, len(listIDs))
	err := store.Read(context.Background(), func(ctx context.Context, r repo.Repos) error {
		for _, listID := range listIDs {
			tasks, err := r.Tasks.ListTasks(ctx, listID)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(tasks))
			for i, task := range tasks {
				if task.Position != i {
					t.Fatalf("list %s is not dense: %s at %d, want %d", listID, task.ID, task.Position, i)
				}
				ids = append(ids, task.ID)
			}
			out[listID] = ids
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read layout: %v", err)
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestMoveWithinList(t *testing.T) {
	tests := []struct {
		name     string
		task     string
		position int
		want     []string
		wantPos  int
		noop     bool
	}{
		{name: "last to first", task: "C", position: 0, want: []string{"C", "A", "B"}, wantPos: 0},
		{name: "first to last", task: "A", position: 2, want: []string{"B", "C", "A"}, wantPos: 2},
		{name: "middle up", task: "B", position: 0, want: []string{"B", "A", "C"}, wantPos: 0},
		{name: "same position", task: "B", position: 1, want: []string{"A", "B", "C"}, wantPos: 1, noop: true},
		{name: "clamped to end", task: "A", position: 99, want: []string{"B", "C", "A"}, wantPos: 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newBoard()
			s := newTestService(store)
			p, err := s.MoveWithinList(context.Background(), alice, tc.task, tc.position)
			if err != nil {
				t.Fatalf("MoveWithinList: %v", err)
			}
			if p.Position != tc.wantPos || p.NoOp != tc.noop || p.ListID != "L1" {
				t.Fatalf("placement=%+v", p)
			}
			if got := layout(t, store, "L1")["L1"]; !equalIDs(got, tc.want...) {
				t.Fatalf("L1=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestMoveWithinListRejectsNegativePosition(t *testing.T) {
	s := newTestService(newBoard())
	if _, err := s.MoveWithinList(context.Background(), alice, "A", -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err=%v, want validation", err)
	}
}

func TestMoveAcrossLists(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	p, err := s.MoveAcrossLists(context.Background(), alice, "A", "L2", 0)
	if err != nil {
		t.Fatalf("MoveAcrossLists: %v", err)
	}
	if p.ListID != "L2" || p.Position != 0 {
		t.Fatalf("placement=%+v", p)
	}
	got := layout(t, store, "L1", "L2")
	if !equalIDs(got["L1"], "B", "C") || !equalIDs(got["L2"], "A", "X") {
		t.Fatalf("layout=%v", got)
	}
}

func TestMoveAcrossListsClampsToCount(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	p, err := s.Move(context.Background(), alice, MoveRequest{TaskID: "B", TargetListID: "L2", TargetPosition: 42})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if p.Position != 1 {
		t.Fatalf("position=%d, want clamp to 1", p.Position)
	}
	got := layout(t, store, "L1", "L2")
	if !equalIDs(got["L1"], "A", "C") || !equalIDs(got["L2"], "X", "B") {
		t.Fatalf("layout=%v", got)
	}
}

func TestMoveRejections(t *testing.T) {
	ctx := context.Background()
	s := newTestService(newBoard())

	if _, err := s.Move(ctx, alice, MoveRequest{TaskID: "A", TargetListID: "L3"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("cross-board err=%v, want conflict", err)
	}
	if _, err := s.Move(ctx, alice, MoveRequest{TaskID: "A", TargetListID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing list err=%v, want not found", err)
	}
	if _, err := s.Move(ctx, alice, MoveRequest{TaskID: "ghost", TargetListID: "L2"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing task err=%v, want not found", err)
	}
	var denied *domain.PermissionDenied
	_, err := s.Move(ctx, domain.Actor{Subject: "vic"}, MoveRequest{TaskID: "A", TargetListID: "L2"})
	if !errors.As(err, &denied) || !equalIDs(denied.TaskIDs, "A") {
		t.Fatalf("viewer err=%v, want permission denied on A", err)
	}
	if _, err := s.MoveAcrossLists(ctx, alice, "A", "L1", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("same list err=%v, want validation", err)
	}
}

func TestBatchMoveToListAppendsInInputOrder(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	placements, err := s.BatchMoveToList(context.Background(), alice, []string{"C", "X", "A"}, "L2")
	if err != nil {
		t.Fatalf("BatchMoveToList: %v", err)
	}
	if len(placements) != 3 {
		t.Fatalf("placements=%+v", placements)
	}
	got := layout(t, store, "L1", "L2")
	if !equalIDs(got["L1"], "B") || !equalIDs(got["L2"], "C", "X", "A") {
		t.Fatalf("layout=%v", got)
	}
}

func TestBatchMoveToListRejectsOtherBoard(t *testing.T) {
	store := newBoard()
	store.Grant("b2", "alice", "editor")
	s := newTestService(store)

	if _, err := s.BatchMoveToList(context.Background(), alice, []string{"A", "B"}, "L3"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err=%v, want conflict", err)
	}
	got := layout(t, store, "L1")
	if !equalIDs(got["L1"], "A", "B", "C") {
		t.Fatalf("L1 changed: %v", got["L1"])
	}
	if _, err := s.BatchMoveToList(context.Background(), alice, []string{"A", "A"}, "L2"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate err=%v, want validation", err)
	}
}

func TestMoveRollsBackOnStoreFailure(t *testing.T) {
	store := newBoard()
	s := newTestService(store)
	store.InjectFault(func(op string) error {
		if op == "SetPlacement" {
			return errors.New("disk full")
		}
		return nil
	})

	if _, err := s.MoveAcrossLists(context.Background(), alice, "A", "L2", 0); err == nil {
		t.Fatalf("expected error")
	}
	store.InjectFault(nil)
	got := layout(t, store, "L1", "L2")
	if !equalIDs(got["L1"], "A", "B", "C") || !equalIDs(got["L2"], "X") {
		t.Fatalf("partial move leaked: %v", got)
	}
}

func TestDetachClosesGap(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	if err := s.Detach(context.Background(), alice, "B"); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if got := layout(t, store, "L1")["L1"]; !equalIDs(got, "A", "C") {
		t.Fatalf("L1=%v", got)
	}
	if _, err := s.MoveWithinList(context.Background(), alice, "B", 0); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("detached move err=%v, want conflict", err)
	}
}

func TestAppendToList(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	if err := s.AppendToList(context.Background(), "A", "L2"); err != nil {
		t.Fatalf("AppendToList: %v", err)
	}
	if err := s.AppendToList(context.Background(), "A", "L2"); err != nil {
		t.Fatalf("AppendToList again: %v", err)
	}
	got := layout(t, store, "L1", "L2")
	if !equalIDs(got["L1"], "B", "C") || !equalIDs(got["L2"], "X", "A") {
		t.Fatalf("layout=%v", got)
	}
}

func TestConcurrentMovesKeepListDense(t *testing.T) {
	store := newBoard()
	s := newTestService(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"A", "B", "C"}
			if _, err := s.MoveWithinList(context.Background(), alice, ids[i%3], (i*7)%3); err != nil && !errors.Is(err, domain.ErrConflict) {
				t.Errorf("MoveWithinList: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if got := layout(t, store, "L1")["L1"]; len(got) != 3 {
		t.Fatalf("L1=%v", got)
	}
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	return nil, locks.ErrTimeout
}

func TestLockTimeoutIsConflict(t *testing.T) {
	s := New(newBoard(), busyLocker{}, nil)
	if _, err := s.MoveWithinList(context.Background(), alice, "A", 1); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err=%v, want conflict", err)
	}
}
