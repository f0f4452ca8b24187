package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskflow-labs/taskflow/internal/repo"
)

func TestNilStoresReportNotInitialized(t *testing.T) {
	if NewStore(nil) != nil {
		t.Fatalf("expected nil store for nil db")
	}
	if NewTaskStore(nil) != nil || NewHistoryStore(nil) != nil || NewStatusStore(nil) != nil {
		t.Fatalf("expected nil repositories for nil db")
	}
	var tasks *TaskStore
	if _, err := tasks.GetTask(t.Context(), "t1"); err == nil {
		t.Fatalf("expected error from nil task store")
	}
}

func TestClassifyWrite(t *testing.T) {
	err := fmt.Errorf("insert status: %w", classifyWrite(&pgconn.PgError{Code: "23505"}))
	if !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate classification, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected underlying pg error to stay reachable")
	}
	if errors.Is(classifyWrite(errors.New("boom")), repo.ErrDuplicate) {
		t.Fatalf("plain error must not be duplicate")
	}
}

func TestEncodeListNeverNull(t *testing.T) {
	raw, err := encodeList[string](nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("encodeList(nil)=%s, want []", raw)
	}
	var out []string
	if err := decodeList([]byte(`["a","b"]`), &out); err != nil || len(out) != 2 {
		t.Fatalf("decodeList()=%v err=%v", out, err)
	}
}
