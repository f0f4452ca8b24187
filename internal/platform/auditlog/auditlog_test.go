package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskflow-labs/taskflow/internal/platform/auth"
)

type fakeExec struct {
	query string
	args  []any
	err   error
}

func (f *fakeExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.query, f.args = query, args
	return nil, f.err
}

func TestComputeIntegritySHA256Deterministic(t *testing.T) {
	ev := Event{OccurredAt: time.Unix(1700000000, 0), Actor: "alice", Action: "auth.unauthorized", Resource: "GET /tasks/1/history"}
	a, err := ComputeIntegritySHA256(ev, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256: %v", err)
	}
	b, _ := ComputeIntegritySHA256(ev, []byte(`{"a":1}`))
	if a != b || len(a) != 64 {
		t.Fatalf("hashes %q %q", a, b)
	}
	ev.Actor = "mallory"
	if c, _ := ComputeIntegritySHA256(ev, []byte(`{"a":1}`)); c == a {
		t.Fatalf("hash ignores actor")
	}
}

func TestInsertHashesStoredPrecision(t *testing.T) {
	db := &fakeExec{}
	at := time.Date(2026, 5, 4, 3, 2, 1, 555555555, time.UTC)
	if err := Insert(context.Background(), db, Event{OccurredAt: at, Actor: "a", Action: "x", Resource: "r"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	stored, _ := db.args[0].(time.Time)
	if !stored.Equal(at.Truncate(time.Microsecond)) {
		t.Fatalf("occurred_at=%v", stored)
	}
	payload, _ := db.args[7].([]byte)
	sum, err := ComputeIntegritySHA256(Event{OccurredAt: stored, Actor: "a", Action: "x", Resource: "r"}, payload)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256: %v", err)
	}
	if sum != db.args[8] {
		t.Fatalf("stored integrity does not verify")
	}
}

func TestAuthDenyRecorderInsertsEvent(t *testing.T) {
	db := &fakeExec{}
	record := AuthDenyRecorder(db, "tasks")
	err := record(context.Background(), auth.DenyEvent{
		Time:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:     401,
		Reason:     "invalid_token",
		Error:      "token expired",
		RequestID:  "req-1",
		Method:     "POST",
		Path:       "/tasks/A/move",
		RemoteAddr: "10.0.0.7:51234",
		UserAgent:  "curl/8",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.Contains(db.query, "INSERT INTO audit_events") || len(db.args) != 9 {
		t.Fatalf("query=%q args=%d", db.query, len(db.args))
	}
	if db.args[2] != "auth.invalid_token" || db.args[3] != "POST /tasks/A/move" {
		t.Fatalf("args=%v", db.args)
	}
	if ip, _ := db.args[5].(sql.NullString); ip.String != "10.0.0.7" || !ip.Valid {
		t.Fatalf("ip=%v", db.args[5])
	}
}

func TestInsertRejectsIncompleteEvents(t *testing.T) {
	db := &fakeExec{}
	if err := Insert(context.Background(), db, Event{Actor: "a", Action: "x"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if db.query != "" {
		t.Fatalf("invalid event reached the database")
	}
	db.err = errors.New("down")
	if err := Insert(context.Background(), db, Event{Actor: "a", Action: "x", Resource: "r"}); err == nil {
		t.Fatalf("expected insert error")
	}
}
