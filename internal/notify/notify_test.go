package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookPostsNotification(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type=%q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := Config{WebhookURL: srv.URL, Timeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Minute}
	n := New(newTestLogger(), cfg)
	err := n.NotifyAssignees(context.Background(), Notification{TaskID: "t1", ToStatus: "done", Assignees: []string{"alice"}})
	if err != nil {
		t.Fatalf("NotifyAssignees: %v", err)
	}
	if got.TaskID != "t1" || got.ToStatus != "done" || len(got.Assignees) != 1 {
		t.Fatalf("payload=%+v", got)
	}
}

func TestWebhookBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := Config{WebhookURL: srv.URL, Timeout: time.Second, BreakerFailures: 2, BreakerCooldown: time.Minute}
	n := NewWebhook(newTestLogger(), cfg, srv.Client())
	for i := 0; i < 2; i++ {
		if err := n.NotifyAssignees(context.Background(), Notification{TaskID: "t1"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	err := n.NotifyAssignees(context.Background(), Notification{TaskID: "t1"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err=%v, want open breaker", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d, want 2", calls.Load())
	}
}

func TestNewWithoutURLLogs(t *testing.T) {
	n := New(newTestLogger(), Config{Timeout: time.Second, BreakerFailures: 1, BreakerCooldown: time.Second})
	if _, ok := n.(LogNotifier); !ok {
		t.Fatalf("notifier=%T, want LogNotifier", n)
	}
	if err := n.NotifyAssignees(context.Background(), Notification{TaskID: "t1"}); err != nil {
		t.Fatalf("NotifyAssignees: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{WebhookURL: "ftp://example.test/hook", Timeout: time.Second, BreakerFailures: 1, BreakerCooldown: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("non-http webhook must be rejected")
	}
	cfg.WebhookURL = "https://example.test/hook"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.BreakerFailures = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero breaker failures must be rejected")
	}
}
