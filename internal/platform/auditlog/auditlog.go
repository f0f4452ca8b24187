// Package auditlog appends security events, such as rejected requests, to
// the audit_events table. Rows are insert-only and carry an integrity hash.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/platform/auth"
)

type Event struct {
	OccurredAt time.Time
	Actor      string
	Action     string
	Resource   string
	RequestID  string
	IP         string
	UserAgent  string
	Payload    map[string]any
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("action is required")
	}
	if strings.TrimSpace(e.Resource) == "" {
		return errors.New("resource is required")
	}
	return nil
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func Insert(ctx context.Context, db Execer, event Event) error {
	if db == nil {
		return errors.New("db is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC().Truncate(time.Microsecond)
	if err := event.Validate(); err != nil {
		return err
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO audit_events (occurred_at, actor, action, resource, request_id, ip, user_agent, payload, integrity_sha256)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.OccurredAt,
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.Resource),
		nullString(event.RequestID),
		nullString(event.IP),
		nullString(event.UserAgent),
		payloadJSON,
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	blob, err := json.Marshal(struct {
		OccurredAt time.Time       `json:"occurred_at"`
		Actor      string          `json:"actor"`
		Action     string          `json:"action"`
		Resource   string          `json:"resource"`
		RequestID  string          `json:"request_id,omitempty"`
		IP         string          `json:"ip,omitempty"`
		UserAgent  string          `json:"user_agent,omitempty"`
		Payload    json.RawMessage `json:"payload"`
	}{
		OccurredAt: event.OccurredAt.UTC().Truncate(time.Microsecond),
		Actor:      strings.TrimSpace(event.Actor),
		Action:     strings.TrimSpace(event.Action),
		Resource:   strings.TrimSpace(event.Resource),
		RequestID:  strings.TrimSpace(event.RequestID),
		IP:         strings.TrimSpace(event.IP),
		UserAgent:  strings.TrimSpace(event.UserAgent),
		Payload:    payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// AuthDenyEvent converts a rejected request into an audit event.
func AuthDenyEvent(service string, deny auth.DenyEvent) Event {
	var ip string
	if host, _, err := net.SplitHostPort(deny.RemoteAddr); err == nil {
		ip = host
	}
	return Event{
		OccurredAt: deny.Time,
		Actor:      "anonymous",
		Action:     "auth." + strings.TrimSpace(deny.Reason),
		Resource:   deny.Method + " " + deny.Path,
		RequestID:  deny.RequestID,
		IP:         ip,
		UserAgent:  deny.UserAgent,
		Payload: map[string]any{
			"service": service,
			"status":  deny.Status,
			"reason":  deny.Reason,
			"error":   deny.Error,
		},
	}
}

// AuthDenyRecorder returns an auth.AuditFunc that inserts into db.
func AuthDenyRecorder(db Execer, service string) auth.AuditFunc {
	return func(ctx context.Context, deny auth.DenyEvent) error {
		return Insert(ctx, db, AuthDenyEvent(service, deny))
	}
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
