// Package notify hands status-change notifications to the delivery
// collaborator. Dispatch is fire-and-forget: callers log failures and never
// retry.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/platform/env"
)

// Notification tells the assignees of a task that its status changed.
type Notification struct {
	TaskID     string    `json:"task_id"`
	BoardID    string    `json:"board_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Assignees  []string  `json:"assignees"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Notifier interface {
	NotifyAssignees(ctx context.Context, n Notification) error
}

type Config struct {
	WebhookURL      string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("NOTIFY_TIMEOUT", 3*time.Second)
	if err != nil {
		return Config{}, err
	}
	failures, err := env.Int("NOTIFY_BREAKER_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	cooldown, err := env.Duration("NOTIFY_BREAKER_COOLDOWN", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		WebhookURL:      env.String("NOTIFY_WEBHOOK_URL", ""),
		Timeout:         timeout,
		BreakerFailures: failures,
		BreakerCooldown: cooldown,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	if c.BreakerFailures <= 0 {
		return errors.New("NOTIFY_BREAKER_FAILURES must be positive")
	}
	if c.BreakerCooldown <= 0 {
		return errors.New("NOTIFY_BREAKER_COOLDOWN must be positive")
	}
	if strings.TrimSpace(c.WebhookURL) != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL must be http(s) (got %q)", u.Scheme)
		}
	}
	return nil
}

// New returns a webhook notifier when a URL is configured and a log-only
// notifier otherwise.
func New(logger *slog.Logger, cfg Config) Notifier {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return LogNotifier{Logger: logger}
	}
	return NewWebhook(logger, cfg, nil)
}

// LogNotifier records notifications in the service log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyAssignees(ctx context.Context, note Notification) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.InfoContext(ctx, "notify assignees",
		"task_id", note.TaskID,
		"board_id", note.BoardID,
		"from_status", note.FromStatus,
		"to_status", note.ToStatus,
		"assignees", note.Assignees,
	)
	return nil
}
