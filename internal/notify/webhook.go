package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// Webhook posts notifications as JSON. A circuit breaker stops calling an
// endpoint that keeps failing until the cooldown elapses.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewWebhook(logger *slog.Logger, cfg Config, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	failures := uint32(cfg.BreakerFailures)
	settings := gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("notify breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return &Webhook{
		url:     cfg.WebhookURL,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (w *Webhook) NotifyAssignees(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
