// Package locks serializes writers of the same task list. Keys are always
// acquired in sorted order so two callers locking overlapping sets cannot
// deadlock.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskflow-labs/taskflow/internal/platform/env"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// deadline.
var ErrTimeout = errors.New("lock wait timeout")

// Locker acquires every key or none. The returned release func is safe to call
// more than once.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (release func(), err error)
}

type Config struct {
	RedisURL    string
	Prefix      string
	TTL         time.Duration
	WaitTimeout time.Duration
	RetryEvery  time.Duration
}

func ConfigFromEnv() (Config, error) {
	ttl, err := env.Duration("LOCK_TTL", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	wait, err := env.Duration("LOCK_WAIT_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	retry, err := env.Duration("LOCK_RETRY_INTERVAL", 25*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		RedisURL:    env.String("REDIS_URL", ""),
		Prefix:      env.String("LOCK_PREFIX", "taskflow:lock:"),
		TTL:         ttl,
		WaitTimeout: wait,
		RetryEvery:  retry,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("LOCK_TTL must be positive")
	}
	if c.WaitTimeout <= 0 {
		return errors.New("LOCK_WAIT_TIMEOUT must be positive")
	}
	if c.RetryEvery <= 0 {
		return errors.New("LOCK_RETRY_INTERVAL must be positive")
	}
	if c.WaitTimeout > c.TTL {
		return fmt.Errorf("LOCK_WAIT_TIMEOUT (%s) must not exceed LOCK_TTL (%s)", c.WaitTimeout, c.TTL)
	}
	return nil
}

// ListKey is the lock key of one task list.
func ListKey(listID string) string {
	return "list:" + strings.TrimSpace(listID)
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func waitContext(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}

func timeoutError(key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, key)
	}
	return err
}

func releaseOnce(fns []func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(fns) - 1; i >= 0; i-- {
				fns[i]()
			}
		})
	}
}
