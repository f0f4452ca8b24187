package locks

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. Each key is a one-slot channel so waiting
// honours context cancellation.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	ctx, cancel := waitContext(ctx, l.wait)
	defer cancel()

	var held []func()
	for _, key := range normalizeKeys(keys) {
		ch := l.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, func() { <-ch })
		case <-ctx.Done():
			releaseOnce(held)()
			return nil, timeoutError(key, ctx.Err())
		}
	}
	return releaseOnce(held), nil
}
