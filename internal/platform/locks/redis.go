package locks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica pointing at the same server.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	cfg    Config
}

func NewRedis(client *redis.Client, logger *slog.Logger, cfg Config) *Redis {
	return &Redis{client: client, logger: logger, cfg: cfg}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	waitCtx, cancel := waitContext(ctx, r.cfg.WaitTimeout)
	defer cancel()

	token := uuid.NewString()
	var held []func()
	for _, key := range normalizeKeys(keys) {
		full := r.cfg.Prefix + key
		if err := r.acquire(waitCtx, full, token); err != nil {
			releaseOnce(held)()
			return nil, timeoutError(key, err)
		}
		held = append(held, func() { r.release(full, token) })
	}
	return releaseOnce(held), nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.cfg.RetryEvery)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && r.logger != nil {
		r.logger.Warn("lock release failed", "key", key, "error", err)
	}
}

// New returns a Redis locker when cfg.RedisURL is set and a Local one
// otherwise. The close func releases the Redis client.
func New(ctx context.Context, logger *slog.Logger, cfg Config) (Locker, func() error, error) {
	if cfg.RedisURL == "" {
		return NewLocal(cfg.WaitTimeout), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, logger, cfg), client.Close, nil
}
