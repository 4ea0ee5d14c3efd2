package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

const (
	keyPrefix     = "engagement:lock:"
	retryInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is an advisory lock shared by every API instance using the
// same Redis. Locks expire after ttl so a crashed holder cannot wedge a key.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logging.Logger
	tracer trace.Tracer
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("locks: redis client required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
		tracer: otel.Tracer("engagement.internal.locks"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ctx, span := l.tracer.Start(ctx, "locks.acquire")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.lock_key", key))

	redisKey := keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for attempts := 1; ; attempts++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
		}
		if ok {
			span.SetAttributes(attribute.Int("engagement.lock_attempts", attempts))
			break
		}
		if time.Now().After(deadline) {
			span.RecordError(ErrNotAcquired)
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}
