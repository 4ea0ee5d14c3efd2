package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/internal/locks"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLocker picks the Redis locker when a client is available and falls
// back to an in-process locker, which only serializes a single instance.
func BuildLocker(client *redis.Client, cfg *appconfig.Config, logger *logging.Logger) locks.Locker {
	if logger == nil {
		logger = logging.Default()
	}
	if client == nil {
		logger.Warn("redis not configured; using in-process locks")
		return locks.NewLocalLocker(cfg.LockWait)
	}
	return locks.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait, logger)
}
