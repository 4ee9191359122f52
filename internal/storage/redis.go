package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores blobs as plain Redis strings without expiry.
type RedisBackend struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisBackend implements Backend interface
var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a backend from a redis:// URL or a bare host:port.
func NewRedisBackend(redisURL string, logger *slog.Logger) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		// Accept host:port as well
		opt = &redis.Options{Addr: redisURL}
	}

	return &RedisBackend{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

// Client returns the underlying client so the event broadcaster can share
// the connection pool.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisBackend) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if maxRetries <= 0 {
		maxRetries = 30
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Blob operations

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
