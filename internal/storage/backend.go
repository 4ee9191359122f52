package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend is a raw key/value blob store. Get returns nil, nil when the key
// is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindRedis  = "redis"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Open returns the backend named by kind. dsn is the Redis URL or the
// SQLite file path and is ignored for the memory backend.
func Open(kind, dsn string, logger *slog.Logger) (Backend, error) {
	switch strings.ToLower(kind) {
	case KindRedis:
		return NewRedisBackend(dsn, logger)
	case KindSQLite:
		s, err := NewSQLiteBackend(dsn, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindMemory, "":
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", kind)
}
