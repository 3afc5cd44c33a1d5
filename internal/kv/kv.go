package kv

import (
	"context"
	"errors"
	"strings"

	"bleflow/internal/config"
)

// Backend stores the most recent event payload per lookup key.
//
// Upsert is atomic with respect to concurrent writers of the same key:
// the payload is written when the key is absent or when eventTime is
// greater than or equal to the stored event time. Equal timestamps
// favor the incoming write. It reports whether the write happened; a
// stale payload is not an error.
type Backend interface {
	Upsert(ctx context.Context, key string, payload []byte, eventTime float64) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}

func NewBackend(cfg config.ConsolidateConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		return NewRedis(cfg.Redis)
	case "postgres", "postgresql":
		return NewPostgres(cfg.Postgres.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unsupported kv backend")
	}
}
