package durable

import (
	"context"
	"errors"
	"strings"

	"bleflow/internal/config"
)

// Store is the append-only local event log kept next to the bus
// publish as a recovery copy. Nil stores are valid and mean "not
// configured".
type Store interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, payload []byte) error
	Close() error
}

func NewStore(cfg config.DurableConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "jsonl":
		return NewJSONL(cfg.Path)
	case "sqlite":
		return NewSQLite(cfg.Path)
	default:
		return nil, errors.New("unsupported durable driver")
	}
}
