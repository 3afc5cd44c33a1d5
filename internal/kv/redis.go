package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bleflow/internal/config"
	"bleflow/internal/model"
)

// Watch retries before giving up on a contended key.
const redisUpsertRetries = 5

type redisBackend struct {
	client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &redisBackend{client: client}, nil
}

// Upsert runs an optimistic WATCH transaction so the read-compare-write
// is atomic against concurrent consolidation workers. A stored value
// with no extractable event time is treated as older than anything.
func (r *redisBackend) Upsert(ctx context.Context, key string, payload []byte, eventTime float64) (bool, error) {
	var written bool
	txf := func(tx *redis.Tx) error {
		written = false
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if stored, ok := model.EventTime(current); ok && eventTime < stored {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}
	for i := 0; i < redisUpsertRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	return false, fmt.Errorf("upsert %s: contention retries exhausted", key)
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}
