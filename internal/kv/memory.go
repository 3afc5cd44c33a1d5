package kv

import (
	"context"
	"sync"
)

type memoryEntry struct {
	payload   []byte
	eventTime float64
}

type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory returns an in-process backend. Used by tests and as a
// stand-in when no shared backend is reachable from the environment.
func NewMemory() Backend {
	return &memoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *memoryBackend) Upsert(ctx context.Context, key string, payload []byte, eventTime float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.entries[key]; ok && eventTime < current.eventTime {
		return false, nil
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	b.entries[key] = memoryEntry{payload: stored, eventTime: eventTime}
	return true, nil
}

func (b *memoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(entry.payload))
	copy(out, entry.payload)
	return out, true, nil
}

func (b *memoryBackend) Close() error {
	return nil
}
