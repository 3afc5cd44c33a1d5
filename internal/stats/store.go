package stats

import (
	"sync"
	"time"
)

// Counter names used across the pipeline stages.
const (
	Lines         = "lines"
	Blocks        = "blocks"
	Events        = "events"
	Skipped       = "skipped"
	Malformed     = "malformed"
	Published     = "published"
	PublishFailed = "publish_failed"
	DurableFailed = "durable_failed"
	Consumed      = "consumed"
	Upserts       = "upserts"
	StaleDrops    = "stale_drops"
	UpsertFailed  = "upsert_failed"
	AckFailed     = "ack_failed"
)

// Store holds per-stage pipeline counters.
type Store struct {
	mu      sync.RWMutex
	counts  map[string]uint64
	started time.Time
}

func NewStore() *Store {
	return &Store{
		counts:  make(map[string]uint64),
		started: time.Now().UTC(),
	}
}

func (s *Store) Inc(name string) {
	s.mu.Lock()
	s.counts[name]++
	s.mu.Unlock()
}

func (s *Store) Add(name string, n uint64) {
	s.mu.Lock()
	s.counts[name] += n
	s.mu.Unlock()
}

func (s *Store) Get(name string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[name]
}

func (s *Store) Snapshot() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.counts))
	for name, v := range s.counts {
		out[name] = v
	}
	return out
}

func (s *Store) Started() time.Time {
	return s.started
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.counts = make(map[string]uint64)
	s.mu.Unlock()
}
