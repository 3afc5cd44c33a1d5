package durable

import (
	"context"
	"os"
	"sync"
)

type jsonlStore struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONL opens an append-only log holding one JSON record per line.
func NewJSONL(path string) (Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &jsonlStore{file: f}, nil
}

func (s *jsonlStore) Init(ctx context.Context) error {
	return nil
}

// Append writes the record and forces it to disk before returning, so
// the log never trails an acknowledged publish.
func (s *jsonlStore) Append(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := make([]byte, 0, len(payload)+1)
	record = append(record, payload...)
	record = append(record, '\n')
	if _, err := s.file.Write(record); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *jsonlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
