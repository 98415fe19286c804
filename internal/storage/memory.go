package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps files in process memory. Development and tests only.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, namespace, name string, r io.Reader, _ int64, _ string) (string, error) {
	p, err := objectPath(namespace, name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}

	s.mu.Lock()
	s.files[p] = data
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[p]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Exists(_ context.Context, p string) (bool, error) {
	s.mu.RLock()
	_, ok := s.files[p]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, p string) error {
	s.mu.Lock()
	delete(s.files, p)
	s.mu.Unlock()
	return nil
}

// Len reports how many files are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
