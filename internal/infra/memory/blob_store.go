package memory

import (
	"context"
	"strconv"
	"sync"
)

// BlobStore is the in-memory implementation of store.BlobStore. A single
// mutex serializes whole-blob swaps within the process; concurrent writers
// still follow last-write-wins, matching the persistent backends.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, true, nil
}

func (s *BlobStore) Put(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.blobs[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) Bump(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if raw, ok := s.blobs[key]; ok {
		n, _ = strconv.ParseInt(string(raw), 10, 64)
	}
	n++
	s.blobs[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}
