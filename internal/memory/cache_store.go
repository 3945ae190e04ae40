package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/alorle/gazibo/internal/port/driven"
)

// CacheStore is an in-memory implementation of the CacheStore port with an
// optional quota. A zero quota means unlimited.
type CacheStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	quota   int64
}

// NewCacheStore creates an empty store.
func NewCacheStore(quota int64) *CacheStore {
	return &CacheStore{records: make(map[string][]byte), quota: quota}
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	return slices.Clone(v), ok, nil
}

func (s *CacheStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		size := s.size() + driven.RecordSize(key, value)
		if old, ok := s.records[key]; ok {
			size -= driven.RecordSize(key, old)
		}
		if size > s.quota {
			return driven.ErrQuotaExceeded
		}
	}
	s.records[key] = slices.Clone(value)
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *CacheStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.records)), nil
}

func (s *CacheStore) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size(), nil
}

func (s *CacheStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.records)
	return nil
}

func (s *CacheStore) size() int64 {
	var n int64
	for k, v := range s.records {
		n += driven.RecordSize(k, v)
	}
	return n
}

var _ driven.CacheStore = (*CacheStore)(nil)

// Ping always succeeds while ctx is live.
func (s *CacheStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
