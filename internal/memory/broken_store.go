package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/alorle/gazibo/internal/port/driven"
)

// BrokenStore keeps the broken ledger in memory.
type BrokenStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBrokenStore(initial map[string]time.Time) *BrokenStore {
	return &BrokenStore{entries: maps.Clone(initial)}
}

func (s *BrokenStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.entries)
	if out == nil {
		out = make(map[string]time.Time)
	}
	return out, nil
}

func (s *BrokenStore) Save(ctx context.Context, entries map[string]time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = maps.Clone(entries)
	return nil
}

var _ driven.BrokenStore = (*BrokenStore)(nil)
