package driven

import (
	"context"
	"time"
)

// BrokenStore persists the broken-stream ledger as a single url → marked-at map.
type BrokenStore interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, entries map[string]time.Time) error
}
