package driven

import "context"

// CacheStore is a string-keyed persistent byte store with a capacity limit.
// This is a driven port implemented by concrete adapters (e.g., BoltDB, memory).
type CacheStore interface {
	// Get returns the stored value for key. The boolean is false when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	// Returns ErrQuotaExceeded when the write would exceed the store capacity.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key.
	Keys(ctx context.Context) ([]string, error)

	// Size returns the total footprint of all records as computed by RecordSize.
	Size(ctx context.Context) (int64, error)

	// Clear removes every record.
	Clear(ctx context.Context) error
}
