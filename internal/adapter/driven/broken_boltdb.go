package driven

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.etcd.io/bbolt"

	port "github.com/alorle/gazibo/internal/port/driven"
)

const (
	brokenBucket = "broken_streams"
	brokenKey    = "ledger"
)

// BrokenBoltDBStore implements the BrokenStore port using BoltDB.
// The whole ledger is one JSON object {url: epoch millis} under a single key.
type BrokenBoltDBStore struct {
	db *bbolt.DB
}

// NewBrokenBoltDBStore creates a new BoltDB-backed broken ledger store.
func NewBrokenBoltDBStore(db *bbolt.DB) (*BrokenBoltDBStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(brokenBucket))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &BrokenBoltDBStore{db: db}, nil
}

// Load returns the persisted ledger. A missing or corrupt record yields an empty ledger.
func (s *BrokenBoltDBStore) Load(ctx context.Context) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make(map[string]time.Time)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(brokenBucket))
		if bucket == nil {
			return errors.New("broken_streams bucket not found")
		}

		data := bucket.Get([]byte(brokenKey))
		if data == nil {
			return nil
		}

		var raw map[string]int64
		if err := json.Unmarshal(data, &raw); err != nil {
			// A corrupt ledger only loses failure history.
			return nil
		}
		for url, ms := range raw {
			entries[url] = time.UnixMilli(ms)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the persisted ledger.
func (s *BrokenBoltDBStore) Save(ctx context.Context, entries map[string]time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := make(map[string]int64, len(entries))
	for url, at := range entries {
		raw[url] = at.UnixMilli()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(brokenBucket))
		if bucket == nil {
			return errors.New("broken_streams bucket not found")
		}
		return bucket.Put([]byte(brokenKey), data)
	})
}

var _ port.BrokenStore = (*BrokenBoltDBStore)(nil)
