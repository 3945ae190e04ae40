package driven

import (
	"context"
	"errors"

	"go.etcd.io/bbolt"

	port "github.com/alorle/gazibo/internal/port/driven"
)

const (
	cacheBucket = "channel_cache"
)

// CacheBoltDBStore implements the CacheStore port using BoltDB.
// One record per country code lives in the channel_cache bucket.
type CacheBoltDBStore struct {
	db    *bbolt.DB
	quota int64
}

// NewCacheBoltDBStore creates a new BoltDB-backed cache store. quota caps the
// total RecordSize of the bucket; zero means unlimited.
func NewCacheBoltDBStore(db *bbolt.DB, quota int64) (*CacheBoltDBStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &CacheBoltDBStore{db: db, quota: quota}, nil
}

// Get retrieves the record stored under key.
func (s *CacheBoltDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return errors.New("channel_cache bucket not found")
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// Values are only valid during the transaction
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// Put stores value under key, rejecting writes that would exceed the quota.
func (s *CacheBoltDBStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return errors.New("channel_cache bucket not found")
		}

		if s.quota > 0 {
			size, err := bucketSize(bucket)
			if err != nil {
				return err
			}
			if old := bucket.Get([]byte(key)); old != nil {
				size -= port.RecordSize(key, old)
			}
			if size+port.RecordSize(key, value) > s.quota {
				return port.ErrQuotaExceeded
			}
		}

		return bucket.Put([]byte(key), value)
	})
}

// Delete removes key. Missing keys are ignored.
func (s *CacheBoltDBStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return errors.New("channel_cache bucket not found")
		}
		return bucket.Delete([]byte(key))
	})
}

// Keys lists every stored country code in key order.
func (s *CacheBoltDBStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return errors.New("channel_cache bucket not found")
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Size returns the total footprint of the bucket.
func (s *CacheBoltDBStore) Size(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var size int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return errors.New("channel_cache bucket not found")
		}
		var err error
		size, err = bucketSize(bucket)
		return err
	})
	return size, err
}

// Clear drops and recreates the bucket.
func (s *CacheBoltDBStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(cacheBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(cacheBucket))
		return err
	})
}

// Ping checks that the database is readable.
func (s *CacheBoltDBStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(cacheBucket)) == nil {
			return errors.New("channel_cache bucket not found")
		}
		return nil
	})
}

func bucketSize(bucket *bbolt.Bucket) (int64, error) {
	var size int64
	err := bucket.ForEach(func(k, v []byte) error {
		size += port.RecordSize(string(k), v)
		return nil
	})
	return size, err
}

var _ port.CacheStore = (*CacheBoltDBStore)(nil)
