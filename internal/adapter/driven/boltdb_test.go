package driven

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.etcd.io/bbolt"

	port "github.com/alorle/gazibo/internal/port/driven"
)

// openTestDB creates a temporary BoltDB instance for testing.
func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewCacheBoltDBStore(t *testing.T) {
	t.Run("creates bucket", func(t *testing.T) {
		db := openTestDB(t)

		store, err := NewCacheBoltDBStore(db, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := store.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})

	t.Run("returns error for nil database", func(t *testing.T) {
		store, err := NewCacheBoltDBStore(nil, 0)
		if err == nil {
			t.Fatal("expected error for nil database")
		}
		if store != nil {
			t.Error("expected nil store")
		}
	})
}

func TestCacheBoltDBStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store, err := NewCacheBoltDBStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if _, ok, err := store.Get(ctx, "in"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.Put(ctx, "in", []byte(`{"timestamp":1}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "us", []byte(`{"timestamp":2}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := store.Get(ctx, "in")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != `{"timestamp":1}` {
		t.Errorf("Get() = %s", got)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if diff := cmp.Diff([]string{"in", "us"}, keys); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	size, err := store.Size(ctx)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	want := port.RecordSize("in", []byte(`{"timestamp":1}`)) + port.RecordSize("us", []byte(`{"timestamp":2}`))
	if size != want {
		t.Errorf("Size() = %d, want %d", size, want)
	}

	if err := store.Delete(ctx, "in"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "in"); ok {
		t.Error("expected deleted key to be absent")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if keys, _ := store.Keys(ctx); len(keys) != 0 {
		t.Errorf("expected no keys after Clear(), got %v", keys)
	}
	// The bucket is usable after Clear.
	if err := store.Put(ctx, "uk", []byte("{}")); err != nil {
		t.Errorf("Put() after Clear() error = %v", err)
	}
}

func TestCacheBoltDBStore_Quota(t *testing.T) {
	ctx := context.Background()
	value := []byte("0123456789")
	// Each record is 2 * (2 + 10) = 24 bytes.
	store, err := NewCacheBoltDBStore(openTestDB(t), 48)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Put(ctx, "in", value); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "us", value); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "uk", value); !errors.Is(err, port.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := store.Put(ctx, "in", value); err != nil {
		t.Errorf("overwrite within quota failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "uk"); ok {
		t.Error("rejected write must not be stored")
	}
}

func TestCacheBoltDBStore_RespectsContextCancellation(t *testing.T) {
	store, err := NewCacheBoltDBStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, "in", []byte("{}")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() expected context.Canceled, got %v", err)
	}
	if _, _, err := store.Get(ctx, "in"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() expected context.Canceled, got %v", err)
	}
	if _, err := store.Size(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Size() expected context.Canceled, got %v", err)
	}
}

func TestBrokenBoltDBStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewBrokenBoltDBStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty ledger, got %v", empty)
	}

	at := time.UnixMilli(1767225600123)
	entries := map[string]time.Time{"http://a/live.m3u8": at}
	if err := store.Save(ctx, entries); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got["http://a/live.m3u8"].Equal(at) || len(got) != 1 {
		t.Errorf("Load() = %v, want %v", got, entries)
	}

	// Stored as epoch millis under a single key.
	err = db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(brokenBucket)).Get([]byte(brokenKey))
		if string(raw) != `{"http://a/live.m3u8":1767225600123}` {
			t.Errorf("persisted ledger = %s", raw)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to inspect database: %v", err)
	}
}

func TestBrokenBoltDBStore_CorruptLedgerIsEmpty(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewBrokenBoltDBStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(brokenBucket)).Put([]byte(brokenKey), []byte("not json"))
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty ledger, got %v", got)
	}
}

func TestBrokenAndCacheBucketsAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cacheStore, _ := NewCacheBoltDBStore(db, 0)
	brokenStore, _ := NewBrokenBoltDBStore(db)

	_ = brokenStore.Save(ctx, map[string]time.Time{"http://a": time.Now()})
	_ = cacheStore.Put(ctx, "in", []byte("{}"))

	if err := cacheStore.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ := brokenStore.Load(ctx)
	if len(got) != 1 {
		t.Errorf("clearing the cache touched the broken ledger: %v", got)
	}
	if size, _ := cacheStore.Size(ctx); size != 0 {
		t.Errorf("broken ledger counted in cache size: %d", size)
	}
}

func TestPurgeLegacyBuckets(t *testing.T) {
	db := openTestDB(t)
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{"channels", "subscriptions", cacheBucket} {
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	removed, err := PurgeLegacyBuckets(db)
	if err != nil {
		t.Fatalf("PurgeLegacyBuckets() error = %v", err)
	}
	if diff := cmp.Diff([]string{"channels", "subscriptions"}, removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte("channels")) != nil {
			t.Error("legacy bucket still present")
		}
		if tx.Bucket([]byte(cacheBucket)) == nil {
			t.Error("current bucket was removed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to inspect database: %v", err)
	}

	// Second run is a no-op.
	removed, err = PurgeLegacyBuckets(db)
	if err != nil || len(removed) != 0 {
		t.Errorf("second purge = %v, %v", removed, err)
	}
}
