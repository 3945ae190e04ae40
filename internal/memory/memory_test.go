package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alorle/gazibo/internal/port/driven"
)

func TestCacheStore_Quota(t *testing.T) {
	ctx := context.Background()
	value := []byte("0123456789")
	// "a" + 10 bytes = 11 UTF-16 units = 22 bytes per record.
	s := NewCacheStore(44)

	if err := s.Put(ctx, "a", value); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Put(ctx, "b", value); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Put(ctx, "c", value); !errors.Is(err, driven.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// Overwriting an existing key only counts the difference.
	if err := s.Put(ctx, "a", []byte("9876543210")); err != nil {
		t.Fatalf("overwrite should fit, got %v", err)
	}

	size, err := s.Size(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 44 {
		t.Errorf("Size() = %d, want 44", size)
	}

	keys, _ := s.Keys(ctx)
	if diff := cmp.Diff([]string{"a", "b"}, keys); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(0)
	_ = s.Put(ctx, "in", []byte("x"))
	_ = s.Put(ctx, "us", []byte("y"))

	if err := s.Delete(ctx, "in"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "in"); ok {
		t.Error("expected deleted key to be absent")
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting absent key returned %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size, _ := s.Size(ctx); size != 0 {
		t.Errorf("Size() after clear = %d", size)
	}
}

func TestCacheStore_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewCacheStore(0)
	if err := s.Put(ctx, "a", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ping() = %v, want context.Canceled", err)
	}
}

func TestBrokenStore_SaveIsolatesCallerMap(t *testing.T) {
	ctx := context.Background()
	s := NewBrokenStore(nil)
	at := time.Unix(1700000000, 0)

	entries := map[string]time.Time{"http://a": at}
	if err := s.Save(ctx, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries["http://b"] = at

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]time.Time{"http://a": at}, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}
