package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alorle/gazibo/internal/channel"
)

func TestRefreshScheduler_RefreshNow(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing selected", func(t *testing.T) {
		f := newLineupFixture(t, nil)
		s := NewRefreshScheduler(f.catalog.service, f.lineup, time.Minute, newTestLogger())
		if s.RefreshNow(ctx) {
			t.Error("RefreshNow() = true without a selected country")
		}
		if n := f.catalog.source.calls.Load(); n != 0 {
			t.Errorf("source called %d times", n)
		}
	})

	t.Run("failure keeps the lineup", func(t *testing.T) {
		f := newLineupFixture(t, map[string][]channel.Channel{"in": sportsAndNews("in")})
		if _, err := f.lineup.Select(ctx, "in", channel.Query{Category: channel.CategoryAll}); err != nil {
			t.Fatal(err)
		}
		f.catalog.source.fetchFunc = func(context.Context, string) ([]channel.Channel, error) {
			return nil, errors.New("offline")
		}

		s := NewRefreshScheduler(f.catalog.service, f.lineup, time.Minute, newTestLogger())
		if s.RefreshNow(ctx) {
			t.Error("RefreshNow() = true after a failed fetch")
		}
		if f.lineup.Current().Total != 3 {
			t.Errorf("lineup total = %d, want 3", f.lineup.Current().Total)
		}
	})

	t.Run("success replaces the lineup", func(t *testing.T) {
		f := newLineupFixture(t, map[string][]channel.Channel{"in": sportsAndNews("in")})
		if _, err := f.lineup.Select(ctx, "in", channel.Query{Category: channel.CategoryAll}); err != nil {
			t.Fatal(err)
		}
		f.catalog.source.fetchFunc = func(context.Context, string) ([]channel.Channel, error) {
			return sportsAndNews("in")[:1], nil
		}

		s := NewRefreshScheduler(f.catalog.service, f.lineup, time.Minute, newTestLogger())
		if !s.RefreshNow(ctx) {
			t.Error("RefreshNow() = false after a successful fetch")
		}
		if f.lineup.Current().Total != 1 {
			t.Errorf("lineup total = %d, want 1", f.lineup.Current().Total)
		}
	})
}

func TestRefreshScheduler_Run(t *testing.T) {
	t.Run("disabled returns immediately", func(t *testing.T) {
		f := newLineupFixture(t, nil)
		s := NewRefreshScheduler(f.catalog.service, f.lineup, 0, newTestLogger())

		done := make(chan struct{})
		go func() {
			s.Run(context.Background())
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run() with zero interval did not return")
		}
	})

	t.Run("ticks until cancelled", func(t *testing.T) {
		f := newLineupFixture(t, map[string][]channel.Channel{"in": sportsAndNews("in")})
		if _, err := f.lineup.Select(context.Background(), "in", channel.Query{Category: channel.CategoryAll}); err != nil {
			t.Fatal(err)
		}
		var refreshes atomic.Int32
		f.catalog.source.fetchFunc = func(context.Context, string) ([]channel.Channel, error) {
			refreshes.Add(1)
			return sportsAndNews("in"), nil
		}

		s := NewRefreshScheduler(f.catalog.service, f.lineup, 5*time.Millisecond, newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		waitFor(t, "two refreshes", func() bool { return refreshes.Load() >= 2 })
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not stop after cancel")
		}
	})
}
