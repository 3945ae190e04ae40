// Package broken tracks stream URLs that recently failed to play.
package broken

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alorle/gazibo/internal/port/driven"
	"github.com/alorle/gazibo/metrics"
)

// DefaultHorizon is how long a failure suppresses a stream.
const DefaultHorizon = 24 * time.Hour

// Entry is one locally recorded failure.
type Entry struct {
	URL      string
	MarkedAt time.Time
}

// Ledger is the time-bounded set of broken streams plus an external,
// always-blocked set it never modifies.
type Ledger struct {
	store     driven.BrokenStore
	blocklist driven.Blocklist
	horizon   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHorizon sets how long a broken mark lasts.
func WithHorizon(d time.Duration) Option {
	return func(l *Ledger) { l.horizon = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger for pruning and marking messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Load reads the persisted ledger, drops entries older than the horizon and
// persists the pruned result before returning. blocklist may be nil.
func Load(ctx context.Context, store driven.BrokenStore, blocklist driven.Blocklist, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		blocklist: blocklist,
		horizon:   DefaultHorizon,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load broken ledger: %w", err)
	}
	if entries == nil {
		entries = make(map[string]time.Time)
	}

	pruned := 0
	for url, at := range entries {
		if l.expired(at) {
			delete(entries, url)
			pruned++
		}
	}
	l.entries = entries

	if pruned > 0 {
		if err := store.Save(ctx, entries); err != nil {
			return nil, fmt.Errorf("failed to save pruned broken ledger: %w", err)
		}
		l.logger.Info("pruned expired broken entries", "count", pruned, "remaining", len(entries))
	}

	return l, nil
}

// MarkBroken records url as failing now and persists the ledger.
func (l *Ledger) MarkBroken(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("cannot mark empty url as broken")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[url] = l.now()
	metrics.RecordBrokenMark()
	if err := l.store.Save(ctx, maps.Clone(l.entries)); err != nil {
		return fmt.Errorf("failed to persist broken ledger: %w", err)
	}
	l.logger.Info("marked stream broken", "url", url)
	return nil
}

// IsBroken reports whether url is blocked or failed within the horizon.
// An expired entry found here is dropped from memory; the next write persists it.
func (l *Ledger) IsBroken(url string) bool {
	if l.Blocked(url) {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	at, ok := l.entries[url]
	if !ok {
		return false
	}
	if l.expired(at) {
		delete(l.entries, url)
		return false
	}
	return true
}

// Blocked reports whether url is in the external blocklist only.
func (l *Ledger) Blocked(url string) bool {
	return l.blocklist != nil && l.blocklist.Contains(url)
}

// Clear drops every locally recorded entry. The external blocklist is untouched.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]time.Time)
	if err := l.store.Save(ctx, map[string]time.Time{}); err != nil {
		return fmt.Errorf("failed to persist broken ledger: %w", err)
	}
	return nil
}

// Entries lists non-expired entries, most recent first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for url, at := range l.entries {
		if !l.expired(at) {
			out = append(out, Entry{URL: url, MarkedAt: at})
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := b.MarkedAt.Compare(a.MarkedAt); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})
	return out
}

func (l *Ledger) expired(at time.Time) bool {
	return l.now().Sub(at) > l.horizon
}
