// Package cache keeps per-country channel lists in a size- and time-bounded
// persistent store, fronted by an in-process mirror.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/port/driven"
	"github.com/alorle/gazibo/metrics"
)

const (
	DefaultTTL      = time.Hour
	DefaultMaxBytes = 4 << 20
)

type mirrorEntry struct {
	at       time.Time
	channels []channel.Channel
}

// Cache is the persistent channel cache. Recency is tracked per country code in
// an access order that lives only in memory; the least recently touched code is
// the first eviction victim when the store grows over the byte budget.
type Cache struct {
	store    driven.CacheStore
	ttl      time.Duration
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	mirror map[string]mirrorEntry
	order  []string
	seeded bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the age after which an entry is stale.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxBytes sets the byte budget of the persistent store.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) { c.maxBytes = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for dropped writes and evictions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a cache on top of store.
func New(store driven.CacheStore, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		ttl:      DefaultTTL,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		logger:   slog.Default(),
		mirror:   make(map[string]mirrorEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Mirror returns the in-process copy for code, regardless of age.
func (c *Cache) Mirror(code string) ([]channel.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.mirror[normalize(code)]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.channels), true
}

// Get returns the channels stored for code. Entries older than the TTL are
// reported absent unless allowStale is set. A hit moves code to the most
// recently used end of the access order.
func (c *Cache) Get(ctx context.Context, code string, allowStale bool) ([]channel.Channel, bool) {
	code = normalize(code)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seed(ctx)

	if e, ok := c.mirror[code]; ok {
		if !allowStale && c.expired(e.at) {
			return nil, false
		}
		c.touch(code)
		return slices.Clone(e.channels), true
	}

	data, ok, err := c.store.Get(ctx, code)
	if err != nil {
		c.logger.Warn("cache read failed", "country", code, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	at, channels, err := decodeRecord(data)
	if err != nil {
		c.logger.Warn("discarding corrupt cache entry", "country", code, "error", err)
		return nil, false
	}
	if !allowStale && c.expired(at) {
		return nil, false
	}

	c.mirror[code] = mirrorEntry{at: at, channels: channels}
	c.touch(code)
	return slices.Clone(channels), true
}

// Set writes channels for code. Writing is best-effort: persistent failures are
// logged and dropped, and the mirror is updated either way.
func (c *Cache) Set(ctx context.Context, code string, channels []channel.Channel) {
	code = normalize(code)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seed(ctx)

	at := c.now()
	c.mirror[code] = mirrorEntry{at: at, channels: slices.Clone(channels)}
	c.touch(code)

	data, err := encodeRecord(at, channels)
	if err != nil {
		c.logger.Error("failed to encode cache entry", "country", code, "error", err)
		return
	}

	c.evictOverBudget(ctx, code, data)

	err = c.store.Put(ctx, code, data)
	if err == nil {
		c.reportSize(ctx)
		return
	}

	c.logger.Warn("cache write failed, evicting and retrying", "country", code, "error", err)
	metrics.RecordCacheWriteFailure("retried")
	c.evictOldest(ctx, code)

	if err := c.store.Put(ctx, code, data); err != nil {
		if errors.Is(err, driven.ErrQuotaExceeded) {
			c.logger.Warn("cache quota still exceeded, entry kept in memory only", "country", code)
		} else {
			c.logger.Error("cache write dropped", "country", code, "error", err)
		}
		metrics.RecordCacheWriteFailure("dropped")
		return
	}
	c.reportSize(ctx)
}

// ClearAll removes every entry from the store, the mirror and the access order.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mirror = make(map[string]mirrorEntry)
	c.order = nil
	c.seeded = true
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	metrics.SetCacheBytes(0)
	return nil
}

// Invalidate removes the entry for one country.
func (c *Cache) Invalidate(ctx context.Context, code string) error {
	code = normalize(code)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.forget(code)
	return c.store.Delete(ctx, code)
}

// AccessOrder returns the country codes from least to most recently touched.
func (c *Cache) AccessOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

func (c *Cache) expired(at time.Time) bool {
	return c.now().Sub(at) > c.ttl
}

// seed puts entries persisted by a previous run at the front of the access order
// so they are evictable before anything touched in this run.
func (c *Cache) seed(ctx context.Context) {
	if c.seeded {
		return
	}
	keys, err := c.store.Keys(ctx)
	if err != nil {
		c.logger.Warn("failed to list cache keys", "error", err)
		return
	}
	c.seeded = true
	slices.Sort(keys)
	var prior []string
	for _, k := range keys {
		if !slices.Contains(c.order, k) {
			prior = append(prior, k)
		}
	}
	c.order = append(prior, c.order...)
}

func (c *Cache) touch(code string) {
	if i := slices.Index(c.order, code); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	c.order = append(c.order, code)
}

func (c *Cache) forget(code string) {
	delete(c.mirror, code)
	if i := slices.Index(c.order, code); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// evictOverBudget evicts least recently used entries other than keep while
// writing data under keep would leave the store over budget.
func (c *Cache) evictOverBudget(ctx context.Context, keep string, data []byte) {
	for {
		size, err := c.store.Size(ctx)
		if err != nil {
			c.logger.Warn("failed to measure cache size", "error", err)
			return
		}
		projected := size + driven.RecordSize(keep, data)
		if old, ok, err := c.store.Get(ctx, keep); err == nil && ok {
			projected -= driven.RecordSize(keep, old)
		}
		if projected <= c.maxBytes {
			return
		}
		if !c.evictOldest(ctx, keep) {
			return
		}
	}
}

// evictOldest removes the least recently used entry other than keep. It reports
// whether a victim existed.
func (c *Cache) evictOldest(ctx context.Context, keep string) bool {
	for _, victim := range c.order {
		if victim == keep {
			continue
		}
		c.forget(victim)
		if err := c.store.Delete(ctx, victim); err != nil {
			c.logger.Warn("failed to evict cache entry", "country", victim, "error", err)
		}
		c.logger.Debug("evicted cache entry", "country", victim)
		metrics.RecordCacheEviction()
		return true
	}
	return false
}

func (c *Cache) reportSize(ctx context.Context) {
	if size, err := c.store.Size(ctx); err == nil {
		metrics.SetCacheBytes(size)
	}
}
