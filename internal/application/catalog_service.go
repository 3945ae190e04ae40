package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/alorle/gazibo/internal/broken"
	"github.com/alorle/gazibo/internal/cache"
	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/m3u"
	"github.com/alorle/gazibo/internal/port/driven"
	"github.com/alorle/gazibo/metrics"
)

// ErrCatalogUnavailable is returned when every tier of the fallback chain failed.
// It wraps the network error of the last fetch attempt.
var ErrCatalogUnavailable = errors.New("channel catalog unavailable")

// CatalogService loads per-country channel lists through a tiered fallback
// chain and keeps track of streams that recently failed.
type CatalogService struct {
	source    driven.ChannelSource
	metadata  driven.CatalogMetadata
	blocklist driven.Blocklist
	cache     *cache.Cache
	ledger    *broken.Ledger
	logger    *slog.Logger

	flight singleflight.Group
}

// NewCatalogService creates a new CatalogService. blocklist may be nil.
func NewCatalogService(
	source driven.ChannelSource,
	metadata driven.CatalogMetadata,
	blocklist driven.Blocklist,
	cache *cache.Cache,
	ledger *broken.Ledger,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		source:    source,
		metadata:  metadata,
		blocklist: blocklist,
		cache:     cache,
		ledger:    ledger,
		logger:    logger,
	}
}

// GetChannels returns the channels of a country, trying in order the in-process
// mirror, a fresh cache entry, the network and finally a stale cache entry.
// The result is always sorted by health.
// Returns channel.ErrInvalidCountryCode for malformed codes and
// ErrCatalogUnavailable when every tier failed.
func (s *CatalogService) GetChannels(ctx context.Context, countryCode string) ([]channel.Channel, error) {
	code, err := channel.NormalizeCountryCode(countryCode)
	if err != nil {
		return nil, err
	}

	// Mirror lists are filtered again: the blocklist and metadata may have
	// changed since they were stored.
	if channels, ok := s.cache.Mirror(code); ok {
		metrics.RecordTierHit("mirror")
		return s.SortByHealth(s.process(channels)), nil
	}

	if channels, ok := s.cache.Get(ctx, code, false); ok {
		metrics.RecordTierHit("fresh")
		return s.SortByHealth(s.process(channels)), nil
	}

	channels, fetchErr := s.fetch(ctx, code)
	if fetchErr == nil {
		metrics.RecordTierHit("network")
		return s.SortByHealth(channels), nil
	}

	if channels, ok := s.cache.Get(ctx, code, true); ok {
		s.logger.Warn("serving stale channel list", "country", code, "error", fetchErr)
		metrics.RecordTierHit("stale")
		return s.SortByHealth(s.process(channels)), nil
	}

	metrics.RecordTierHit("none")
	return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, fetchErr)
}

// RefreshChannels fetches a country from the network regardless of any cached
// data. On failure it reports false and leaves every cache tier untouched.
func (s *CatalogService) RefreshChannels(ctx context.Context, countryCode string) ([]channel.Channel, bool) {
	code, err := channel.NormalizeCountryCode(countryCode)
	if err != nil {
		return nil, false
	}

	channels, err := s.fetch(ctx, code)
	if err != nil {
		s.logger.Warn("channel refresh failed, keeping existing data", "country", code, "error", err)
		return nil, false
	}
	return s.SortByHealth(channels), true
}

// fetch loads a country from the network, filters and enriches it and writes
// it through to the cache. Concurrent fetches for one country share a request.
func (s *CatalogService) fetch(ctx context.Context, code string) ([]channel.Channel, error) {
	v, err, _ := s.flight.Do(code, func() (any, error) {
		raw, err := s.source.Fetch(ctx, code)
		if err != nil {
			return nil, err
		}
		channels := s.process(raw)
		s.cache.Set(ctx, code, channels)
		s.logger.Info("channel list fetched", "country", code, "fetched", len(raw), "kept", len(channels))
		return channels, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]channel.Channel)), nil
}

// process drops always-blocked streams and applies catalog metadata.
func (s *CatalogService) process(channels []channel.Channel) []channel.Channel {
	kept := channels
	if s.blocklist != nil {
		kept = slices.DeleteFunc(slices.Clone(channels), func(ch channel.Channel) bool {
			return s.blocklist.Contains(ch.URL())
		})
	}
	if s.metadata == nil {
		return kept
	}
	return s.metadata.EnrichAndFilter(kept)
}

// SortByHealth moves broken channels after healthy ones. The sort is stable,
// so relative order inside each group is preserved.
func (s *CatalogService) SortByHealth(channels []channel.Channel) []channel.Channel {
	sorted := slices.Clone(channels)
	brokenURLs := make(map[string]bool, len(sorted))
	for _, ch := range sorted {
		brokenURLs[ch.URL()] = s.ledger.IsBroken(ch.URL())
	}

	rank := func(ch channel.Channel) int {
		if brokenURLs[ch.URL()] {
			return 1
		}
		return 0
	}
	slices.SortStableFunc(sorted, func(a, b channel.Channel) int {
		return rank(a) - rank(b)
	})
	return sorted
}

// MarkBroken records a playback failure for url.
func (s *CatalogService) MarkBroken(ctx context.Context, url string) error {
	return s.ledger.MarkBroken(ctx, url)
}

// IsBroken reports whether url is blocked or failed recently.
func (s *CatalogService) IsBroken(url string) bool {
	return s.ledger.IsBroken(url)
}

// BrokenEntries lists locally recorded failures, most recent first.
func (s *CatalogService) BrokenEntries() []broken.Entry {
	return s.ledger.Entries()
}

// ClearBrokenLedger forgets every recorded failure. The blocklist is unaffected.
func (s *CatalogService) ClearBrokenLedger(ctx context.Context) error {
	return s.ledger.Clear(ctx)
}

// ClearCache removes every cached channel list.
func (s *CatalogService) ClearCache(ctx context.Context) error {
	return s.cache.ClearAll(ctx)
}

// InvalidateCountry removes the cached channel list of one country.
func (s *CatalogService) InvalidateCountry(ctx context.Context, countryCode string) error {
	code, err := channel.NormalizeCountryCode(countryCode)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, code)
}

// Categories returns the distinct categories of channels.
func (s *CatalogService) Categories(channels []channel.Channel) []string {
	return channel.Categories(channels)
}

// Filter applies a category and search query to channels.
func (s *CatalogService) Filter(channels []channel.Channel, q channel.Query) []channel.Channel {
	return channel.Filter(channels, q)
}

// ExportPlaylist writes the channels of a country as an extended M3U playlist,
// healthy channels first.
func (s *CatalogService) ExportPlaylist(ctx context.Context, countryCode string, w io.Writer) error {
	channels, err := s.GetChannels(ctx, countryCode)
	if err != nil {
		return err
	}

	enc := m3u.NewEncoder(nil)
	for _, ch := range channels {
		enc.AddEntry(&m3u.Entry{
			Title:    ch.Name(),
			URI:      ch.URL(),
			Duration: -1,
			TVGTags: &m3u.TVGTags{
				ID:         ch.TVGID(),
				Name:       ch.Name(),
				Logo:       ch.Logo(),
				GroupTitle: ch.Group(),
			},
		})
	}
	return enc.Encode(w)
}
