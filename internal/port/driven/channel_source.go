package driven

import (
	"context"

	"github.com/alorle/gazibo/internal/channel"
)

// ChannelSource produces the channel list of a country from an upstream catalog.
// This is a driven port implemented by concrete adapters (e.g., HTTP playlist host).
type ChannelSource interface {
	// Fetch returns the channels published for the normalized country code, in
	// upstream order. Failures wrap ErrNetwork; not-ok responses wrap ErrNotFound.
	Fetch(ctx context.Context, countryCode string) ([]channel.Channel, error)
}

// CatalogMetadata filters and enriches freshly loaded channels with catalog-wide
// metadata (NSFW/DMCA removal, category and logo upgrade).
type CatalogMetadata interface {
	// EnrichAndFilter must be pure: it returns a new slice and never mutates its input.
	EnrichAndFilter(channels []channel.Channel) []channel.Channel
}

// Blocklist is an externally supplied set of stream URLs that are always blocked.
type Blocklist interface {
	Contains(url string) bool
}
