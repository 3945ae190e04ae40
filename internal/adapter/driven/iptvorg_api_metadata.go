package driven

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alorle/gazibo/internal/channel"
	port "github.com/alorle/gazibo/internal/port/driven"
)

// DefaultAPIBaseURL is the root of the iptv-org metadata API.
const DefaultAPIBaseURL = "https://iptv-org.github.io/api"

// categoryMap folds iptv-org API categories onto the catalog filter categories.
var categoryMap = map[string]string{
	"animation":     channel.CategoryKids,
	"auto":          channel.CategoryOther,
	"business":      channel.CategoryNews,
	"classic":       channel.CategoryEntertainment,
	"comedy":        channel.CategoryEntertainment,
	"cooking":       channel.CategoryEntertainment,
	"culture":       channel.CategoryEntertainment,
	"documentary":   channel.CategoryDocumentary,
	"education":     channel.CategoryDocumentary,
	"entertainment": channel.CategoryEntertainment,
	"family":        channel.CategoryEntertainment,
	"general":       channel.CategoryEntertainment,
	"kids":          channel.CategoryKids,
	"legislative":   channel.CategoryNews,
	"lifestyle":     channel.CategoryEntertainment,
	"movies":        channel.CategoryMovies,
	"music":         channel.CategoryMusic,
	"news":          channel.CategoryNews,
	"outdoor":       channel.CategoryEntertainment,
	"relax":         channel.CategoryEntertainment,
	"religious":     channel.CategoryReligious,
	"science":       channel.CategoryDocumentary,
	"series":        channel.CategoryEntertainment,
	"shop":          channel.CategoryOther,
	"sports":        channel.CategorySports,
	"travel":        channel.CategoryDocumentary,
	"weather":       channel.CategoryNews,
	"xxx":           channel.CategoryOther,
}

// MapCategory returns the catalog category for a list of API categories.
// The first mappable entry wins; a non-empty list without one maps to "other".
// The boolean is false for an empty list.
func MapCategory(apiCategories []string) (string, bool) {
	if len(apiCategories) == 0 {
		return "", false
	}
	for _, c := range apiCategories {
		if mapped, ok := categoryMap[strings.ToLower(c)]; ok {
			return mapped, true
		}
	}
	return channel.CategoryOther, true
}

type apiChannel struct {
	ID         string   `json:"id"`
	Categories []string `json:"categories"`
	IsNSFW     bool     `json:"is_nsfw"`
}

type apiLogo struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

type apiBlock struct {
	Channel string `json:"channel"`
}

// IPTVOrgAPIMetadata implements the CatalogMetadata port with data from the
// iptv-org API. Until Load has run, EnrichAndFilter returns its input unchanged.
type IPTVOrgAPIMetadata struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	channels map[string]apiChannel
	logos    map[string]string
	dmca     map[string]struct{}
}

// NewIPTVOrgAPIMetadata creates a metadata adapter rooted at baseURL.
func NewIPTVOrgAPIMetadata(baseURL string, logger *slog.Logger) *IPTVOrgAPIMetadata {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return &IPTVOrgAPIMetadata{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultFetchTimeout,
		},
		logger:   logger,
		channels: make(map[string]apiChannel),
		logos:    make(map[string]string),
		dmca:     make(map[string]struct{}),
	}
}

// Load fetches channels.json, logos.json and blocklist.json in parallel.
// Loading is best-effort: whatever arrived is indexed and the adapter is marked
// loaded even when some files failed. The first failure is returned for logging.
func (m *IPTVOrgAPIMetadata) Load(ctx context.Context) error {
	var (
		channels []apiChannel
		logos    []apiLogo
		blocks   []apiBlock
		g        errgroup.Group
	)
	g.Go(func() error { return m.fetchJSON(ctx, "channels.json", &channels) })
	g.Go(func() error { return m.fetchJSON(ctx, "logos.json", &logos) })
	g.Go(func() error { return m.fetchJSON(ctx, "blocklist.json", &blocks) })
	err := g.Wait()

	byID := make(map[string]apiChannel, len(channels))
	for _, ch := range channels {
		if ch.ID != "" {
			byID[ch.ID] = ch
		}
	}
	logoByID := make(map[string]string)
	for _, l := range logos {
		if l.Channel == "" || l.URL == "" {
			continue
		}
		if _, ok := logoByID[l.Channel]; !ok {
			logoByID[l.Channel] = l.URL
		}
	}
	dmca := make(map[string]struct{})
	for _, b := range blocks {
		if b.Channel != "" {
			dmca[b.Channel] = struct{}{}
		}
	}

	m.mu.Lock()
	m.channels = byID
	m.logos = logoByID
	m.dmca = dmca
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info("catalog metadata loaded",
		"channels", len(byID),
		"logos", len(logoByID),
		"dmca_blocks", len(dmca),
	)
	return err
}

// Loaded reports whether Load has completed at least once.
func (m *IPTVOrgAPIMetadata) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// EnrichAndFilter drops NSFW and DMCA-blocked channels, upgrades categories and
// fills missing logos. Channels without a tvg-id are kept as they are.
func (m *IPTVOrgAPIMetadata) EnrichAndFilter(channels []channel.Channel) []channel.Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]channel.Channel, 0, len(channels))
	if !m.loaded {
		return append(out, channels...)
	}

	for _, ch := range channels {
		id := ch.TVGID()
		if id == "" {
			out = append(out, ch)
			continue
		}
		if _, blocked := m.dmca[id]; blocked {
			continue
		}
		meta, known := m.channels[id]
		if known && meta.IsNSFW {
			continue
		}
		if known {
			if category, ok := MapCategory(meta.Categories); ok {
				ch = ch.WithCategory(category)
			}
		}
		if logo, ok := m.logos[id]; ok && ch.Logo() == "" {
			ch = ch.WithLogo(logo)
		}
		out = append(out, ch)
	}
	return out
}

// fetchJSON decodes one API file into target. A not-ok status leaves target empty.
func (m *IPTVOrgAPIMetadata) fetchJSON(ctx context.Context, name string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", name, err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch %s: %w", port.ErrNetwork, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d for %s", port.ErrNotFound, resp.StatusCode, name)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// Ensure IPTVOrgAPIMetadata implements the driven.CatalogMetadata interface
var _ port.CatalogMetadata = (*IPTVOrgAPIMetadata)(nil)
