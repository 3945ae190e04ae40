package driven

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alorle/gazibo/circuitbreaker"
	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/m3u"
	port "github.com/alorle/gazibo/internal/port/driven"
	"github.com/alorle/gazibo/metrics"
)

const (
	// DefaultSourceBaseURL hosts one playlist per country at <base>/<code>.m3u
	DefaultSourceBaseURL = "https://iptv-org.github.io/iptv/countries"

	defaultFetchTimeout = 30 * time.Second
)

// IPTVOrgHTTPSource implements the ChannelSource port by downloading the
// per-country M3U playlists published by iptv-org.
type IPTVOrgHTTPSource struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewIPTVOrgHTTPSource creates a playlist source rooted at baseURL.
// breaker may be nil, in which case every fetch goes straight to the network.
func NewIPTVOrgHTTPSource(baseURL string, breaker circuitbreaker.CircuitBreaker) *IPTVOrgHTTPSource {
	if baseURL == "" {
		baseURL = DefaultSourceBaseURL
	}
	return &IPTVOrgHTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultFetchTimeout,
		},
		breaker: breaker,
	}
}

// IsSourceFailure reports whether err should count against the source breaker.
// A country without a playlist is an answer, not an outage.
func IsSourceFailure(err error) bool {
	return err != nil && !errors.Is(err, port.ErrNotFound)
}

// Fetch downloads and parses the playlist of countryCode.
func (s *IPTVOrgHTTPSource) Fetch(ctx context.Context, countryCode string) ([]channel.Channel, error) {
	var channels []channel.Channel
	fetch := func() error {
		var err error
		channels, err = s.fetch(ctx, countryCode)
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(fetch)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrHalfOpenLimitReached) {
			err = fmt.Errorf("%w: %w", port.ErrNetwork, err)
		}
	} else {
		err = fetch()
	}

	metrics.RecordSourceFetch(err == nil)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *IPTVOrgHTTPSource) fetch(ctx context.Context, code string) ([]channel.Channel, error) {
	url := fmt.Sprintf("%s/%s.m3u", s.baseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", code, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %w", port.ErrNetwork, code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d for %s", port.ErrNotFound, resp.StatusCode, code)
	}

	entries, err := m3u.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrNetwork, err)
	}

	return entriesToChannels(entries, code), nil
}

// entriesToChannels converts playlist entries into channels of one country.
// Entries that do not form a valid channel are skipped.
func entriesToChannels(entries []m3u.Entry, code string) []channel.Channel {
	channels := make([]channel.Channel, 0, len(entries))
	for _, e := range entries {
		var tags m3u.TVGTags
		if e.TVGTags != nil {
			tags = *e.TVGTags
		}
		ch, err := channel.NewChannel(e.URI, e.Title, channel.Attributes{
			Category: channel.GuessCategory(e.Title, tags.GroupTitle),
			Country:  code,
			TVGID:    tags.ID,
			Logo:     tags.Logo,
			Group:    tags.GroupTitle,
		})
		if err != nil {
			continue
		}
		channels = append(channels, ch)
	}
	return channels
}

// Ensure IPTVOrgHTTPSource implements the driven.ChannelSource interface
var _ port.ChannelSource = (*IPTVOrgHTTPSource)(nil)
