package application

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/alorle/gazibo/internal/channel"
)

// ErrIndexOutOfRange is returned when playing a position outside the visible lineup.
var ErrIndexOutOfRange = errors.New("channel index out of range")

// Lineup is the channel list currently on screen.
type Lineup struct {
	Country    string
	Query      channel.Query
	Total      int
	Channels   []channel.Channel
	Categories []string
	Focused    int
}

// LineupService keeps the selected country and filter, and navigates the
// visible channels for the player.
type LineupService struct {
	catalog *CatalogService
	player  *PlayerService
	logger  *slog.Logger

	mu      sync.Mutex
	country string
	query   channel.Query
	all     []channel.Channel
	visible []channel.Channel
	focused int
}

func NewLineupService(catalog *CatalogService, player *PlayerService, logger *slog.Logger) *LineupService {
	return &LineupService{
		catalog: catalog,
		player:  player,
		logger:  logger,
		query:   channel.Query{Category: channel.CategoryAll},
		focused: -1,
	}
}

// Select loads a country and applies q to it.
func (s *LineupService) Select(ctx context.Context, countryCode string, q channel.Query) (Lineup, error) {
	code, err := channel.NormalizeCountryCode(countryCode)
	if err != nil {
		return Lineup{}, err
	}
	channels, err := s.catalog.GetChannels(ctx, code)
	if err != nil {
		return Lineup{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code != s.country {
		s.focused = -1
	}
	s.country = code
	s.query = q
	s.all = channels
	s.applyLocked()
	return s.lineupLocked(), nil
}

// Country returns the selected country, or "" before the first Select.
func (s *LineupService) Country() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.country
}

// Current returns the lineup as last selected or refreshed.
func (s *LineupService) Current() Lineup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineupLocked()
}

// Replace swaps in a refreshed channel list for country. An empty list or a
// list for another country is ignored; it reports whether the lineup changed.
func (s *LineupService) Replace(countryCode string, channels []channel.Channel) bool {
	if len(channels) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if countryCode != s.country {
		return false
	}
	before := len(s.all)
	s.all = slices.Clone(channels)
	s.applyLocked()
	if len(s.all) > before {
		s.logger.Info("lineup refreshed with new channels",
			"country", s.country, "before", before, "after", len(s.all))
	}
	return true
}

// PlayIndex plays the channel at position i of the visible lineup.
func (s *LineupService) PlayIndex(ctx context.Context, i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.visible) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	ch := s.visible[i]
	s.focused = i
	s.mu.Unlock()

	return s.player.Play(ctx, ch)
}

// PlayURL plays the channel with the given stream URL from the selected country.
func (s *LineupService) PlayURL(ctx context.Context, url string) error {
	match := func(ch channel.Channel) bool { return ch.URL() == url }

	s.mu.Lock()
	var ch channel.Channel
	if i := slices.IndexFunc(s.visible, match); i >= 0 {
		ch = s.visible[i]
		s.focused = i
	} else if j := slices.IndexFunc(s.all, match); j >= 0 {
		ch = s.all[j]
	} else {
		s.mu.Unlock()
		return channel.ErrChannelNotFound
	}
	s.mu.Unlock()

	return s.player.Play(ctx, ch)
}

// PlayNext plays the channel after the focused one, wrapping to the first.
func (s *LineupService) PlayNext(ctx context.Context) error {
	return s.step(ctx, 1)
}

// PlayPrev plays the channel before the focused one, wrapping to the last.
func (s *LineupService) PlayPrev(ctx context.Context) error {
	return s.step(ctx, -1)
}

func (s *LineupService) step(ctx context.Context, dir int) error {
	s.mu.Lock()
	n := len(s.visible)
	if n == 0 {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	next := s.focused + dir
	switch {
	case s.focused < 0 && dir < 0, next < 0:
		next = n - 1
	case next >= n:
		next = 0
	}
	s.mu.Unlock()

	return s.PlayIndex(ctx, next)
}

// AdvanceFrom is the auto-skip navigator: it plays the channel after from.
func (s *LineupService) AdvanceFrom(ctx context.Context, from channel.Channel) {
	s.mu.Lock()
	if i := slices.IndexFunc(s.visible, func(ch channel.Channel) bool { return ch.URL() == from.URL() }); i >= 0 {
		s.focused = i
	}
	s.mu.Unlock()

	if err := s.PlayNext(ctx); err != nil && !errors.Is(err, ErrPlayerStopped) && !errors.Is(err, context.Canceled) {
		s.logger.Warn("auto-skip failed", "from", from.URL(), "error", err)
	}
}

func (s *LineupService) applyLocked() {
	focusedURL := ""
	if s.focused >= 0 && s.focused < len(s.visible) {
		focusedURL = s.visible[s.focused].URL()
	}

	s.visible = channel.Filter(s.all, s.query)

	s.focused = -1
	if focusedURL != "" {
		s.focused = slices.IndexFunc(s.visible, func(ch channel.Channel) bool { return ch.URL() == focusedURL })
	}
}

func (s *LineupService) lineupLocked() Lineup {
	return Lineup{
		Country:    s.country,
		Query:      s.query,
		Total:      len(s.all),
		Channels:   slices.Clone(s.visible),
		Categories: channel.Categories(s.all),
		Focused:    s.focused,
	}
}
