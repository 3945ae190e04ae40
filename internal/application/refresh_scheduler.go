package application

import (
	"context"
	"log/slog"
	"time"
)

// RefreshScheduler periodically re-fetches the selected country in the
// background. A failed or empty refresh leaves the lineup as it was.
type RefreshScheduler struct {
	catalog  *CatalogService
	lineup   *LineupService
	interval time.Duration
	logger   *slog.Logger
}

func NewRefreshScheduler(catalog *CatalogService, lineup *LineupService, interval time.Duration, logger *slog.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		catalog:  catalog,
		lineup:   lineup,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes every interval until ctx is done. A zero interval disables it.
func (s *RefreshScheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("background refresh disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Debug("background refresh of the selected country")
			s.RefreshNow(ctx)
		}
	}
}

// RefreshNow refreshes the selected country once and reports whether the
// lineup was replaced.
func (s *RefreshScheduler) RefreshNow(ctx context.Context) bool {
	country := s.lineup.Country()
	if country == "" {
		return false
	}

	channels, ok := s.catalog.RefreshChannels(ctx, country)
	if !ok {
		return false
	}
	return s.lineup.Replace(country, channels)
}
