package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alorle/gazibo/circuitbreaker"
	"github.com/alorle/gazibo/metrics"
)

// Pinger is implemented by dependencies that can report their own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService orchestrates health checks for the application and its dependencies.
type HealthService struct {
	db       Pinger
	upstream circuitbreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewHealthService creates a new health check service. upstream may be nil.
func NewHealthService(db Pinger, upstream circuitbreaker.CircuitBreaker, logger *slog.Logger) *HealthService {
	return &HealthService{
		db:       db,
		upstream: upstream,
		logger:   logger,
	}
}

// ComponentHealth represents the health status of a single component.
type ComponentHealth struct {
	Status string // "ok" or "error"
	Error  string // empty if status is "ok", otherwise contains error message
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status   string          // "ok" if all components are healthy, "degraded" otherwise
	DB       ComponentHealth // database health
	Upstream ComponentHealth // channel catalog upstream health
}

// Check performs health checks on all dependencies.
// Returns the overall health status and individual component statuses.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: "ok",
		DB:     ComponentHealth{Status: "ok"},
		Upstream: ComponentHealth{
			Status: "ok",
		},
	}

	if err := s.db.Ping(ctx); err != nil {
		status.DB = ComponentHealth{Status: "error", Error: err.Error()}
		status.Status = "degraded"
	}

	// An open breaker means the catalog is being served from cache only.
	if s.upstream != nil && s.upstream.State() == circuitbreaker.StateOpen {
		status.Upstream = ComponentHealth{
			Status: "error",
			Error:  fmt.Sprintf("circuit breaker is %s", s.upstream.State()),
		}
		status.Status = "degraded"
	}

	return status
}

// Monitor runs Check every interval until ctx is done, logging and counting
// degraded results.
func (s *HealthService) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.Check(ctx)
			if status.Status != "ok" {
				metrics.RecordHealthCheckFailure()
				s.logger.Warn("health check degraded",
					"db", status.DB.Status,
					"db_error", status.DB.Error,
					"upstream", status.Upstream.Status,
					"upstream_error", status.Upstream.Error,
				)
			}
		}
	}
}
