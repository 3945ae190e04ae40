package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogTierHits tracks which fallback tier answered a channel list request
	// (mirror, fresh, network, stale, none)
	CatalogTierHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazibo_catalog_tier_hits_total",
		Help: "Channel list requests answered per fallback tier",
	}, []string{"tier"})

	// CacheEvictions tracks LRU evictions from the persistent cache
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_cache_evictions_total",
		Help: "Total number of country entries evicted from the persistent cache",
	})

	// CacheWriteFailures tracks persistent cache writes that failed, by outcome
	// (retried, dropped)
	CacheWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazibo_cache_write_failures_total",
		Help: "Total number of failed persistent cache writes",
	}, []string{"outcome"})

	// CacheBytes tracks the persistent cache footprint after the last write
	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gazibo_cache_bytes",
		Help: "Persistent cache footprint in UTF-16 bytes",
	})

	// SourceFetches tracks upstream playlist fetches by result (ok, error)
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazibo_source_fetches_total",
		Help: "Total number of upstream playlist fetches",
	}, []string{"result"})

	// BrokenMarks tracks streams recorded in the broken ledger
	BrokenMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_broken_marks_total",
		Help: "Total number of streams marked broken",
	})

	// SessionsStarted tracks playback sessions
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_playback_sessions_total",
		Help: "Total number of playback sessions started",
	})

	// PlaybackRetries tracks in-place reloads after network failures
	PlaybackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_playback_retries_total",
		Help: "Total number of in-place stream reloads",
	})

	// PlaybackErrors tracks engine failures by kind (network, decode, fatal)
	PlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazibo_playback_errors_total",
		Help: "Total number of media engine failures",
	}, []string{"kind"})

	// AutoSkips tracks countdowns that expired and advanced to the next channel
	AutoSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_playback_auto_skips_total",
		Help: "Total number of automatic advances after an error",
	})

	// CircuitBreakerState tracks the current state of circuit breakers
	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gazibo_circuit_breaker_state",
		Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerTrips tracks how many times a circuit breaker transitioned to OPEN
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gazibo_circuit_breaker_trips_total",
		Help: "Total number of times circuit breaker transitioned to OPEN state",
	}, []string{"name"})

	// HealthCheckFailures tracks health check failures
	HealthCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gazibo_health_check_failures_total",
		Help: "Total number of health check failures",
	})
)

// SetCircuitBreakerState updates the circuit breaker state metric
// state should be one of: "CLOSED" (0), "OPEN" (1), "HALF-OPEN" (2)
func SetCircuitBreakerState(name, state string) {
	var value float64
	switch state {
	case "CLOSED":
		value = 0
	case "OPEN":
		value = 1
	case "HALF-OPEN":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(value)
}

// RecordCircuitBreakerTrip increments the circuit breaker trip counter
func RecordCircuitBreakerTrip(name string) {
	CircuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordTierHit increments the hit counter of a catalog fallback tier
func RecordTierHit(tier string) {
	CatalogTierHits.WithLabelValues(tier).Inc()
}

// RecordCacheEviction increments the eviction counter
func RecordCacheEviction() {
	CacheEvictions.Inc()
}

// RecordCacheWriteFailure increments the write failure counter for an outcome
func RecordCacheWriteFailure(outcome string) {
	CacheWriteFailures.WithLabelValues(outcome).Inc()
}

// SetCacheBytes sets the persistent cache footprint
func SetCacheBytes(n int64) {
	CacheBytes.Set(float64(n))
}

// RecordSourceFetch increments the upstream fetch counter
func RecordSourceFetch(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	SourceFetches.WithLabelValues(result).Inc()
}

// RecordBrokenMark increments the broken mark counter
func RecordBrokenMark() {
	BrokenMarks.Inc()
}

// RecordSessionStarted increments the session counter
func RecordSessionStarted() {
	SessionsStarted.Inc()
}

// RecordPlaybackRetry increments the in-place reload counter
func RecordPlaybackRetry() {
	PlaybackRetries.Inc()
}

// RecordPlaybackError increments the engine failure counter for a kind
func RecordPlaybackError(kind string) {
	PlaybackErrors.WithLabelValues(kind).Inc()
}

// RecordAutoSkip increments the auto-skip counter
func RecordAutoSkip() {
	AutoSkips.Inc()
}

// RecordHealthCheckFailure increments the health check failure counter
func RecordHealthCheckFailure() {
	HealthCheckFailures.Inc()
}
