package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return string(body)
}

func TestMetricsEndpoint(t *testing.T) {
	// Touch vector metrics so they appear in the output
	RecordTierHit("init")
	RecordCacheEviction()
	RecordCacheWriteFailure("init")
	SetCacheBytes(0)
	RecordSourceFetch(true)
	RecordBrokenMark()
	RecordSessionStarted()
	RecordPlaybackRetry()
	RecordPlaybackError("init")
	RecordAutoSkip()
	SetCircuitBreakerState("init", "CLOSED")
	RecordCircuitBreakerTrip("init")
	RecordHealthCheckFailure()

	output := scrape(t)

	expectedMetrics := []string{
		"gazibo_catalog_tier_hits_total",
		"gazibo_cache_evictions_total",
		"gazibo_cache_write_failures_total",
		"gazibo_cache_bytes",
		"gazibo_source_fetches_total",
		"gazibo_broken_marks_total",
		"gazibo_playback_sessions_total",
		"gazibo_playback_retries_total",
		"gazibo_playback_errors_total",
		"gazibo_playback_auto_skips_total",
		"gazibo_circuit_breaker_state",
		"gazibo_circuit_breaker_trips_total",
		"gazibo_health_check_failures_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(output, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsValues(t *testing.T) {
	SetCacheBytes(2048)
	RecordSourceFetch(false)
	RecordTierHit("stale")

	output := scrape(t)

	tests := []struct {
		name     string
		contains string
	}{
		{"cache_bytes", "gazibo_cache_bytes 2048"},
		{"source_error", `gazibo_source_fetches_total{result="error"}`},
		{"tier", `gazibo_catalog_tier_hits_total{tier="stale"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(output, tt.contains) {
				t.Errorf("Expected to find %s in output", tt.contains)
			}
		})
	}
}

func TestCircuitBreakerStateValues(t *testing.T) {
	tests := []struct {
		state string
		value string
	}{
		{"CLOSED", "0"},
		{"OPEN", "1"},
		{"HALF-OPEN", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			SetCircuitBreakerState("test-cb", tt.state)

			output := scrape(t)

			expectedLine := `gazibo_circuit_breaker_state{name="test-cb"} ` + tt.value
			if !strings.Contains(output, expectedLine) {
				t.Errorf("Expected to find %s in output for state %s", expectedLine, tt.state)
			}
		})
	}
}
