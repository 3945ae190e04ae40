package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ResilienceConfig centralizes upstream resilience and operational settings
type ResilienceConfig struct {
	// Circuit breaker settings for the upstream catalog
	CBFailureThreshold int           `yaml:"cb_failure_threshold"` // Number of failures before opening circuit
	CBTimeout          time.Duration `yaml:"cb_timeout"`           // Timeout before attempting to close circuit
	CBHalfOpenRequests int           `yaml:"cb_half_open_requests"` // Number of requests allowed in half-open state

	// Health check settings
	HealthCheckInterval time.Duration `yaml:"health_check_interval"` // Interval between health checks

	// Logging settings
	LogLevel string `yaml:"log_level"` // Log level: DEBUG, INFO, WARN, ERROR
}

var validLogLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// DefaultResilienceConfig returns a ResilienceConfig with sensible defaults
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		// Circuit breaker defaults
		CBFailureThreshold: 5,
		CBTimeout:          30 * time.Second,
		CBHalfOpenRequests: 1,

		// Health check defaults
		HealthCheckInterval: 30 * time.Second,

		// Logging defaults
		LogLevel: "INFO",
	}
}

// applyEnv overrides resilience settings from environment variables
func (c *ResilienceConfig) applyEnv(p *envParser) {
	p.parseInt("CB_FAILURE_THRESHOLD", &c.CBFailureThreshold)
	p.parseDuration("CB_TIMEOUT", &c.CBTimeout)
	p.parseInt("CB_HALF_OPEN_REQUESTS", &c.CBHalfOpenRequests)
	p.parseDuration("HEALTH_CHECK_INTERVAL", &c.HealthCheckInterval)
	p.parseEnum("LOG_LEVEL", &c.LogLevel, validLogLevels)
}

// Validate performs additional validation on the configuration
func (c *ResilienceConfig) Validate() error {
	var errors []string

	if c.CBFailureThreshold <= 0 {
		errors = append(errors, "CBFailureThreshold must be positive")
	}

	if c.CBTimeout <= 0 {
		errors = append(errors, "CBTimeout must be positive")
	}

	if c.CBHalfOpenRequests <= 0 {
		errors = append(errors, "CBHalfOpenRequests must be positive")
	}

	if c.HealthCheckInterval <= 0 {
		errors = append(errors, "HealthCheckInterval must be positive")
	}

	if !slices.Contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		errors = append(errors, "LogLevel must be one of: DEBUG, INFO, WARN, ERROR")
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// envParser is a helper for parsing environment variables with validation.
// It collects every problem so they can be reported together.
type envParser struct {
	errors []string
}

func (p *envParser) err() error {
	if len(p.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(p.errors, "\n  - "))
	}
	return nil
}

func (p *envParser) parseString(envName string, target *string) {
	if val := os.Getenv(envName); val != "" {
		*target = val
	}
}

func (p *envParser) parseBool(envName string, target *bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be true or false", envName))
		return
	}
	*target = b
}

// parseDuration parses a duration environment variable, ensuring it's positive
func (p *envParser) parseDuration(envName string, target *time.Duration) {
	p.duration(envName, target, false)
}

// parseNonNegativeDuration parses a duration environment variable that may be zero
func (p *envParser) parseNonNegativeDuration(envName string, target *time.Duration) {
	p.duration(envName, target, true)
}

func (p *envParser) duration(envName string, target *time.Duration, allowZero bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: invalid duration format (use '30s', '1m', etc.)", envName))
		return
	}

	if duration < 0 || (duration == 0 && !allowZero) {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = duration
}

// parseInt parses an integer environment variable, ensuring it's positive
func (p *envParser) parseInt(envName string, target *int) {
	p.integer(envName, target, false)
}

// parseNonNegativeInt parses an integer environment variable that may be zero
func (p *envParser) parseNonNegativeInt(envName string, target *int) {
	p.integer(envName, target, true)
}

func (p *envParser) integer(envName string, target *int, allowZero bool) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: must be a valid integer", envName))
		return
	}

	if intVal < 0 || (intVal == 0 && !allowZero) {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = intVal
}

// parseByteSize parses a byte size environment variable, ensuring it's positive
func (p *envParser) parseByteSize(envName string, target *int) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	size, err := parseByteSize(val)
	if err != nil {
		p.errors = append(p.errors, fmt.Sprintf("%s: %v", envName, err))
		return
	}

	if size <= 0 {
		p.errors = append(p.errors, fmt.Sprintf("%s must be positive", envName))
		return
	}

	*target = size
}

// parseEnum parses an enum environment variable from a set of valid values
func (p *envParser) parseEnum(envName string, target *string, validValues []string) {
	val := os.Getenv(envName)
	if val == "" {
		return
	}

	normalized := strings.ToUpper(val)
	if !slices.Contains(validValues, normalized) {
		p.errors = append(p.errors, fmt.Sprintf("%s must be one of: %s", envName, strings.Join(validValues, ", ")))
		return
	}

	*target = normalized
}

// parseByteSize parses a byte size string (e.g., "4MB", "1024", "1.5MB")
// Supports: bytes (no suffix), KB, MB, GB
func parseByteSize(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))

	// Try to parse as plain integer first
	if val, err := strconv.Atoi(s); err == nil {
		return val, nil
	}

	// Parse with suffix - check longer suffixes first to avoid "B" matching "MB"
	suffixes := []struct {
		suffix     string
		multiplier int
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, item := range suffixes {
		if strings.HasSuffix(s, item.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, item.suffix))

			if val, err := strconv.Atoi(numStr); err == nil {
				if val < 0 {
					return 0, fmt.Errorf("negative values are not allowed")
				}
				return val * item.multiplier, nil
			}

			if val, err := strconv.ParseFloat(numStr, 64); err == nil {
				if val < 0 {
					return 0, fmt.Errorf("negative values are not allowed")
				}
				return int(val * float64(item.multiplier)), nil
			}

			return 0, fmt.Errorf("invalid numeric value: %s", numStr)
		}
	}

	return 0, fmt.Errorf("invalid byte size format (use '4MB', '1024', '1.5MB', etc.)")
}
