package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// HTTP server settings
	HTTP struct {
		Address string `yaml:"address"`
		Port    string `yaml:"port"`
		// RefreshRateLimit is the number of forced refreshes allowed per minute and client
		RefreshRateLimit int `yaml:"refresh_rate_limit"`
	} `yaml:"http"`

	// Storage settings
	Storage struct {
		DBPath string `yaml:"db_path"`
		// MemoryOnly keeps the cache and the broken ledger in process memory only
		MemoryOnly bool `yaml:"memory_only"`
		// Quota is the hard capacity of the persistent cache store
		Quota int `yaml:"quota"`
	} `yaml:"storage"`

	// Channel cache settings
	Cache struct {
		TTL          time.Duration `yaml:"ttl"`
		MaxBytes     int           `yaml:"max_bytes"`
		ClearOnStart bool          `yaml:"clear_on_start"`
	} `yaml:"cache"`

	// Broken stream ledger settings
	Broken struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"broken"`

	// Upstream catalog settings
	Catalog struct {
		SourceBaseURL   string        `yaml:"source_base_url"`
		APIBaseURL      string        `yaml:"api_base_url"`
		BlocklistFile   string        `yaml:"blocklist_file"`
		DefaultCountry  string        `yaml:"default_country"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"catalog"`

	// Playback settings
	Player struct {
		Command         string        `yaml:"command"`
		Args            []string      `yaml:"args"`
		SettleDelay     time.Duration `yaml:"settle_delay"`
		MaxRetries      int           `yaml:"max_retries"`
		AutoSkipSeconds int           `yaml:"auto_skip_seconds"`
		ManifestTimeout time.Duration `yaml:"manifest_timeout"`
		LevelTimeout    time.Duration `yaml:"level_timeout"`
		SegmentTimeout  time.Duration `yaml:"segment_timeout"`
	} `yaml:"player"`

	// Resilience settings (embedded)
	Resilience ResilienceConfig `yaml:"resilience"`
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate HTTP settings
	if c.HTTP.Address == "" {
		errors = append(errors, "HTTP address is required")
	}
	if c.HTTP.Port == "" {
		errors = append(errors, "HTTP port is required")
	}
	if c.HTTP.RefreshRateLimit <= 0 {
		errors = append(errors, "HTTP refresh rate limit must be positive")
	}

	// Validate storage settings
	if c.Storage.DBPath == "" && !c.Storage.MemoryOnly {
		errors = append(errors, "Database path is required")
	}
	if c.Storage.Quota <= 0 {
		errors = append(errors, "Storage quota must be positive")
	}

	// Validate cache settings
	if c.Cache.TTL <= 0 {
		errors = append(errors, "Cache TTL must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		errors = append(errors, "Cache max bytes must be positive")
	}
	if c.Cache.MaxBytes > c.Storage.Quota {
		errors = append(errors, "Cache max bytes must not exceed the storage quota")
	}
	if c.Broken.TTL <= 0 {
		errors = append(errors, "Broken TTL must be positive")
	}

	// Validate catalog settings
	if c.Catalog.SourceBaseURL == "" {
		errors = append(errors, "Catalog source base URL is required")
	}
	if len(c.Catalog.DefaultCountry) != 2 {
		errors = append(errors, "Default country must be a two-letter code")
	}
	if c.Catalog.RefreshInterval < 0 {
		errors = append(errors, "Refresh interval must not be negative")
	}

	// Validate player settings
	if c.Player.SettleDelay < 0 {
		errors = append(errors, "Player settle delay must not be negative")
	}
	if c.Player.MaxRetries < 0 {
		errors = append(errors, "Player max retries must not be negative")
	}
	if c.Player.AutoSkipSeconds < 0 {
		errors = append(errors, "Player auto-skip seconds must not be negative")
	}
	if c.Player.ManifestTimeout <= 0 || c.Player.LevelTimeout <= 0 || c.Player.SegmentTimeout <= 0 {
		errors = append(errors, "Player load timeouts must be positive")
	}

	// Validate resilience config
	if err := c.Resilience.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("Resilience config: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	// HTTP defaults
	cfg.HTTP.Address = "127.0.0.1"
	cfg.HTTP.Port = "8080"
	cfg.HTTP.RefreshRateLimit = 6

	// Storage defaults
	cfg.Storage.DBPath = "gazibo.db"
	cfg.Storage.Quota = 5 * 1024 * 1024 // 5MB

	// Cache defaults
	cfg.Cache.TTL = time.Hour
	cfg.Cache.MaxBytes = 4 * 1024 * 1024 // 4MB
	cfg.Cache.ClearOnStart = true

	cfg.Broken.TTL = 24 * time.Hour

	// Catalog defaults
	cfg.Catalog.SourceBaseURL = "https://iptv-org.github.io/iptv/countries"
	cfg.Catalog.APIBaseURL = "https://iptv-org.github.io/api"
	cfg.Catalog.BlocklistFile = "blocklist.json"
	cfg.Catalog.DefaultCountry = "in"
	cfg.Catalog.RefreshInterval = time.Hour

	// Player defaults
	cfg.Player.Command = ""
	cfg.Player.SettleDelay = 50 * time.Millisecond
	cfg.Player.MaxRetries = 2
	cfg.Player.AutoSkipSeconds = 5
	cfg.Player.ManifestTimeout = 10 * time.Second
	cfg.Player.LevelTimeout = 10 * time.Second
	cfg.Player.SegmentTimeout = 15 * time.Second

	// Resilience defaults
	cfg.Resilience = *DefaultResilienceConfig()

	return cfg
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads configuration from a file (if provided) and applies environment variable overrides
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	// Try to load from file if it exists
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	p := &envParser{}

	// HTTP settings
	p.parseString("HTTP_ADDRESS", &cfg.HTTP.Address)
	p.parseString("HTTP_PORT", &cfg.HTTP.Port)
	p.parseInt("REFRESH_RATE_LIMIT", &cfg.HTTP.RefreshRateLimit)

	// Storage settings
	if val := os.Getenv("DB_PATH"); val != "" {
		absPath, err := validateDBPath(val)
		if err != nil {
			p.errors = append(p.errors, fmt.Sprintf("DB_PATH: %v", err))
		} else {
			cfg.Storage.DBPath = absPath
		}
	}
	p.parseBool("STORAGE_MEMORY_ONLY", &cfg.Storage.MemoryOnly)
	p.parseByteSize("STORAGE_QUOTA", &cfg.Storage.Quota)

	// Cache settings
	p.parseDuration("CACHE_TTL", &cfg.Cache.TTL)
	p.parseByteSize("CACHE_MAX_BYTES", &cfg.Cache.MaxBytes)
	p.parseBool("CACHE_CLEAR_ON_START", &cfg.Cache.ClearOnStart)
	p.parseDuration("BROKEN_TTL", &cfg.Broken.TTL)

	// Catalog settings
	p.parseString("SOURCE_BASE_URL", &cfg.Catalog.SourceBaseURL)
	p.parseString("API_BASE_URL", &cfg.Catalog.APIBaseURL)
	p.parseString("BLOCKLIST_FILE", &cfg.Catalog.BlocklistFile)
	if val := os.Getenv("DEFAULT_COUNTRY"); val != "" {
		cfg.Catalog.DefaultCountry = strings.ToLower(strings.TrimSpace(val))
	}
	p.parseDuration("REFRESH_INTERVAL", &cfg.Catalog.RefreshInterval)

	// Player settings
	if val := os.Getenv("PLAYER_COMMAND"); val != "" {
		fields := strings.Fields(val)
		cfg.Player.Command = fields[0]
		cfg.Player.Args = fields[1:]
	}
	p.parseNonNegativeDuration("SETTLE_DELAY", &cfg.Player.SettleDelay)
	p.parseNonNegativeInt("MAX_RETRIES", &cfg.Player.MaxRetries)
	p.parseNonNegativeInt("AUTO_SKIP_SECONDS", &cfg.Player.AutoSkipSeconds)

	// Resilience settings
	cfg.Resilience.applyEnv(p)

	return p.err()
}

// validateDBPath validates and normalizes the database file path
func validateDBPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("database path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path for database: %w", err)
		}
		return absPath, nil
	}

	return path, nil
}
