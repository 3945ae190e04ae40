package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.etcd.io/bbolt"

	"github.com/alorle/gazibo/circuitbreaker"
	"github.com/alorle/gazibo/config"
	"github.com/alorle/gazibo/internal/adapter/driven"
	"github.com/alorle/gazibo/internal/adapter/driver"
	"github.com/alorle/gazibo/internal/application"
	"github.com/alorle/gazibo/internal/broken"
	"github.com/alorle/gazibo/internal/cache"
	"github.com/alorle/gazibo/internal/channel"
	"github.com/alorle/gazibo/internal/memory"
	"github.com/alorle/gazibo/internal/playback"
	port "github.com/alorle/gazibo/internal/port/driven"
)

const metadataLoadTimeout = 30 * time.Second

// storageBackend is a cache store that can also report its own health.
type storageBackend interface {
	port.CacheStore
	application.Pinger
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Create structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Resilience.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting gazibo",
		"address", cfg.HTTP.Address,
		"port", cfg.HTTP.Port,
		"db_path", cfg.Storage.DBPath,
		"memory_only", cfg.Storage.MemoryOnly,
		"default_country", cfg.Catalog.DefaultCountry,
		"player_command", cfg.Player.Command,
		"log_level", cfg.Resilience.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create driven adapters (stores and external services)
	var (
		cacheStore  storageBackend
		brokenStore port.BrokenStore
	)
	if cfg.Storage.MemoryOnly {
		logger.Info("persistent storage disabled, cache and broken ledger are kept in memory")
		cacheStore = memory.NewCacheStore(int64(cfg.Storage.Quota))
		brokenStore = memory.NewBrokenStore(nil)
	} else {
		db, err := bbolt.Open(cfg.Storage.DBPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("error closing database: %v", err)
			}
		}()

		if removed, err := driven.PurgeLegacyBuckets(db); err != nil {
			logger.Warn("failed to purge legacy buckets", "error", err)
		} else if len(removed) > 0 {
			logger.Info("purged legacy buckets", "buckets", removed)
		}

		boltCache, err := driven.NewCacheBoltDBStore(db, int64(cfg.Storage.Quota))
		if err != nil {
			log.Fatalf("failed to create cache store: %v", err)
		}
		boltBroken, err := driven.NewBrokenBoltDBStore(db)
		if err != nil {
			log.Fatalf("failed to create broken store: %v", err)
		}
		cacheStore, brokenStore = boltCache, boltBroken
	}

	var blocklist port.Blocklist
	if cfg.Catalog.BlocklistFile != "" {
		file := driven.NewBlocklistFile(cfg.Catalog.BlocklistFile, logger)
		if err := file.StartWatcher(ctx); err != nil {
			logger.Warn("blocklist changes will not be picked up", "path", cfg.Catalog.BlocklistFile, "error", err)
		}
		defer file.Stop()
		blocklist = file
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Resilience.CBFailureThreshold,
		Timeout:          cfg.Resilience.CBTimeout,
		HalfOpenRequests: cfg.Resilience.CBHalfOpenRequests,
		Name:             "iptv-org",
		Logger:           logger,
		IsFailure:        driven.IsSourceFailure,
	})
	source := driven.NewIPTVOrgHTTPSource(cfg.Catalog.SourceBaseURL, breaker)

	metadata := driven.NewIPTVOrgAPIMetadata(cfg.Catalog.APIBaseURL, logger)
	// The NSFW and DMCA filters depend on it, so it is loaded before the first fetch.
	loadCtx, cancelLoad := context.WithTimeout(ctx, metadataLoadTimeout)
	if err := metadata.Load(loadCtx); err != nil {
		logger.Warn("catalog metadata incomplete", "error", err)
	}
	cancelLoad()

	var sink port.VideoSink
	if cfg.Player.Command != "" {
		sink = driven.NewExecSink(cfg.Player.Command, cfg.Player.Args, logger)
	} else {
		sink = driven.NewNoopSink(logger)
	}
	engine := driven.NewHLSEngine(driven.HLSConfig{
		ManifestTimeout: cfg.Player.ManifestTimeout,
		LevelTimeout:    cfg.Player.LevelTimeout,
		SegmentTimeout:  cfg.Player.SegmentTimeout,
	}, sink, logger)

	// Create application services
	channelCache := cache.New(cacheStore,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithMaxBytes(int64(cfg.Cache.MaxBytes)),
		cache.WithLogger(logger),
	)
	if cfg.Cache.ClearOnStart {
		if err := channelCache.ClearAll(ctx); err != nil {
			logger.Warn("failed to clear channel cache on start", "error", err)
		}
	}

	ledger, err := broken.Load(ctx, brokenStore, blocklist,
		broken.WithHorizon(cfg.Broken.TTL),
		broken.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("failed to load broken ledger: %v", err)
	}

	catalogService := application.NewCatalogService(source, metadata, blocklist, channelCache, ledger, logger)
	statusBroadcaster := application.NewStatusBroadcaster(logger)

	playbackConfig := playback.DefaultConfig()
	playbackConfig.SettleDelay = cfg.Player.SettleDelay
	playbackConfig.MaxRetries = cfg.Player.MaxRetries
	playbackConfig.AutoSkipTicks = cfg.Player.AutoSkipSeconds

	playerService := application.NewPlayerService(engine, sink, catalogService, statusBroadcaster, playbackConfig, logger)
	lineupService := application.NewLineupService(catalogService, playerService, logger)
	playerService.SetNavigator(lineupService.AdvanceFrom)
	playerService.Start(ctx)

	healthService := application.NewHealthService(cacheStore, breaker, logger)
	scheduler := application.NewRefreshScheduler(catalogService, lineupService, cfg.Catalog.RefreshInterval, logger)

	if _, err := lineupService.Select(ctx, cfg.Catalog.DefaultCountry, channel.Query{Category: channel.CategoryAll}); err != nil {
		logger.Warn("default country unavailable", "country", cfg.Catalog.DefaultCountry, "error", err)
	}

	go scheduler.Run(ctx)
	go healthService.Monitor(ctx, cfg.Resilience.HealthCheckInterval)

	// Create HTTP handlers
	catalogHandler := driver.NewCatalogHTTPHandler(catalogService, lineupService, cfg.HTTP.RefreshRateLimit, logger)
	playerHandler := driver.NewPlayerHTTPHandler(playerService, lineupService, statusBroadcaster, logger)
	lineupHandler := driver.NewLineupHTTPHandler(lineupService, catalogService, logger)
	healthHandler := driver.NewHealthHTTPHandler(healthService)

	// Register API routes
	apiMux := http.NewServeMux()
	apiMux.Handle("/countries/", catalogHandler)
	apiMux.Handle("/cache", catalogHandler)
	apiMux.Handle("/broken", catalogHandler)
	apiMux.Handle("/player", playerHandler)
	apiMux.Handle("/player/", playerHandler)
	apiMux.Handle("/lineup", lineupHandler)

	// Root router: API under /api/, operational endpoints at root
	rootMux := http.NewServeMux()
	rootMux.Handle("/api/", http.StripPrefix("/api", apiMux))
	rootMux.Handle("/health", healthHandler)
	rootMux.Handle("/metrics", promhttp.Handler())

	// The status stream is long-lived, so there is no write timeout.
	server := &http.Server{
		Addr:        net.JoinHostPort(cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:     rootMux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, shutting down gracefully")

	statusBroadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	playerService.Stop()
	if err := sink.Close(); err != nil {
		logger.Warn("failed to close video sink", "error", err)
	}

	logger.Info("server stopped")
}
