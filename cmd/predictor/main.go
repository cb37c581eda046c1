// Command predictor serves long-range weather predictions for any location
// and date.
//
// For a requested (location, date) it gathers the same calendar day across
// decades of historical observations, fits one regression per weather
// variable against the global temperature anomaly and the year, caches the
// fitted models and evaluates them at the requested year. Predictions are
// served over HTTP (/predict) and gRPC (weatherdash.v1.Predictor/Predict).
//
// Usage:
//
//	predictor -listen=:8080 -grpc-listen=:9090 -source=nasapower -storage=redis
//
// Environment variables:
//
//	LISTEN            - HTTP listen address (default: :8080)
//	GRPC_LISTEN       - gRPC listen address, empty disables gRPC (default: :9090)
//	SOURCE            - Historical source: nasapower, openmeteo (default: nasapower)
//	SOURCE_URL        - Override of the source base URL
//	SOURCE_TIMEOUT    - Per-request timeout of the source (default: 30s)
//	SOURCE_RETRIES    - Retries of one year fetch (default: 3)
//	FETCH_CONCURRENCY - Concurrent year fetches per sample (default: 6)
//	START_YEAR        - First historical year (default: 1984)
//	END_YEAR          - Last historical year (default: 2025)
//	CACHE_SCOPE       - Model cache key scope: location, day (default: location)
//	CACHE_TTL         - In-memory model set TTL, 0 keeps sets forever (default: 0)
//	STORAGE           - Model cache backend: memory, redis (default: memory)
//	REDIS_ADDR        - Redis address (default: localhost:6379)
//	REDIS_PASSWORD    - Redis password
//	REDIS_DB          - Redis database number (default: 0)
//	REDIS_TTL         - Model set TTL in Redis, 0 keeps sets forever (default: 0)
//	ARCHIVE_PATH      - SQLite file archiving raw yearly series (disabled when empty)
//	ARCHIVE_REFRESH   - Age after which archived years are refetched (default: 24h)
//	PREDICT_TIMEOUT   - Deadline of one prediction request (default: 2m)
//	WARMUP_LOCATIONS  - "lat,lon;lat,lon" locations pre-trained periodically
//	WARMUP_DAYS       - Calendar days ahead to pre-train (default: 7)
//	WARMUP_INTERVAL   - Interval between warm-up runs (default: 24h)
//	TLS_ENABLED       - Serve HTTP and gRPC over mutual TLS (default: false)
//	TLS_CERT_FILE, TLS_KEY_FILE, TLS_CA_FILE - TLS material
//	LOG_LEVEL         - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT        - Logging format: text, json (default: text)
package main

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/weatherdash/cmd/predictor/config"
	"github.com/HatiCode/weatherdash/cmd/predictor/logger"
	"github.com/HatiCode/weatherdash/cmd/predictor/metrics"
	"github.com/HatiCode/weatherdash/cmd/predictor/router"
	"github.com/HatiCode/weatherdash/cmd/predictor/store"
	"github.com/HatiCode/weatherdash/cmd/predictor/warmup"
	"github.com/HatiCode/weatherdash/pkg/adapters"
	"github.com/HatiCode/weatherdash/pkg/archive"
	"github.com/HatiCode/weatherdash/pkg/history"
	"github.com/HatiCode/weatherdash/pkg/httpx"
	"github.com/HatiCode/weatherdash/pkg/predictor"
	"github.com/HatiCode/weatherdash/pkg/storage"
	tlsconfig "github.com/HatiCode/weatherdash/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()
	log := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	log.Info("starting weatherdash predictor",
		"version", version,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
		"source", cfg.Source,
		"years", []int{cfg.StartYear, cfg.EndYear},
		"cache_scope", cfg.CacheScope,
		"storage", cfg.Storage,
		"archive", cfg.ArchivePath,
		"tls_enabled", cfg.TLS.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := adapters.New(cfg.Source, cfg.SourceConfig())
	if err != nil {
		log.Error("failed to create source", "error", err)
		os.Exit(1)
	}

	var arch *archive.Archive
	if cfg.ArchivePath != "" {
		arch, err = archive.Open(ctx, cfg.ArchivePath, log)
		if err != nil {
			log.Error("failed to open archive", "path", cfg.ArchivePath, "error", err)
			os.Exit(1)
		}
		defer arch.Close()
		src = archive.NewCachingSource(src, arch, cfg.ArchiveRefresh, log)
	}

	modelStore, err := store.New(cfg, log)
	if err != nil {
		log.Error("failed to create model store", "error", err)
		os.Exit(1)
	}

	var healthCheck func(ctx context.Context) error
	switch s := modelStore.(type) {
	case *storage.RedisStore:
		defer s.Close()
		healthCheck = s.Ping
	case *storage.MemoryStore:
		defer s.Stop()
	}

	extractor := history.NewExtractor(src, cfg.FetchConcurrency, m, log)
	p := predictor.New(extractor, modelStore, predictor.Options{
		Scope:     predictor.CacheScope(cfg.CacheScope),
		StartYear: cfg.StartYear,
		EndYear:   cfg.EndYear,
	}, m, log)

	var serverTLS *tls.Config
	if cfg.TLS.Enabled {
		serverTLS, err = tlsconfig.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			log.Error("failed to load TLS configuration", "error", err)
			os.Exit(1)
		}
	}

	grpcServer, healthServer := newGRPCServer(p, cfg.PredictTimeout, serverTLS, log)

	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}

		go func() {
			log.Info("grpc server listening", "address", cfg.GRPCListen)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("grpc server failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	handler := router.SetupRoutes(router.Deps{
		Predictor:      p,
		Source:         src,
		Archive:        arch,
		PredictTimeout: cfg.PredictTimeout,
		Health:         healthCheck,
		Logger:         log,
	})
	httpServer := httpx.NewServer(cfg.Listen, handler, cfg.PredictTimeout+30*time.Second, log)

	go func() {
		var err error
		if serverTLS != nil {
			httpServer.SetTLSConfig(serverTLS)
			err = httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = httpServer.Start()
		}
		if err != nil {
			log.Error("http server failed", "error", err)
		}
	}()

	locations, err := cfg.ParseWarmupLocations()
	if err != nil {
		log.Error("invalid warm-up locations", "error", err)
		os.Exit(1)
	}
	warmer := warmup.New(p, locations, cfg.WarmupDays, cfg.PredictTimeout, log)
	scheduler := warmup.NewScheduler(warmer, cfg.WarmupInterval)
	if err := scheduler.Start(ctx); err != nil {
		log.Error("failed to start warm-up scheduler", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received shutdown signal", "signal", sig)

	cancel()
	scheduler.Stop()

	log.Info("shutting down grpc server")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	log.Info("shutting down http server")
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("http server shutdown error", "error", err)
	}

	log.Info("shutdown complete")
}
