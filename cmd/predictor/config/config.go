// Package config provides configuration parsing for the predictor service.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. .env file
//  4. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	if err := cfg.Validate(); err != nil {
//		// exit
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HatiCode/weatherdash/pkg/anomaly"
	"github.com/HatiCode/weatherdash/pkg/tls"
	"github.com/HatiCode/weatherdash/pkg/weather"
)

// Config holds all predictor configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	Source           string
	SourceURL        string
	SourceTimeout    time.Duration
	SourceRetries    int
	FetchConcurrency int
	StartYear        int
	EndYear          int

	CacheScope    string
	CacheTTL      time.Duration
	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	ArchivePath    string
	ArchiveRefresh time.Duration

	PredictTimeout time.Duration

	WarmupLocations string
	WarmupDays      int
	WarmupInterval  time.Duration

	TLS tls.Config
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
func ParseFlags() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9090"), "gRPC listen address (empty disables)")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Source, "source", getEnv("SOURCE", "nasapower"), "Historical source: nasapower or openmeteo")
	flag.StringVar(&cfg.SourceURL, "source-url", getEnv("SOURCE_URL", ""), "Override the historical source base URL")
	flag.DurationVar(&cfg.SourceTimeout, "source-timeout", getEnvDuration("SOURCE_TIMEOUT", 30*time.Second), "Timeout of one upstream request")
	flag.IntVar(&cfg.SourceRetries, "source-retries", getEnvInt("SOURCE_RETRIES", 3), "Retries per upstream request")
	flag.IntVar(&cfg.FetchConcurrency, "fetch-concurrency", getEnvInt("FETCH_CONCURRENCY", 6), "Years fetched in parallel")
	flag.IntVar(&cfg.StartYear, "start-year", getEnvInt("START_YEAR", anomaly.FirstYear), "First training year")
	flag.IntVar(&cfg.EndYear, "end-year", getEnvInt("END_YEAR", anomaly.LastYear), "Last training year")

	flag.StringVar(&cfg.CacheScope, "cache-scope", getEnv("CACHE_SCOPE", "location"), "Model cache key scope: location or day")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", 0), "In-memory model set TTL (0 keeps forever)")
	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Model cache backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis model set TTL (0 keeps forever)")

	flag.StringVar(&cfg.ArchivePath, "archive-path", getEnv("ARCHIVE_PATH", ""), "SQLite archive of fetched years (empty disables)")
	flag.DurationVar(&cfg.ArchiveRefresh, "archive-refresh", getEnvDuration("ARCHIVE_REFRESH", 24*time.Hour), "Age after which the archived current year is refetched")

	flag.DurationVar(&cfg.PredictTimeout, "predict-timeout", getEnvDuration("PREDICT_TIMEOUT", 2*time.Minute), "Deadline of one prediction request")

	flag.StringVar(&cfg.WarmupLocations, "warmup-locations", getEnv("WARMUP_LOCATIONS", ""), "Locations to pre-train, as lat,lon;lat,lon")
	flag.IntVar(&cfg.WarmupDays, "warmup-days", getEnvInt("WARMUP_DAYS", 7), "Calendar days ahead to pre-train")
	flag.DurationVar(&cfg.WarmupInterval, "warmup-interval", getEnvDuration("WARMUP_INTERVAL", 24*time.Hour), "Warm-up interval")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the HTTP and gRPC servers")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.Parse()

	return cfg
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address cannot be empty"))
	}
	if c.Source != "nasapower" && c.Source != "openmeteo" {
		errs = append(errs, fmt.Errorf("invalid source %q (must be nasapower or openmeteo)", c.Source))
	}
	if c.SourceTimeout <= 0 {
		errs = append(errs, errors.New("source timeout must be > 0"))
	}
	if c.SourceRetries < 0 {
		errs = append(errs, errors.New("source retries must be >= 0"))
	}
	if c.FetchConcurrency < 1 {
		errs = append(errs, errors.New("fetch concurrency must be >= 1"))
	}
	if c.EndYear < c.StartYear {
		errs = append(errs, fmt.Errorf("end year %d before start year %d", c.EndYear, c.StartYear))
	}
	if c.CacheScope != "location" && c.CacheScope != "day" {
		errs = append(errs, fmt.Errorf("invalid cache scope %q (must be location or day)", c.CacheScope))
	}
	if c.Storage != "memory" && c.Storage != "redis" {
		errs = append(errs, fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage))
	}
	if c.Storage == "redis" && c.RedisAddr == "" {
		errs = append(errs, errors.New("redis address required when storage=redis"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("cache ttl must be >= 0"))
	}
	if c.RedisTTL < 0 {
		errs = append(errs, errors.New("redis ttl must be >= 0"))
	}
	if c.PredictTimeout <= 0 {
		errs = append(errs, errors.New("predict timeout must be > 0"))
	}
	if _, err := c.ParseWarmupLocations(); err != nil {
		errs = append(errs, err)
	}
	if c.WarmupLocations != "" {
		if c.WarmupDays < 1 {
			errs = append(errs, errors.New("warmup days must be >= 1"))
		}
		if c.WarmupInterval <= 0 {
			errs = append(errs, errors.New("warmup interval must be > 0"))
		}
	}
	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SourceConfig returns the generic configuration map for adapters.New.
func (c *Config) SourceConfig() map[string]string {
	cfg := map[string]string{
		"timeout": c.SourceTimeout.String(),
		"retries": strconv.Itoa(c.SourceRetries),
	}
	if c.SourceURL != "" {
		cfg["url"] = c.SourceURL
	}
	return cfg
}

// ParseWarmupLocations parses WarmupLocations ("lat,lon;lat,lon").
func (c *Config) ParseWarmupLocations() ([]weather.Location, error) {
	var locs []weather.Location
	for _, part := range strings.Split(c.WarmupLocations, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		latStr, lonStr, ok := strings.Cut(part, ",")
		if !ok {
			return nil, fmt.Errorf("warmup location %q: expected lat,lon", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, fmt.Errorf("warmup location %q: invalid latitude: %w", part, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, fmt.Errorf("warmup location %q: invalid longitude: %w", part, err)
		}
		loc := weather.Location{Lat: lat, Lon: lon}
		if !loc.Valid() {
			return nil, fmt.Errorf("warmup location %q: out of range", part)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
