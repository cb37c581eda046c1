// Package store selects the model cache backend from configuration.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/weatherdash/cmd/predictor/config"
	"github.com/HatiCode/weatherdash/pkg/storage"
)

// cleanupInterval sweeps at half the TTL, at most once a minute.
func cleanupInterval(ttl time.Duration) time.Duration {
	return min(ttl/2, time.Minute)
}

// New creates the storage.Store named by cfg.Storage. A RedisStore must be
// closed by the caller.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using Redis model cache",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil

	case "memory", "":
		if cfg.CacheTTL > 0 {
			logger.Info("using in-memory model cache", "ttl", cfg.CacheTTL)
			return storage.NewMemoryStoreWithTTL(cfg.CacheTTL, cleanupInterval(cfg.CacheTTL)), nil
		}
		logger.Info("using in-memory model cache")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
