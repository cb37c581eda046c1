package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/weatherdash/pkg/models"
)

const redisKeyPrefix = "weatherdash:models:"

// RedisStore implements the Store interface using Redis as a backend.
// It lets several predictor instances share trained model sets. Entries
// never expire unless a TTL is configured.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: Model set expiration (0 keeps entries forever)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Put stores a model set as JSON under "weatherdash:models:{key}".
func (r *RedisStore) Put(ctx context.Context, set models.ModelSet) error {
	if err := validateKey(set.Key); err != nil {
		return err
	}

	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal model set: %w", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+set.Key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store model set in redis: %w", err)
	}

	return nil
}

// Get retrieves the model set stored under key.
//
// Returns:
//   - set: The model set (zero value if not found)
//   - found: true if the key exists, false if not found
//   - error: non-nil if an error occurred (excluding "not found")
func (r *RedisStore) Get(ctx context.Context, key string) (models.ModelSet, bool, error) {
	if err := validateKey(key); err != nil {
		return models.ModelSet{}, false, err
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ModelSet{}, false, nil
		}
		return models.ModelSet{}, false, fmt.Errorf("failed to get model set from redis: %w", err)
	}

	var set models.ModelSet
	if err := json.Unmarshal(data, &set); err != nil {
		return models.ModelSet{}, false, fmt.Errorf("failed to unmarshal model set: %w", err)
	}

	return set, true, nil
}

// validateKey accepts cache keys such as "44.43,26.10:07-15" or "07-15".
func validateKey(key string) error {
	if key == "" {
		return errors.New("model set key required")
	}
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' ||
			c == '.' || c == ',' || c == ':') {
			return fmt.Errorf("invalid model set key %q", key)
		}
	}
	return nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
