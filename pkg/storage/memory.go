package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/weatherdash/pkg/models"
)

// MemoryStore implements an in-memory store for trained model sets.
// It is safe for concurrent use by multiple goroutines.
//
// Entries live for the lifetime of the process unless a TTL is configured, in
// which case a background goroutine removes sets trained longer ago than the
// TTL. For multi-instance deployments use RedisStore instead.
type MemoryStore struct {
	mu            sync.RWMutex
	sets          map[string]models.ModelSet
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates a new in-memory model store with no TTL.
// Model sets are kept indefinitely until explicitly deleted or replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets: make(map[string]models.ModelSet),
	}
}

// NewMemoryStoreWithTTL creates a new in-memory model store with automatic
// TTL-based cleanup every cleanupInterval (default one minute).
//
// The cleanup goroutine must be stopped by calling Stop() when the store
// is no longer needed to prevent goroutine leaks.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		sets:          make(map[string]models.ModelSet),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine and blocks until it exits.
// Calling Stop multiple times or on a store without TTL is safe and does nothing.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes model sets older than the TTL.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for key, set := range s.sets {
		if now.Sub(set.TrainedAt) > s.ttl {
			delete(s.sets, key)
		}
	}
}

// Put stores a model set under its Key, replacing any existing entry.
//
// Returns an error if the Key is empty or if context is canceled.
func (s *MemoryStore) Put(ctx context.Context, set models.ModelSet) error {
	if set.Key == "" {
		return fmt.Errorf("model set key cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets[set.Key] = set
	return nil
}

// Get retrieves the model set stored under key.
//
// Returns:
//   - set: The stored model set (zero value if not found)
//   - found: true if an entry exists for this key, false otherwise
//   - error: Context error if context is canceled, nil otherwise
func (s *MemoryStore) Get(ctx context.Context, key string) (models.ModelSet, bool, error) {
	select {
	case <-ctx.Done():
		return models.ModelSet{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, found := s.sets[key]
	return set, found, nil
}

// Len returns the number of model sets currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Delete removes the model set stored under key.
// Returns true if an entry was deleted, false if none existed.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.sets[key]
	delete(s.sets, key)
	return existed
}
