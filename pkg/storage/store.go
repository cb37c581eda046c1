// Package storage provides model cache implementations: an in-memory store for
// single-instance deployments and a Redis store shared across instances.
package storage

import (
	"context"

	"github.com/HatiCode/weatherdash/pkg/models"
)

// Store caches trained ModelSets by cache key.
type Store interface {
	Put(ctx context.Context, set models.ModelSet) error
	Get(ctx context.Context, key string) (models.ModelSet, bool, error)
}
