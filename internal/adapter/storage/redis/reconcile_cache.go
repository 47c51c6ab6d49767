package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const reconcileKeyPrefix = "reconcile:seen:"

// ReconcileCache implements ports.ReconcileCache. It is the fast-path
// dedupe for webhook redelivery: a marked reference lets the reconciler
// skip the database entirely. Redis being down or flushed is harmless
// because the status CAS in Postgres remains the authority.
type ReconcileCache struct {
	client *redis.Client
}

// NewReconcileCache creates a Redis-backed reconcile dedupe cache.
func NewReconcileCache(client *redis.Client) *ReconcileCache {
	return &ReconcileCache{client: client}
}

// Seen reports whether a reference was already reconciled.
func (c *ReconcileCache) Seen(ctx context.Context, reference string) (bool, error) {
	n, err := c.client.Exists(ctx, reconcileKeyPrefix+reference).Result()
	if err != nil {
		return false, fmt.Errorf("checking reconcile cache: %w", err)
	}
	return n > 0, nil
}

// Mark records a reconciled reference with a TTL.
func (c *ReconcileCache) Mark(ctx context.Context, reference string, ttl time.Duration) error {
	if err := c.client.Set(ctx, reconcileKeyPrefix+reference, "1", ttl).Err(); err != nil {
		return fmt.Errorf("marking reconcile cache: %w", err)
	}
	return nil
}
