package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReconcileCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewReconcileCache(client), mr
}

func TestReconcileCache_SeenAfterMark(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	seen, err := cache.Seen(ctx, "TXN-1700000000000-AB12CD34")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.Mark(ctx, "TXN-1700000000000-AB12CD34", time.Hour))

	seen, err = cache.Seen(ctx, "TXN-1700000000000-AB12CD34")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestReconcileCache_MarkExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "TXN-1700000000000-EXPIRING", time.Minute))
	mr.FastForward(2 * time.Minute)

	seen, err := cache.Seen(ctx, "TXN-1700000000000-EXPIRING")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReconcileCache_KeysAreScoped(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Mark(ctx, "TXN-REF", time.Hour))
	assert.True(t, mr.Exists("reconcile:seen:TXN-REF"))
}
