package reports

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestBuildKeyCarriesVersion(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "reports", "tb", "2026-06-30")
	require.NoError(t, err)
	require.Equal(t, "reports:tb:2026-06-30:1", key)

	require.NoError(t, cache.Bump(ctx))
	key, err = cache.BuildKey(ctx, "reports", "tb", "2026-06-30")
	require.NoError(t, err)
	require.Equal(t, "reports:tb:2026-06-30:2", key)
}

func TestFetchJSONPopulatesOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]int{"total": 42}, nil
	}

	var first, second map[string]int
	require.NoError(t, cache.FetchJSON(ctx, "reports:test:1", &first, loader))
	require.NoError(t, cache.FetchJSON(ctx, "reports:test:1", &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, 42, second["total"])
}

func TestBumpOrphansOldKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	key, err := cache.BuildKey(ctx, "reports", "bs", "2026-06-30")
	require.NoError(t, err)
	var got int
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, got)

	require.NoError(t, cache.Bump(ctx))

	key, err = cache.BuildKey(ctx, "reports", "bs", "2026-06-30")
	require.NoError(t, err)
	require.NoError(t, cache.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, calls)
}

func TestNilCacheDegradesToLoader(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "reports", "pl", "a", "b")
	require.NoError(t, err)
	require.Equal(t, "reports:pl:a:b", key)

	var got int
	require.NoError(t, cache.FetchJSON(ctx, key, &got, func(ctx context.Context) (interface{}, error) {
		return 7, nil
	}))
	require.Equal(t, 7, got)
}
