package credit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute), mr
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	miss, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, miss)

	want := Summary{InvoiceCount: 3, TotalCredit: 450, TotalCollected: 120, TotalOutstanding: 330}
	require.NoError(t, cache.Set(ctx, want))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want, *got)
}

func TestSummaryCacheInvalidate(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Summary{InvoiceCount: 1}))
	require.NoError(t, cache.Invalidate(ctx))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSummaryCacheExpires(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, Summary{InvoiceCount: 1}))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}
