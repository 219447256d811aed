package cache

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/buildcore/erp-core/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Status string  `json:"status"`
	Units  float64 `json:"units"`
}

func newCache(t *testing.T, ttl time.Duration) (*ReportCache, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewReportCache(client, "test:report:", ttl), m
}

func TestReportCache_SetGet(t *testing.T) {
	c, _ := newCache(t, time.Minute)
	ctx := context.Background()

	key, err := c.Key(ctx, "inventory-status", "inventory")
	require.NoError(t, err)
	require.Equal(t, "test:report:inventory-status:inventory@0", key)

	var got []summary
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, hit)

	want := []summary{{Status: "low_stock", Units: 25}}
	require.NoError(t, c.Set(ctx, key, want))

	hit, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, want, got)
}

func TestReportCache_InvalidateChangesKey(t *testing.T) {
	c, _ := newCache(t, time.Minute)
	ctx := context.Background()

	before, err := c.Key(ctx, "sales", "orders", "customers")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, before, []summary{{Status: "x"}}))

	require.NoError(t, c.Invalidate(ctx, "orders"))
	after, err := c.Key(ctx, "sales", "orders", "customers")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Equal(t, "test:report:sales:orders@1:customers@0", after)

	var got []summary
	hit, err := c.Get(ctx, after, &got)
	require.NoError(t, err)
	require.False(t, hit)

	unrelated, err := c.Key(ctx, "stock", "inventory")
	require.NoError(t, err)
	require.Equal(t, "test:report:stock:inventory@0", unrelated)
}

func TestReportCache_TTLExpiry(t *testing.T) {
	c, m := newCache(t, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "test:report:k", summary{Status: "a"}))
	m.FastForward(3 * time.Second)

	var got summary
	hit, err := c.Get(ctx, "test:report:k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestReportCache_CorruptEntryIsDropped(t *testing.T) {
	c, m := newCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, m.Set("test:report:bad", "{not json"))
	errorsBefore := testutil.ToFloat64(metrics.ReportCache.WithLabelValues("error"))

	var got summary
	hit, err := c.Get(ctx, "test:report:bad", &got)
	require.Error(t, err)
	require.False(t, hit)
	require.False(t, m.Exists("test:report:bad"))
	require.Equal(t, errorsBefore+1, testutil.ToFloat64(metrics.ReportCache.WithLabelValues("error")))
}
