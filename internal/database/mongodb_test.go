package database

import (
	"context"
	"testing"
	"time"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/stretchr/testify/require"
)

func TestConnectRetriesWithBackoff(t *testing.T) {
	var waits []time.Duration
	orig := wait
	wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { wait = orig })

	_, err := Connect(context.Background(), config.MongoDBConfig{URI: "notmongo://nowhere", Retries: 3, Timeout: time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "giving up after 3 attempts")
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, config.MongoDBConfig{URI: "notmongo://nowhere", Retries: 5, Timeout: time.Second})
	require.ErrorIs(t, err, context.Canceled)
}
