package storage

import (
	"context"
	"testing"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewMinIOStorage_RequiresEndpoint(t *testing.T) {
	_, err := NewMinIOStorage(context.Background(), config.MinIOConfig{Bucket: "erp"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
