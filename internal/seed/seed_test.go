package seed

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/buildcore/erp-core/internal/engine"
	"github.com/buildcore/erp-core/internal/repository"
	"github.com/stretchr/testify/require"
)

type fakeObjects map[string]string

func (f fakeObjects) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	s, ok := f[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestDemoContainsInventoryScenario(t *testing.T) {
	ctx := context.Background()
	f, err := Demo()
	require.NoError(t, err)
	require.Contains(t, f.Collections(), "inventory")

	repo := repository.NewMemoryRepo()
	res, err := Apply(ctx, repo, f)
	require.NoError(t, err)
	require.Zero(t, res.Skipped)

	got, err := repo.Find(ctx, "inventory", engine.ParseQuery(map[string]any{"status": "low_stock"}), engine.FindOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "inv_002", got[0].ID())
	require.EqualValues(t, 25, got[0]["quantity"])
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f, err := FromFile("testdata/small.json")
	require.NoError(t, err)

	repo := repository.NewMemoryRepo()
	res, err := Apply(ctx, repo, f)
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1}, res)

	res, err = Apply(ctx, repo, f)
	require.NoError(t, err)
	require.Equal(t, Result{Skipped: 1}, res)

	n, err := repo.Count(ctx, "inventory", engine.ParseQuery(map[string]any{"quantity": map[string]any{"$lt": 30}}))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLoadSources(t *testing.T) {
	ctx := context.Background()

	f, err := Load(ctx, config.SeedConfig{Source: "none"}, nil)
	require.NoError(t, err)
	require.Nil(t, f)

	f, err = Load(ctx, config.SeedConfig{Source: "file", Path: "testdata/small.json"}, nil)
	require.NoError(t, err)
	require.Len(t, f["inventory"], 1)

	objects := fakeObjects{"fixtures/erp.json": `{"customers": [{"id": "cust_009"}]}`}
	f, err = Load(ctx, config.SeedConfig{Source: "minio", Path: "fixtures/erp.json"}, objects)
	require.NoError(t, err)
	require.Equal(t, "cust_009", f["customers"][0].ID())

	_, err = Load(ctx, config.SeedConfig{Source: "minio", Path: "missing.json"}, objects)
	require.Error(t, err)
	_, err = Load(ctx, config.SeedConfig{Source: "minio", Path: "x"}, nil)
	require.Error(t, err)
	_, err = Load(ctx, config.SeedConfig{Source: "file", Path: "testdata/nope.json"}, nil)
	require.Error(t, err)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode(strings.NewReader(`["not", "an", "object"]`))
	require.Error(t, err)
}
