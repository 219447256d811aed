// Package seed loads fixture documents into a data service.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/buildcore/erp-core/internal/engine"
	"github.com/buildcore/erp-core/pkg/logger"
	"golang.org/x/sync/errgroup"
)

//go:embed demo.json
var demoData []byte

// Fixtures maps a collection name to its documents in insertion order.
type Fixtures map[string][]engine.Document

// Collections lists fixture collections alphabetically.
func (f Fixtures) Collections() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Decode reads a JSON object of collection name to document array.
func Decode(r io.Reader) (Fixtures, error) {
	var f Fixtures
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return f, nil
}

// Demo returns the built-in demo data set.
func Demo() (Fixtures, error) {
	return Decode(bytes.NewReader(demoData))
}

// FromFile reads fixtures from disk.
func FromFile(path string) (Fixtures, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer fh.Close()
	return Decode(fh)
}

// ObjectSource is the part of object storage the loader needs.
type ObjectSource interface {
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
}

// FromObject reads fixtures from an object store key.
func FromObject(ctx context.Context, src ObjectSource, key string) (Fixtures, error) {
	rc, err := src.DownloadFile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures %s: %w", key, err)
	}
	defer rc.Close()
	return Decode(rc)
}

// Load resolves the configured fixture source. It returns nil fixtures for
// source "none".
func Load(ctx context.Context, cfg config.SeedConfig, objects ObjectSource) (Fixtures, error) {
	switch cfg.Source {
	case "", "none":
		return nil, nil
	case "demo":
		return Demo()
	case "file":
		return FromFile(cfg.Path)
	case "minio":
		if objects == nil {
			return nil, errors.New("seed: object storage not configured")
		}
		return FromObject(ctx, objects, cfg.Path)
	}
	return nil, fmt.Errorf("seed: unknown source %q", cfg.Source)
}

// Writer is satisfied by the data service and the repositories.
type Writer interface {
	Create(ctx context.Context, collection string, doc engine.Document) (engine.Document, error)
}

// Result counts what Apply did.
type Result struct {
	Inserted int
	Skipped  int
}

// Apply inserts fixtures. Documents whose id already exists are skipped, so
// applying the same fixtures twice is harmless. Collections load in
// parallel; documents within a collection keep their order.
func Apply(ctx context.Context, w Writer, f Fixtures) (Result, error) {
	var inserted, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range f.Collections() {
		docs := f[name]
		g.Go(func() error {
			for _, d := range docs {
				_, err := w.Create(ctx, name, d)
				switch {
				case err == nil:
					inserted.Add(1)
				case errors.Is(err, engine.ErrDuplicateID):
					skipped.Add(1)
				default:
					return fmt.Errorf("seed %s: %w", name, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	res := Result{Inserted: int(inserted.Load()), Skipped: int(skipped.Load())}
	if err == nil {
		logger.Infof("seed: %d documents inserted, %d already present", res.Inserted, res.Skipped)
	}
	return res, err
}
