package repository

import (
	"context"

	"github.com/buildcore/erp-core/internal/engine"
)

// MemoryRepo serves the Repository contract from an in-process engine.Store.
// Nothing is persisted.
type MemoryRepo struct {
	store *engine.Store
}

// NewMemoryRepo returns a repository over a fresh store.
func NewMemoryRepo(opts ...engine.Option) *MemoryRepo {
	return &MemoryRepo{store: engine.NewStore(opts...)}
}

// NewMemoryRepoFrom wraps an existing store.
func NewMemoryRepoFrom(s *engine.Store) *MemoryRepo {
	return &MemoryRepo{store: s}
}

func (m *MemoryRepo) Backend() string { return "memory" }

func (m *MemoryRepo) Find(ctx context.Context, collection string, q engine.Query, opts engine.FindOptions) ([]engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Find(collection, q, opts), nil
}

func (m *MemoryRepo) FindOne(ctx context.Context, collection string, q engine.Query) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.FindOne(collection, q), nil
}

func (m *MemoryRepo) FindByID(ctx context.Context, collection, id string) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.FindByID(collection, id), nil
}

func (m *MemoryRepo) Create(ctx context.Context, collection string, doc engine.Document) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Create(collection, doc)
}

func (m *MemoryRepo) Update(ctx context.Context, collection, id string, patch engine.Document) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Update(collection, id, patch)
}

func (m *MemoryRepo) Delete(ctx context.Context, collection, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.store.Delete(collection, id)
}

func (m *MemoryRepo) DeleteMany(ctx context.Context, collection string, q engine.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.store.DeleteMany(collection, q), nil
}

func (m *MemoryRepo) Count(ctx context.Context, collection string, q engine.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.store.Count(collection, q), nil
}

func (m *MemoryRepo) Aggregate(ctx context.Context, collection string, p engine.Pipeline) ([]engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Aggregate(collection, p), nil
}

func (m *MemoryRepo) CreateIndex(ctx context.Context, collection string, keys engine.SortSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.CreateIndex(collection, keys)
	return nil
}

func (m *MemoryRepo) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.Collections(), nil
}
