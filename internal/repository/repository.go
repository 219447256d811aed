package repository

import (
	"context"

	"github.com/buildcore/erp-core/internal/engine"
)

// Re-exported so callers can test errors without importing the engine.
var (
	ErrNotFound    = engine.ErrNotFound
	ErrDuplicateID = engine.ErrDuplicateID
)

// Repository is the data-access contract shared by the in-memory engine and
// the MongoDB backend. Lookups that find nothing return a nil document and a
// nil error; Update and Delete report a missing id as ErrNotFound.
type Repository interface {
	Find(ctx context.Context, collection string, q engine.Query, opts engine.FindOptions) ([]engine.Document, error)
	FindOne(ctx context.Context, collection string, q engine.Query) (engine.Document, error)
	FindByID(ctx context.Context, collection, id string) (engine.Document, error)
	Create(ctx context.Context, collection string, doc engine.Document) (engine.Document, error)
	Update(ctx context.Context, collection, id string, patch engine.Document) (engine.Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
	DeleteMany(ctx context.Context, collection string, q engine.Query) (int, error)
	Count(ctx context.Context, collection string, q engine.Query) (int, error)
	Aggregate(ctx context.Context, collection string, p engine.Pipeline) ([]engine.Document, error)
	CreateIndex(ctx context.Context, collection string, keys engine.SortSpec) error
	Collections(ctx context.Context) ([]string, error)
	// Backend names the implementation for metrics and logs.
	Backend() string
}

var (
	_ Repository = (*MemoryRepo)(nil)
	_ Repository = (*MongoRepo)(nil)
)
