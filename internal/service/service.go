package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buildcore/erp-core/internal/engine"
	"github.com/buildcore/erp-core/internal/repository"
	"github.com/buildcore/erp-core/pkg/logger"
	"github.com/buildcore/erp-core/pkg/metrics"
)

var (
	ErrNotFound       = repository.ErrNotFound
	ErrDuplicateID    = repository.ErrDuplicateID
	ErrInvalidRequest = errors.New("invalid request")
)

// Service defines the data operations used by the handler and report layers.
type Service interface {
	Find(ctx context.Context, collection string, q engine.Query, opts engine.FindOptions) ([]engine.Document, error)
	FindOne(ctx context.Context, collection string, q engine.Query) (engine.Document, error)
	Get(ctx context.Context, collection, id string) (engine.Document, error)
	Create(ctx context.Context, collection string, doc engine.Document) (engine.Document, error)
	Update(ctx context.Context, collection, id string, patch engine.Document) (engine.Document, error)
	Delete(ctx context.Context, collection, id string) error
	DeleteMany(ctx context.Context, collection string, q engine.Query) (int, error)
	Count(ctx context.Context, collection string, q engine.Query) (int, error)
	Aggregate(ctx context.Context, collection string, p engine.Pipeline) ([]engine.Document, error)
	CreateIndex(ctx context.Context, collection string, keys engine.SortSpec) error
	Collections(ctx context.Context) ([]string, error)
	Backend() string
}

// Invalidator is told about every successful write to a collection.
type Invalidator interface {
	Invalidate(ctx context.Context, collection string) error
}

// Option configures the service.
type Option func(*dataService)

// WithInvalidator registers a cache to invalidate on writes.
func WithInvalidator(inv Invalidator) Option {
	return func(s *dataService) { s.invalidator = inv }
}

// New returns a Service over repo.
func New(repo repository.Repository, opts ...Option) Service {
	s := &dataService{repo: repo}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by a fresh in-memory store.
func NewMemoryService(opts ...Option) Service {
	return New(repository.NewMemoryRepo(), opts...)
}

type dataService struct {
	repo        repository.Repository
	invalidator Invalidator
}

// ValidCollection checks a collection name: non-empty, no "$", no NUL and
// no leading or trailing dot.
func ValidCollection(name string) error {
	if name == "" || strings.ContainsAny(name, "$\x00") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("collection %q: %w", name, ErrInvalidRequest)
	}
	return nil
}

func (s *dataService) Backend() string { return s.repo.Backend() }

func (s *dataService) observe(collection, op string, started time.Time, err error) {
	metrics.ObserveStore(s.repo.Backend(), collection, op, started, err)
	switch {
	case err == nil:
		logger.Debugf("store %s %s took %s", op, collection, time.Since(started))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrDuplicateID):
		logger.Debugf("store %s %s: %v", op, collection, err)
	default:
		logger.Warnf("store %s %s failed: %v", op, collection, err)
	}
}

func (s *dataService) invalidate(ctx context.Context, collection string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, collection); err != nil {
		logger.Warnf("report cache invalidate %s: %v", collection, err)
	}
}

func (s *dataService) Find(ctx context.Context, collection string, q engine.Query, opts engine.FindOptions) (docs []engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "find", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, collection, q, opts)
}

func (s *dataService) FindOne(ctx context.Context, collection string, q engine.Query) (doc engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "find_one", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	return s.repo.FindOne(ctx, collection, q)
}

func (s *dataService) Get(ctx context.Context, collection, id string) (doc engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "find_by_id", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	doc, err = s.repo.FindByID(ctx, collection, id)
	if err == nil && doc == nil {
		err = fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, err
}

func (s *dataService) Create(ctx context.Context, collection string, doc engine.Document) (out engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "create", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	if out, err = s.repo.Create(ctx, collection, doc); err == nil {
		s.invalidate(ctx, collection)
	}
	return out, err
}

func (s *dataService) Update(ctx context.Context, collection, id string, patch engine.Document) (out engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "update", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	if out, err = s.repo.Update(ctx, collection, id, patch); err == nil {
		s.invalidate(ctx, collection)
	}
	return out, err
}

func (s *dataService) Delete(ctx context.Context, collection, id string) (err error) {
	defer func(started time.Time) { s.observe(collection, "delete", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return err
	}
	if _, err = s.repo.Delete(ctx, collection, id); err == nil {
		s.invalidate(ctx, collection)
	}
	return err
}

func (s *dataService) DeleteMany(ctx context.Context, collection string, q engine.Query) (n int, err error) {
	defer func(started time.Time) { s.observe(collection, "delete_many", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return 0, err
	}
	if n, err = s.repo.DeleteMany(ctx, collection, q); err == nil && n > 0 {
		s.invalidate(ctx, collection)
	}
	return n, err
}

func (s *dataService) Count(ctx context.Context, collection string, q engine.Query) (n int, err error) {
	defer func(started time.Time) { s.observe(collection, "count", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return 0, err
	}
	return s.repo.Count(ctx, collection, q)
}

func (s *dataService) Aggregate(ctx context.Context, collection string, p engine.Pipeline) (docs []engine.Document, err error) {
	defer func(started time.Time) { s.observe(collection, "aggregate", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return nil, err
	}
	return s.repo.Aggregate(ctx, collection, p)
}

func (s *dataService) CreateIndex(ctx context.Context, collection string, keys engine.SortSpec) (err error) {
	defer func(started time.Time) { s.observe(collection, "create_index", started, err) }(time.Now())
	if err = ValidCollection(collection); err != nil {
		return err
	}
	return s.repo.CreateIndex(ctx, collection, keys)
}

func (s *dataService) Collections(ctx context.Context) ([]string, error) {
	return s.repo.Collections(ctx)
}
