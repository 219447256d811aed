package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns a set of named collections. Operations on one collection are
// serialized by that collection's lock; different collections proceed
// independently. Documents handed to and returned from the store are copies.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection

	now   func() time.Time
	newID func() string
}

type collection struct {
	mu   sync.RWMutex
	docs []Document
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the id source used when a created document has no id.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lookup(name string) *collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collections[name]
}

func (s *Store) collection(name string) *collection {
	if c := s.lookup(name); c != nil {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &collection{}
		s.collections[name] = c
	}
	return c
}

// EnsureCollection creates empty collections that do not exist yet.
func (s *Store) EnsureCollection(names ...string) {
	for _, n := range names {
		s.collection(n)
	}
}

// Collections lists collection names in alphabetical order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of documents in a collection.
func (s *Store) Len(name string) int {
	c := s.lookup(name)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// matching returns copies of the documents matching q, in collection order.
func (s *Store) matching(name string, q Query) []Document {
	c := s.lookup(name)
	if c == nil {
		return []Document{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Document, 0, len(c.docs))
	for _, d := range c.docs {
		if q.Matches(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Find filters a collection and applies sort, skip, limit and projection.
// A missing collection yields an empty result.
func (s *Store) Find(name string, q Query, opts FindOptions) []Document {
	return opts.Apply(s.matching(name, q))
}

// FindOne returns the first matching document in collection order, or nil.
func (s *Store) FindOne(name string, q Query) Document {
	c := s.lookup(name)
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.docs {
		if q.Matches(d) {
			return d.Clone()
		}
	}
	return nil
}

// FindByID returns the document with the given id, or nil.
func (s *Store) FindByID(name, id string) Document {
	c := s.lookup(name)
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.docs[i].Clone()
	}
	return nil
}

// Count returns the number of documents Find would return without options.
func (s *Store) Count(name string, q Query) int {
	return len(s.Find(name, q, FindOptions{}))
}

// Create stores a copy of doc, assigning an id when it has none and stamping
// createdAt/updatedAt. The collection is created on first write.
func (s *Store) Create(name string, doc Document) (Document, error) {
	d := doc.Clone()
	if d == nil {
		d = Document{}
	}
	id := normalizeID(d[FieldID])
	if id == "" {
		id = s.newID()
	}
	d[FieldID] = id
	now := s.now()
	d[FieldCreatedAt] = now
	d[FieldUpdatedAt] = now

	c := s.collection(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) >= 0 {
		return nil, fmt.Errorf("create %s/%s: %w", name, id, ErrDuplicateID)
	}
	c.docs = append(c.docs, d)
	return d.Clone(), nil
}

// Update shallow-merges patch into the document with the given id. The id
// itself cannot be changed. The document keeps its position.
func (s *Store) Update(name, id string, patch Document) (Document, error) {
	c := s.lookup(name)
	if c == nil {
		return nil, fmt.Errorf("update %s/%s: %w", name, id, ErrNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("update %s/%s: %w", name, id, ErrNotFound)
	}
	merged := c.docs[i].Clone()
	for k, v := range patch {
		if k == FieldID {
			continue
		}
		merged[k] = cloneValue(v)
	}
	merged[FieldUpdatedAt] = s.now()
	c.docs[i] = merged
	return merged.Clone(), nil
}

// Delete removes the document with the given id.
func (s *Store) Delete(name, id string) (bool, error) {
	c := s.lookup(name)
	if c == nil {
		return false, fmt.Errorf("delete %s/%s: %w", name, id, ErrNotFound)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return false, fmt.Errorf("delete %s/%s: %w", name, id, ErrNotFound)
	}
	c.docs = slices.Delete(c.docs, i, i+1)
	return true, nil
}

// DeleteMany removes every matching document and returns how many were removed.
func (s *Store) DeleteMany(name string, q Query) int {
	c := s.lookup(name)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.docs)
	c.docs = slices.DeleteFunc(c.docs, q.Matches)
	return before - len(c.docs)
}

// Aggregate runs pipeline over a snapshot of the whole collection.
func (s *Store) Aggregate(name string, pipeline Pipeline) []Document {
	c := s.lookup(name)
	if c == nil {
		return Run(nil, pipeline)
	}
	c.mu.RLock()
	snapshot := cloneAll(c.docs)
	c.mu.RUnlock()
	return Run(snapshot, pipeline)
}

// CreateIndex is accepted as a hint and otherwise does nothing; all queries
// scan the collection.
func (s *Store) CreateIndex(name string, keys SortSpec) {
	s.collection(name)
}

func (c *collection) indexOf(id string) int {
	for i, d := range c.docs {
		if normalizeID(d[FieldID]) == id {
			return i
		}
	}
	return -1
}

// normalizeID accepts string ids as-is and renders other scalars as strings.
func normalizeID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return formatValue(v)
}
