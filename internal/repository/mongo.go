package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/buildcore/erp-core/internal/engine"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on a MongoDB database, one Mongo collection
// per engine collection. Documents keep their string "id" field, backed by a
// unique index; Mongo's own _id never leaves the repository.
type MongoRepo struct {
	db  *mongo.Database
	now func() time.Time

	mu      sync.Mutex
	indexed map[string]bool
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{
		db:      db,
		now:     func() time.Time { return time.Now().UTC() },
		indexed: make(map[string]bool),
	}
}

func (m *MongoRepo) Backend() string { return "mongodb" }

// collection returns the Mongo collection, creating the unique id index the
// first time it is used for writing.
func (m *MongoRepo) collection(ctx context.Context, name string, write bool) (*mongo.Collection, error) {
	col := m.db.Collection(name)
	if !write {
		return col, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed[name] {
		return col, nil
	}
	idx := mongo.IndexModel{Keys: bson.D{{Key: engine.FieldID, Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("ensure id index on %s: %w", name, err)
	}
	m.indexed[name] = true
	return col, nil
}

func (m *MongoRepo) Find(ctx context.Context, collection string, q engine.Query, opts engine.FindOptions) ([]engine.Document, error) {
	col, _ := m.collection(ctx, collection, false)
	fo := options.Find().SetProjection(projectionToBSON(opts.Projection))
	if len(opts.Sort) > 0 {
		fo.SetSort(sortToBSON(opts.Sort))
	}
	if opts.Skip > 0 {
		fo.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}
	cur, err := col.Find(ctx, filterToBSON(q), fo)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return toDocuments(raw), nil
}

func (m *MongoRepo) findOne(ctx context.Context, collection string, filter bson.M) (engine.Document, error) {
	col, _ := m.collection(ctx, collection, false)
	var raw bson.M
	err := col.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find one %s: %w", collection, err)
	}
	return toDocument(raw), nil
}

func (m *MongoRepo) FindOne(ctx context.Context, collection string, q engine.Query) (engine.Document, error) {
	return m.findOne(ctx, collection, filterToBSON(q))
}

func (m *MongoRepo) FindByID(ctx context.Context, collection, id string) (engine.Document, error) {
	return m.findOne(ctx, collection, bson.M{engine.FieldID: id})
}

func (m *MongoRepo) Create(ctx context.Context, collection string, doc engine.Document) (engine.Document, error) {
	col, err := m.collection(ctx, collection, true)
	if err != nil {
		return nil, err
	}
	d := doc.Clone()
	if d == nil {
		d = engine.Document{}
	}
	delete(d, "_id")
	id, _ := d[engine.FieldID].(string)
	if id == "" {
		if v, ok := d[engine.FieldID]; ok && v != nil {
			id = fmt.Sprint(v)
		} else {
			id = uuid.NewString()
		}
	}
	d[engine.FieldID] = id
	now := m.now()
	d[engine.FieldCreatedAt] = now
	d[engine.FieldUpdatedAt] = now

	if _, err := col.InsertOne(ctx, bson.M(d)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("create %s/%s: %w", collection, id, ErrDuplicateID)
		}
		return nil, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return d, nil
}

func (m *MongoRepo) Update(ctx context.Context, collection, id string, patch engine.Document) (engine.Document, error) {
	col, _ := m.collection(ctx, collection, false)
	set := bson.M{}
	for k, v := range patch {
		if k == engine.FieldID || k == "_id" {
			continue
		}
		set[k] = v
	}
	set[engine.FieldUpdatedAt] = m.now()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 0})
	var raw bson.M
	err := col.FindOneAndUpdate(ctx, bson.M{engine.FieldID: id}, bson.M{"$set": set}, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return toDocument(raw), nil
}

func (m *MongoRepo) Delete(ctx context.Context, collection, id string) (bool, error) {
	col, _ := m.collection(ctx, collection, false)
	res, err := col.DeleteOne(ctx, bson.M{engine.FieldID: id})
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return true, nil
}

func (m *MongoRepo) DeleteMany(ctx context.Context, collection string, q engine.Query) (int, error) {
	col, _ := m.collection(ctx, collection, false)
	res, err := col.DeleteMany(ctx, filterToBSON(q))
	if err != nil {
		return 0, fmt.Errorf("delete many %s: %w", collection, err)
	}
	return int(res.DeletedCount), nil
}

func (m *MongoRepo) Count(ctx context.Context, collection string, q engine.Query) (int, error) {
	col, _ := m.collection(ctx, collection, false)
	n, err := col.CountDocuments(ctx, filterToBSON(q))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

func (m *MongoRepo) Aggregate(ctx context.Context, collection string, p engine.Pipeline) ([]engine.Document, error) {
	col, _ := m.collection(ctx, collection, false)
	cur, err := col.Aggregate(ctx, pipelineToBSON(p))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	return toDocuments(raw), nil
}

func (m *MongoRepo) CreateIndex(ctx context.Context, collection string, keys engine.SortSpec) error {
	if len(keys) == 0 {
		return nil
	}
	col, _ := m.collection(ctx, collection, false)
	if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: sortToBSON(keys)}); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

func (m *MongoRepo) Collections(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	slices.Sort(names)
	return names, nil
}
