package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	for _, d := range []Document{
		{"id": "inv_001", "productId": "prod_001", "quantity": 150, "minimumStock": 50, "status": "in_stock"},
		{"id": "inv_002", "productId": "prod_002", "quantity": 25, "minimumStock": 30, "status": "low_stock"},
		{"id": "inv_003", "productId": "prod_003", "quantity": 0, "minimumStock": 10, "status": "out_of_stock"},
	} {
		_, err := s.Create("inventory", d)
		require.NoError(t, err)
	}
	return s
}

func TestStore_InventoryScenario(t *testing.T) {
	s := seededStore(t)

	got := s.Find("inventory", ParseQuery(map[string]any{"status": "low_stock"}), FindOptions{})
	require.Len(t, got, 1)
	require.Equal(t, "inv_002", got[0].ID())
	require.Equal(t, "prod_002", got[0]["productId"])
	require.Equal(t, 25, got[0]["quantity"])

	require.Equal(t, 2, s.Count("inventory", ParseQuery(map[string]any{"quantity": map[string]any{"$lt": 30}})))
	require.Equal(t, 1, s.Count("inventory", ParseQuery(map[string]any{"quantity": map[string]any{"$lt": 30}, "status": "low_stock"})))
}

func TestStore_CountMatchesFindLength(t *testing.T) {
	s := NewStore()
	_, err := s.Create("inventory", Document{"id": "inv_002", "productId": "prod_002", "quantity": 25, "minimumStock": 30, "status": "low_stock"})
	require.NoError(t, err)

	q := ParseQuery(map[string]any{"quantity": map[string]any{"$lt": 30}})
	require.Equal(t, 1, s.Count("inventory", q))
	require.Equal(t, len(s.Find("inventory", q, FindOptions{})), s.Count("inventory", q))
}

func TestStore_CreateThenFindByID(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(fixedClock(now))

	created, err := s.Create("products", Document{"name": "Hex Bolt", "price": 0.4, "tags": []any{"m8"}})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	require.Equal(t, now, created[FieldCreatedAt])
	require.Equal(t, now, created[FieldUpdatedAt])

	got := s.FindByID("products", created.ID())
	require.Equal(t, created, got)

	require.Nil(t, s.FindByID("products", "nope"))
	require.Nil(t, s.FindByID("missing", created.ID()))
}

func TestStore_CreateKeepsCallerID(t *testing.T) {
	s := NewStore(WithIDGenerator(func() string { return "generated" }))

	d, err := s.Create("customers", Document{"id": "cust_001"})
	require.NoError(t, err)
	require.Equal(t, "cust_001", d.ID())

	d, err = s.Create("customers", Document{"id": ""})
	require.NoError(t, err)
	require.Equal(t, "generated", d.ID())

	_, err = s.Create("customers", Document{"id": "cust_001"})
	require.ErrorIs(t, err, ErrDuplicateID)
	require.Equal(t, 2, s.Len("customers"))
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	in := Document{"id": "p1", "dims": map[string]any{"w": 8}}
	created, err := s.Create("products", in)
	require.NoError(t, err)

	in["name"] = "changed"
	created["dims"].(map[string]any)["w"] = 99
	found := s.Find("products", nil, FindOptions{})
	found[0]["name"] = "also changed"

	got := s.FindByID("products", "p1")
	require.NotContains(t, got, "name")
	require.Equal(t, map[string]any{"w": 8}, got["dims"])
}

func TestStore_ReturnsCopiesOfTypedValues(t *testing.T) {
	s := NewStore()
	lines := []map[string]any{{"sku": "bolt", "qty": 1}}
	labels := map[string]string{"dock": "A"}
	created, err := s.Create("orders", Document{"id": "o1", "items": lines, "labels": labels, "parts": []Document{{"n": 1}}})
	require.NoError(t, err)

	lines[0]["qty"] = 50
	labels["dock"] = "B"
	created["items"].([]map[string]any)[0]["qty"] = 99
	created["parts"].([]Document)[0]["n"] = 2

	got := s.FindByID("orders", "o1")
	require.Equal(t, []map[string]any{{"sku": "bolt", "qty": 1}}, got["items"])
	require.Equal(t, map[string]string{"dock": "A"}, got["labels"])
	require.Equal(t, []Document{{"n": 1}}, got["parts"])

	got["labels"].(map[string]string)["dock"] = "C"
	require.Equal(t, "A", s.FindByID("orders", "o1")["labels"].(map[string]string)["dock"])
}

func TestStore_Update(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := created
	s := NewStore(WithClock(func() time.Time { return clock }))
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Create("orders", Document{"id": id, "status": "pending", "total": 10})
		require.NoError(t, err)
	}

	clock = created.Add(time.Hour)
	updated, err := s.Update("orders", "b", Document{"id": "hijack", "status": "paid", "note": "rush"})
	require.NoError(t, err)
	require.Equal(t, "b", updated.ID())
	require.Equal(t, "paid", updated["status"])
	require.Equal(t, 10, updated["total"])
	require.Equal(t, "rush", updated["note"])
	require.Equal(t, created, updated[FieldCreatedAt])
	require.Equal(t, clock, updated[FieldUpdatedAt])

	all := s.Find("orders", nil, FindOptions{})
	require.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID(), all[1].ID(), all[2].ID()})

	_, err = s.Update("orders", "zzz", Document{"status": "x"})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update("missing", "a", Document{})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_Delete(t *testing.T) {
	s := seededStore(t)

	ok, err := s.Delete("inventory", "inv_002")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, s.Len("inventory"))

	ok, err = s.Delete("inventory", "inv_002")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, ok)

	_, err = s.Delete("missing", "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteMany(t *testing.T) {
	s := seededStore(t)

	require.Equal(t, 0, s.DeleteMany("inventory", ParseQuery(map[string]any{"nonexistentField": "x"})))
	require.Equal(t, 3, s.Len("inventory"))

	n := s.DeleteMany("inventory", ParseQuery(map[string]any{"status": map[string]any{"$in": []any{"low_stock", "out_of_stock"}}}))
	require.Equal(t, 2, n)
	require.Equal(t, 1, s.Len("inventory"))
	require.NotNil(t, s.FindByID("inventory", "inv_001"))

	require.Equal(t, 0, s.DeleteMany("missing", nil))
}

func TestStore_FindOptionsAndFindOne(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		_, err := s.Create("products", Document{"id": fmt.Sprintf("p%d", i), "price": float64(10 - i), "name": fmt.Sprintf("item-%d", i)})
		require.NoError(t, err)
	}

	out := s.Find("products", nil, FindOptions{Skip: 2, Limit: 2})
	require.Equal(t, []string{"p2", "p3"}, []string{out[0].ID(), out[1].ID()})

	out = s.Find("products", ParseQuery(map[string]any{"price": map[string]any{"$gte": 8}}), FindOptions{
		Sort:       SortSpec{{Field: "price", Dir: Asc}},
		Projection: Projection{"name": 1},
	})
	require.Equal(t, []Document{
		{"id": "p2", "name": "item-2"},
		{"id": "p1", "name": "item-1"},
		{"id": "p0", "name": "item-0"},
	}, out)

	one := s.FindOne("products", ParseQuery(map[string]any{"price": map[string]any{"$lt": 9}}))
	require.Equal(t, "p2", one.ID())
	require.Nil(t, s.FindOne("products", ParseQuery(map[string]any{"price": 100})))

	require.Empty(t, s.Find("missing", nil, FindOptions{}))
	require.NotNil(t, s.Find("missing", nil, FindOptions{}))
	require.Equal(t, 0, s.Count("missing", nil))
}

func TestStore_Aggregate(t *testing.T) {
	s := seededStore(t)

	out := s.Aggregate("inventory", ParsePipeline([]map[string]any{
		{"$match": map[string]any{"quantity": map[string]any{"$lt": 100}}},
		{"$group": map[string]any{"_id": nil, "units": map[string]any{"$sum": "$quantity"}, "items": map[string]any{"$count": 1}}},
	}))
	require.Equal(t, []Document{{"_id": nil, "units": 25.0, "items": 2}}, out)

	require.Empty(t, s.Aggregate("missing", Pipeline{}))
	require.Equal(t, 3, s.Len("inventory"))
}

func TestStore_Collections(t *testing.T) {
	s := NewStore()
	s.EnsureCollection("orders", "customers")
	s.CreateIndex("products", SortSpec{{Field: "sku", Dir: Asc}})

	require.Equal(t, []string{"customers", "orders", "products"}, s.Collections())
	require.Equal(t, 0, s.Len("orders"))
	require.Equal(t, 0, s.Len("nope"))
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.Create("events", Document{"worker": w, "seq": i})
				assert.NoError(t, err)
				_ = s.Count("events", ParseQuery(map[string]any{"worker": w}))
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 400, s.Len("events"))
	require.Equal(t, 50, s.Count("events", ParseQuery(map[string]any{"worker": 3})))
}
