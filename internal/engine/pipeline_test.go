package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func orders() []Document {
	return []Document{
		{"id": "o1", "customerId": "c1", "status": "paid", "total": 120.0},
		{"id": "o2", "customerId": "c2", "status": "paid", "total": 80.0},
		{"id": "o3", "customerId": "c1", "status": "cancelled", "total": 40.0},
		{"id": "o4", "customerId": "c1", "status": "paid", "total": 60.0},
		{"id": "o5", "status": "paid", "total": 10.0},
	}
}

func TestGroup_SumAndCount(t *testing.T) {
	docs := []Document{
		{"cat": "a", "total": 10},
		{"cat": "a", "total": 20},
		{"cat": "b", "total": 5},
	}
	p := ParsePipeline([]map[string]any{{
		"$group": map[string]any{
			"_id":   "$cat",
			"sum":   map[string]any{"$sum": "$total"},
			"count": map[string]any{"$count": 1},
		},
	}})

	out := Run(docs, p)
	require.Equal(t, []Document{
		{"_id": "a", "sum": 30.0, "count": 2},
		{"_id": "b", "sum": 5.0, "count": 1},
	}, out)
}

func TestGroup_Accumulators(t *testing.T) {
	p := ParsePipeline([]map[string]any{
		{"$match": map[string]any{"status": map[string]any{"$ne": "cancelled"}}},
		{"$group": map[string]any{
			"_id":    "$customerId",
			"total":  map[string]any{"$sum": "$total"},
			"avg":    map[string]any{"$avg": "$total"},
			"max":    map[string]any{"$max": "$total"},
			"min":    map[string]any{"$min": "$total"},
			"orders": map[string]any{"$sum": 1},
		}},
		{"$sort": map[string]any{"total": -1}},
	})

	out := Run(orders(), p)
	require.Len(t, out, 3)
	require.Equal(t, Document{"_id": "c1", "total": 180.0, "avg": 90.0, "max": 120.0, "min": 60.0, "orders": 2.0}, out[0])
	require.Equal(t, "c2", out[1]["_id"])
	require.Equal(t, "null", out[2]["_id"], "missing group field groups under null")
}

func TestGroup_NullKeysShareOneGroup(t *testing.T) {
	docs := []Document{{"k": "null"}, {}, {"k": nil}, {"k": 1}, {"k": "1"}}
	p := Pipeline{GroupStage{Key: GroupByField{Field: "k"}, Fields: []Accumulator{{Name: "n", Kind: AccCount}}}}

	out := Run(docs, p)
	require.Equal(t, []Document{
		{"_id": "null", "n": 3},
		{"_id": 1, "n": 1},
		{"_id": "1", "n": 1},
	}, out)
}

func TestGroup_CompositeAndConstantKeys(t *testing.T) {
	docs := []Document{
		{"w": "A", "s": "low_stock", "q": 5},
		{"w": "A", "s": "low_stock", "q": 7},
		{"w": "B", "s": "in_stock", "q": 100},
	}

	var p Pipeline
	require.NoError(t, json.Unmarshal([]byte(`[
		{"$group": {"_id": {"warehouse": "$w", "status": "$s"}, "qty": {"$sum": "$q"}}}
	]`), &p))
	out := Run(docs, p)
	require.Equal(t, []Document{
		{"_id": "warehouse:A|status:low_stock", "qty": 12.0},
		{"_id": "warehouse:B|status:in_stock", "qty": 100.0},
	}, out)

	out = Run(docs, ParsePipeline([]map[string]any{{
		"$group": map[string]any{"_id": nil, "qty": map[string]any{"$sum": "$q"}, "n": map[string]any{"$count": map[string]any{}}},
	}}))
	require.Equal(t, []Document{{"_id": nil, "qty": 112.0, "n": 3}}, out)

	require.Empty(t, Run(nil, p), "grouping an empty set yields nothing")
}

func TestPipeline_StagesRunInOrder(t *testing.T) {
	docs := orders()

	// limit before sort sees the original order
	out := Run(docs, Pipeline{LimitStage{N: 2}, SortStage{Spec: SortSpec{{Field: "total", Dir: Asc}}}})
	require.Equal(t, []any{"o2", "o1"}, []any{out[0]["id"], out[1]["id"]})

	out = Run(docs, Pipeline{SortStage{Spec: SortSpec{{Field: "total", Dir: Asc}}}, LimitStage{N: 2}})
	require.Equal(t, []any{"o5", "o3"}, []any{out[0]["id"], out[1]["id"]})

	out = Run(docs, Pipeline{SkipStage{N: 1}, LimitStage{N: 2}})
	require.Equal(t, []any{"o2", "o3"}, []any{out[0]["id"], out[1]["id"]})

	require.Empty(t, Run(docs, Pipeline{LimitStage{N: 0}}))
	require.Len(t, Run(docs, nil), 5)
	require.Equal(t, "o1", docs[0]["id"], "input order untouched")
}

func TestPipeline_UnmarshalJSON(t *testing.T) {
	var p Pipeline
	require.NoError(t, json.Unmarshal([]byte(`[
		{"$match": {"status": "paid"}},
		{"$sort": {"customerId": -1, "total": 1}},
		{"$project": {"id": 1}},
		{"$skip": 1},
		{"$limit": 2}
	]`), &p))
	require.Len(t, p, 4, "unknown stages are dropped")
	require.Equal(t, SortStage{Spec: SortSpec{{Field: "customerId", Dir: Desc}, {Field: "total", Dir: Asc}}}, p[1])

	out := Run(orders(), p)
	require.Equal(t, []any{"o4", "o1"}, []any{out[0]["id"], out[1]["id"]})

	require.Error(t, json.Unmarshal([]byte(`{"$match": {}}`), &p))
}

func TestPipeline_OversizedSkipAndLimit(t *testing.T) {
	var p Pipeline
	require.NoError(t, json.Unmarshal([]byte(`[{"$skip": 1e20}]`), &p))
	require.Equal(t, Pipeline{SkipStage{N: math.MaxInt}}, p)
	require.Empty(t, Run(orders(), p))

	require.NoError(t, json.Unmarshal([]byte(`[{"$limit": 1e20}]`), &p))
	require.Equal(t, Pipeline{LimitStage{N: math.MaxInt}}, p)
	require.Len(t, Run(orders(), p), 5)

	require.NoError(t, json.Unmarshal([]byte(`[{"$skip": -4}, {"$limit": 2}]`), &p))
	require.Equal(t, Pipeline{SkipStage{N: 0}, LimitStage{N: 2}}, p)
	require.Len(t, Run(orders(), p), 2)
}

func TestParseFieldRef(t *testing.T) {
	ref, ok := ParseFieldRef("$total")
	require.True(t, ok)
	require.Equal(t, FieldRef("total"), ref)

	_, ok = ParseFieldRef("total")
	require.False(t, ok)
	_, ok = ParseFieldRef("$")
	require.False(t, ok)
	_, ok = ParseFieldRef(3)
	require.False(t, ok)
}
