package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunQuery_FindOnDemoData(t *testing.T) {
	var out bytes.Buffer
	err := runQuery(context.Background(), &out, queryOptions{
		collection: "inventory",
		filter:     `{"quantity":{"$lt":30}}`,
		sort:       "-quantity",
		fields:     "productId,quantity",
	})
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &docs))
	require.Equal(t, []map[string]any{
		{"id": "inv_002", "productId": "prod_002", "quantity": 25.0},
		{"id": "inv_004", "productId": "prod_004", "quantity": 0.0},
	}, docs)
}

func TestRunQuery_CountAndAggregate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, queryOptions{
		collection: "inventory",
		filter:     `{"status":"low_stock"}`,
		count:      true,
	}))
	require.JSONEq(t, `1`, out.String())

	out.Reset()
	require.NoError(t, runQuery(context.Background(), &out, queryOptions{
		collection: "inventory",
		pipeline:   `[{"$match":{"status":"in_stock"}},{"$group":{"_id":null,"n":{"$count":{}}}}]`,
	}))
	require.JSONEq(t, `[{"_id":null,"n":3}]`, out.String())
}

func TestRunQuery_ReportFromFixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inventory":[
		{"id":"inv_002","productId":"prod_002","quantity":25,"minimumStock":30,"status":"low_stock"}
	]}`), 0o600))

	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, queryOptions{fixtures: path, report: "low-stock"}))
	var rep struct {
		Name string           `json:"name"`
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Equal(t, "low-stock", rep.Name)
	require.Len(t, rep.Rows, 1)
	require.Equal(t, "inv_002", rep.Rows[0]["id"])
}

func TestRunQuery_Errors(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	require.Error(t, runQuery(ctx, &out, queryOptions{}))
	require.Error(t, runQuery(ctx, &out, queryOptions{collection: "inventory", filter: "{"}))
	require.Error(t, runQuery(ctx, &out, queryOptions{collection: "inventory", sort: "a:5"}))
	require.Error(t, runQuery(ctx, &out, queryOptions{collection: "inventory", pipeline: `{}`}))
	require.Error(t, runQuery(ctx, &out, queryOptions{report: "nope"}))
	require.Error(t, runQuery(ctx, &out, queryOptions{collection: "inventory", fixtures: "/does/not/exist.json"}))
}
