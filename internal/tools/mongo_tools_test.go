package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"github.com/wwwzy/MongoAgent/internal/tools/toolstest"
	"go.mongodb.org/mongo-driver/bson"
)

func newMongoRegistry(t *testing.T) (*Registry, *toolstest.FakeDatabase) {
	t.Helper()
	db := toolstest.NewFakeDatabase().Seed("users",
		bson.M{"_id": "u1", "name": "Ada", "role": "admin"},
		bson.M{"_id": "u2", "name": "Linus", "role": "user"},
		bson.M{"_id": "u3", "name": "Grace", "role": "user"},
	)
	reg := NewRegistry()
	require.NoError(t, RegisterMongoTools(reg, db))
	return reg, db
}

func run(t *testing.T, reg *Registry, name string, params map[string]any) (any, error) {
	t.Helper()
	op, err := reg.Validate(name, params)
	if err != nil {
		return nil, err
	}
	return op.Execute(context.Background(), params)
}

func TestMongoTools_Mutating(t *testing.T) {
	reg, _ := newMongoRegistry(t)
	writes := map[string]bool{"insert_one": true, "update_one": true, "delete_one": true, "create_index": true, "drop_index": true}
	for _, op := range reg.Operations() {
		assert.Equal(t, writes[op.Name], op.Mutating, op.Name)
	}
}

func TestMongoTools_Count(t *testing.T) {
	reg, _ := newMongoRegistry(t)

	res, err := run(t, reg, "count", map[string]any{"collection": "users"})
	require.NoError(t, err)
	assert.Equal(t, CountResult{Collection: "users", Count: 3}, res)

	res, err = run(t, reg, "count", map[string]any{"collection": "users", "filter": map[string]any{"role": "user"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.(CountResult).Count)
}

func TestMongoTools_Find(t *testing.T) {
	reg, _ := newMongoRegistry(t)

	res, err := run(t, reg, "find", map[string]any{"collection": "users", "limit": float64(2)})
	require.NoError(t, err)
	found := res.(FindResult)
	assert.Equal(t, 2, found.Count)
	assert.Equal(t, "Ada", found.Documents[0]["name"])

	res, err = run(t, reg, "find", map[string]any{"collection": "users", "skip": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, "Grace", res.(FindResult).Documents[0]["name"])

	_, err = run(t, reg, "find", map[string]any{"collection": "users", "sort": map[string]any{"name": "up"}})
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))
}

func TestMongoTools_Aggregate(t *testing.T) {
	reg, db := newMongoRegistry(t)

	res, err := run(t, reg, "aggregate", map[string]any{
		"collection": "users",
		"pipeline": []any{
			map[string]any{"$match": map[string]any{"role": "user"}},
			map[string]any{"$count": "n"},
		},
	})
	require.NoError(t, err)
	agg := res.(AggregateResult)
	assert.Equal(t, "users", agg.Collection)
	require.Equal(t, 1, agg.Count)
	assert.EqualValues(t, 2, agg.Documents[0]["n"])
	assert.Equal(t, 1, db.Calls("Aggregate"))

	res, err = run(t, reg, "aggregate", map[string]any{
		"collection": "users",
		"pipeline":   []any{map[string]any{"$skip": float64(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.(AggregateResult).Count)

	op, ok := reg.Lookup("aggregate")
	require.True(t, ok)
	assert.False(t, op.Mutating)
}

func TestMongoTools_AggregateRejectsBadStages(t *testing.T) {
	reg, db := newMongoRegistry(t)

	tests := []struct {
		name     string
		pipeline any
		kind     errx.Kind
	}{
		{name: "missing", pipeline: nil, kind: errx.KindSchemaViolation},
		{name: "not an array", pipeline: map[string]any{"$match": map[string]any{}}, kind: errx.KindSchemaViolation},
		{name: "stage not an object", pipeline: []any{"$match"}, kind: errx.KindSchemaViolation},
		{name: "two operators", pipeline: []any{map[string]any{"$match": map[string]any{}, "$limit": float64(1)}}, kind: errx.KindSchemaViolation},
		{name: "no operator", pipeline: []any{map[string]any{"role": "user"}}, kind: errx.KindSchemaViolation},
		{name: "bad extended json", pipeline: []any{map[string]any{"$match": map[string]any{"_id": map[string]any{"$oid": "nope"}}}}, kind: errx.KindSchemaViolation},
		{name: "out stage", pipeline: []any{map[string]any{"$out": "copy"}}, kind: errx.KindValidation},
		{name: "merge stage", pipeline: []any{map[string]any{"$merge": map[string]any{"into": "copy"}}}, kind: errx.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, reg, "aggregate", map[string]any{"collection": "users", "pipeline": tt.pipeline})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errx.KindOf(err))
		})
	}
	assert.Zero(t, db.Calls("Aggregate"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, int64(1), ClampLimit(0))
	assert.Equal(t, int64(1), ClampLimit(-5))
	assert.Equal(t, int64(50), ClampLimit(50))
	assert.Equal(t, int64(1000), ClampLimit(5000))
}

func TestMongoTools_UpdateWrapsPlainDocument(t *testing.T) {
	reg, db := newMongoRegistry(t)

	res, err := run(t, reg, "update_one", map[string]any{
		"collection": "users",
		"filter":     map[string]any{"_id": "u2"},
		"update":     map[string]any{"role": "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.(UpdateResult).Matched)
	assert.Equal(t, "admin", db.Collections["users"][1]["role"])
}

func TestMongoTools_RefusesEmptyFilters(t *testing.T) {
	reg, db := newMongoRegistry(t)

	_, err := run(t, reg, "delete_one", map[string]any{"collection": "users", "filter": map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))

	_, err = run(t, reg, "update_one", map[string]any{
		"collection": "users",
		"filter":     map[string]any{"_id": "u1"},
		"update":     map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))

	assert.Zero(t, db.Calls("DeleteOne"))
	assert.Zero(t, db.Calls("UpdateOne"))
}

func TestMongoTools_InsertAndDelete(t *testing.T) {
	reg, db := newMongoRegistry(t)

	res, err := run(t, reg, "insert_one", map[string]any{
		"collection": "users",
		"document":   map[string]any{"_id": "u4", "name": "Ken"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u4", res.(InsertResult).InsertedID)

	res, err = run(t, reg, "delete_one", map[string]any{"collection": "users", "filter": map[string]any{"_id": "u1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.(DeleteResult).Deleted)
	assert.Len(t, db.Collections["users"], 3)
}

func TestMongoTools_Indexes(t *testing.T) {
	reg, db := newMongoRegistry(t)

	res, err := run(t, reg, "create_index", map[string]any{"collection": "users", "indexSpec": map[string]any{"email": float64(1)}, "unique": true})
	require.NoError(t, err)
	assert.Equal(t, "email_1", res.(IndexResult).IndexName)

	res, err = run(t, reg, "list_indexes", map[string]any{"collection": "users"})
	require.NoError(t, err)
	assert.Len(t, res.(IndexListResult).Indexes, 2)

	_, err = run(t, reg, "drop_index", map[string]any{"collection": "users", "indexName": "_id_"})
	require.Error(t, err)
	assert.Equal(t, errx.KindValidation, errx.KindOf(err))
	assert.Zero(t, db.Calls("DropIndex"))
}

func TestMongoTools_DatabaseErrorPassesThrough(t *testing.T) {
	reg, db := newMongoRegistry(t)
	db.FailWith("Count", errx.Newf(errx.KindConnection, "could not reach the database"), 0)

	_, err := run(t, reg, "count", map[string]any{"collection": "users"})
	require.Error(t, err)
	assert.Equal(t, errx.KindConnection, errx.KindOf(err))
}

func TestMongoTools_InferSchema(t *testing.T) {
	reg, _ := newMongoRegistry(t)

	res, err := run(t, reg, "infer_schema", map[string]any{"collection": "users", "sampleSize": float64(2)})
	require.NoError(t, err)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name"`)
}

func TestMongoTools_InferSchemaCapsSampleSize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{name: "huge", in: float64(5e8), want: mongodb.DefaultSampleSize},
		{name: "small", in: float64(7), want: 7},
		{name: "negative", in: float64(-3), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, db := newMongoRegistry(t)
			_, err := run(t, reg, "infer_schema", map[string]any{"collection": "users", "sampleSize": tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, db.LastSampleSize())
			assert.Equal(t, 1, db.TotalCalls(), "one Database call per operation")
		})
	}

	reg, db := newMongoRegistry(t)
	_, err := run(t, reg, "infer_schema", map[string]any{"collection": "users"})
	require.NoError(t, err)
	assert.Zero(t, db.LastSampleSize(), "unset size defers to the configured default")
}

func TestInvokableOperation(t *testing.T) {
	reg, _ := newMongoRegistry(t)

	tl, ok := reg.Tool("count")
	require.True(t, ok)
	info, err := tl.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "count", info.Name)

	out, err := tl.InvokableRun(context.Background(), `{"collection":"users"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":"users","count":3}`, out)

	_, err = tl.InvokableRun(context.Background(), `{}`)
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))

	_, err = tl.InvokableRun(context.Background(), `not json`)
	require.Error(t, err)
	assert.Equal(t, errx.KindSchemaViolation, errx.KindOf(err))

	_, ok = reg.Tool("drop_database")
	assert.False(t, ok)
	assert.Len(t, reg.Tools(), 11)
}

func TestInvokableOperation_EmptyArguments(t *testing.T) {
	reg, _ := newMongoRegistry(t)
	tl, ok := reg.Tool("list_collections")
	require.True(t, ok)

	out, err := tl.InvokableRun(context.Background(), "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"collections":["users"]}`, out)
}

var errBoom = errors.New("boom")
