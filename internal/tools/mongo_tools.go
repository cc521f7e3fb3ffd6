package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	defaultFindLimit = 10
	maxFindLimit     = 1000
)

// Database 是 mongo 工具依赖的集合级操作集合，由 *mongodb.Client 实现。
type Database interface {
	ListCollections(ctx context.Context) ([]string, error)
	Find(ctx context.Context, collection string, filter bson.M, opts mongodb.FindOptions) ([]bson.M, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []bson.M) ([]bson.M, error)
	InsertOne(ctx context.Context, collection string, doc bson.M) (string, error)
	UpdateOne(ctx context.Context, collection string, filter, update bson.M, upsert bool) (mongodb.UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	CreateIndex(ctx context.Context, collection string, keys bson.D, opts mongodb.IndexOptions) (string, error)
	DropIndex(ctx context.Context, collection string, name string) error
	ListIndexes(ctx context.Context, collection string) ([]bson.M, error)
	InferSchema(ctx context.Context, collection string, sampleSize int) (*mongodb.CollectionSchema, error)
}

var _ Database = (*mongodb.Client)(nil)

type CollectionsResult struct {
	Collections []string `json:"collections"`
}

type FindResult struct {
	Collection string           `json:"collection"`
	Documents  []map[string]any `json:"documents"`
	Count      int              `json:"count"`
}

type CountResult struct {
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

type AggregateResult struct {
	Collection string           `json:"collection"`
	Documents  []map[string]any `json:"documents"`
	Count      int              `json:"count"`
}

type InsertResult struct {
	Collection   string `json:"collection"`
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

type UpdateResult struct {
	Collection string `json:"collection"`
	mongodb.UpdateResult
}

type DeleteResult struct {
	Collection string `json:"collection"`
	Deleted    int64  `json:"deleted"`
}

type IndexResult struct {
	Collection string `json:"collection"`
	IndexName  string `json:"indexName"`
	Dropped    bool   `json:"dropped,omitempty"`
}

type IndexListResult struct {
	Collection string           `json:"collection"`
	Indexes    []map[string]any `json:"indexes"`
}

var collectionParam = &schema.ParameterInfo{
	Type:     schema.String,
	Desc:     "Name of the collection",
	Required: true,
}

// RegisterMongoTools 将全部 MongoDB 操作登记到 registry。
func RegisterMongoTools(reg *Registry, db Database) error {
	ops := []*Operation{
		{
			Name:   "list_collections",
			Desc:   "List all collections in the database",
			Params: map[string]*schema.ParameterInfo{},
			Execute: func(ctx context.Context, _ map[string]any) (any, error) {
				names, err := db.ListCollections(ctx)
				if err != nil {
					return nil, err
				}
				return CollectionsResult{Collections: names}, nil
			},
		},
		{
			Name: "find",
			Desc: "Query documents in a collection using MongoDB query syntax",
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"filter":     {Type: schema.Object, Desc: "MongoDB query filter (Extended JSON allowed)"},
				"limit":      {Type: schema.Integer, Desc: "Maximum documents to return (default 10, max 1000)"},
				"skip":       {Type: schema.Integer, Desc: "Number of documents to skip"},
				"projection": {Type: schema.Object, Desc: "Fields to include (1) or exclude (0)"},
				"sort":       {Type: schema.Object, Desc: "Sort specification, e.g. {\"age\": -1}"},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				filter, err := objectParam(p, "filter")
				if err != nil {
					return nil, err
				}
				projection, err := objectParam(p, "projection")
				if err != nil {
					return nil, err
				}
				sortMap, _ := p["sort"].(map[string]any)
				sortSpec, err := mongodb.SortSpec(sortMap)
				if err != nil {
					return nil, errx.New(errx.KindSchemaViolation, err, fmt.Sprintf("invalid sort: %v", err))
				}

				docs, err := db.Find(ctx, coll, filter, mongodb.FindOptions{
					Limit:      ClampLimit(intParam(p, "limit", defaultFindLimit)),
					Skip:       int64(max(0, intParam(p, "skip", 0))),
					Projection: projection,
					Sort:       sortSpec,
				})
				if err != nil {
					return nil, err
				}
				out, err := mongodb.ToJSONDocs(docs)
				if err != nil {
					return nil, errx.New(errx.KindDatabaseOperation, err, "could not read the returned documents")
				}
				return FindResult{Collection: coll, Documents: out, Count: len(out)}, nil
			},
		},
		{
			Name: "count",
			Desc: "Count documents in a collection, optionally matching a filter",
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"filter":     {Type: schema.Object, Desc: "MongoDB query filter"},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				filter, err := objectParam(p, "filter")
				if err != nil {
					return nil, err
				}
				n, err := db.Count(ctx, coll, filter)
				if err != nil {
					return nil, err
				}
				return CountResult{Collection: coll, Count: n}, nil
			},
		},
		{
			Name: "aggregate",
			Desc: "Run a read-only aggregation pipeline on a collection ($out and $merge are not allowed)",
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"pipeline": {
					Type:     schema.Array,
					Desc:     "Pipeline stages in order, e.g. [{\"$match\": {...}}, {\"$group\": {...}}]",
					Required: true,
					ElemInfo: &schema.ParameterInfo{Type: schema.Object, Desc: "One stage with a single $operator key"},
				},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				pipeline, err := pipelineParam(p, "pipeline")
				if err != nil {
					return nil, err
				}
				docs, err := db.Aggregate(ctx, coll, append(pipeline, bson.M{"$limit": maxFindLimit}))
				if err != nil {
					return nil, err
				}
				out, err := mongodb.ToJSONDocs(docs)
				if err != nil {
					return nil, errx.New(errx.KindDatabaseOperation, err, "could not read the aggregation result")
				}
				return AggregateResult{Collection: coll, Documents: out, Count: len(out)}, nil
			},
		},
		{
			Name:     "insert_one",
			Desc:     "Insert a single document into a collection",
			Mutating: true,
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"document":   {Type: schema.Object, Desc: "Document to insert", Required: true},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				doc, err := objectParam(p, "document")
				if err != nil {
					return nil, err
				}
				id, err := db.InsertOne(ctx, coll, doc)
				if err != nil {
					return nil, err
				}
				return InsertResult{Collection: coll, Acknowledged: true, InsertedID: id}, nil
			},
		},
		{
			Name:     "update_one",
			Desc:     "Update a single document matching the filter",
			Mutating: true,
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"filter":     {Type: schema.Object, Desc: "Filter selecting the document to update", Required: true},
				"update":     {Type: schema.Object, Desc: "Update operators, e.g. {\"$set\": {...}}", Required: true},
				"upsert":     {Type: schema.Boolean, Desc: "Insert when nothing matches"},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				filter, err := nonEmptyObjectParam(p, "filter")
				if err != nil {
					return nil, err
				}
				update, err := nonEmptyObjectParam(p, "update")
				if err != nil {
					return nil, err
				}
				upsert, _ := p["upsert"].(bool)
				res, err := db.UpdateOne(ctx, coll, filter, withOperators(update), upsert)
				if err != nil {
					return nil, err
				}
				return UpdateResult{Collection: coll, UpdateResult: res}, nil
			},
		},
		{
			Name:     "delete_one",
			Desc:     "Delete a single document matching the filter",
			Mutating: true,
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"filter":     {Type: schema.Object, Desc: "Filter selecting the document to delete", Required: true},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				filter, err := nonEmptyObjectParam(p, "filter")
				if err != nil {
					return nil, err
				}
				n, err := db.DeleteOne(ctx, coll, filter)
				if err != nil {
					return nil, err
				}
				return DeleteResult{Collection: coll, Deleted: n}, nil
			},
		},
		{
			Name:     "create_index",
			Desc:     "Create an index on a collection",
			Mutating: true,
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"indexSpec":  {Type: schema.Object, Desc: "Index keys, e.g. {\"email\": 1}", Required: true},
				"name":       {Type: schema.String, Desc: "Optional index name"},
				"unique":     {Type: schema.Boolean, Desc: "Create a unique index"},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				spec, _ := p["indexSpec"].(map[string]any)
				keys, err := mongodb.IndexKeys(spec)
				if err != nil {
					return nil, errx.New(errx.KindSchemaViolation, err, fmt.Sprintf("invalid index spec: %v", err))
				}
				unique, _ := p["unique"].(bool)
				name, err := db.CreateIndex(ctx, coll, keys, mongodb.IndexOptions{Name: stringParam(p, "name"), Unique: unique})
				if err != nil {
					return nil, err
				}
				return IndexResult{Collection: coll, IndexName: name}, nil
			},
		},
		{
			Name:     "drop_index",
			Desc:     "Drop an index from a collection by name",
			Mutating: true,
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"indexName":  {Type: schema.String, Desc: "Name of the index to drop", Required: true},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				name := stringParam(p, "indexName")
				if name == "_id_" {
					return nil, errx.Newf(errx.KindValidation, "the default _id index cannot be dropped")
				}
				if err := db.DropIndex(ctx, coll, name); err != nil {
					return nil, err
				}
				return IndexResult{Collection: coll, IndexName: name, Dropped: true}, nil
			},
		},
		{
			Name: "list_indexes",
			Desc: "List the indexes of a collection",
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				coll := stringParam(p, "collection")
				idx, err := db.ListIndexes(ctx, coll)
				if err != nil {
					return nil, err
				}
				out, err := mongodb.ToJSONDocs(idx)
				if err != nil {
					return nil, errx.New(errx.KindDatabaseOperation, err, "could not read the index list")
				}
				return IndexListResult{Collection: coll, Indexes: out}, nil
			},
		},
		{
			Name: "infer_schema",
			Desc: "Infer the field structure of a collection from a sample of documents",
			Params: map[string]*schema.ParameterInfo{
				"collection": collectionParam,
				"sampleSize": {Type: schema.Integer, Desc: "Number of documents to sample (1-100, default 100)"},
			},
			Execute: func(ctx context.Context, p map[string]any) (any, error) {
				return db.InferSchema(ctx, stringParam(p, "collection"), ClampSampleSize(intParam(p, "sampleSize", 0)))
			},
		},
	}

	for _, op := range ops {
		if err := reg.Register(op); err != nil {
			return err
		}
	}
	return nil
}

// ClampLimit 将 find 的 limit 限制在 [1, 1000]。
func ClampLimit(n int) int64 {
	if n < 1 {
		return 1
	}
	if n > maxFindLimit {
		return maxFindLimit
	}
	return int64(n)
}

// ClampSampleSize 将 infer_schema 的采样数限制在 [1, 100]；未指定（<=0）时返回 0，由客户端使用配置的默认值。
func ClampSampleSize(n int) int {
	if n <= 0 {
		return 0
	}
	return min(n, mongodb.DefaultSampleSize)
}

func stringParam(p map[string]any, name string) string {
	s, _ := p[name].(string)
	return strings.TrimSpace(s)
}

func intParam(p map[string]any, name string, fallback int) int {
	switch n := p[name].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return fallback
}

func objectParam(p map[string]any, name string) (bson.M, error) {
	m, _ := p[name].(map[string]any)
	out, err := mongodb.FromJSONMap(m)
	if err != nil {
		return nil, errx.New(errx.KindSchemaViolation, err, fmt.Sprintf("parameter %q is not a valid document", name))
	}
	return out, nil
}

// pipelineParam 逐个阶段解码 Extended JSON；每个阶段只能有一个 $ 操作符，且不允许写阶段。
func pipelineParam(p map[string]any, name string) ([]bson.M, error) {
	raw, _ := p[name].([]any)
	out := make([]bson.M, 0, len(raw)+1)
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errx.Newf(errx.KindSchemaViolation, "stage %d of %q must be an object", i, name)
		}
		stage, err := mongodb.FromJSONMap(m)
		if err != nil {
			return nil, errx.New(errx.KindSchemaViolation, err, fmt.Sprintf("stage %d of %q is not a valid document", i, name))
		}
		if len(stage) != 1 {
			return nil, errx.Newf(errx.KindSchemaViolation, "stage %d of %q must have exactly one operator", i, name)
		}
		for op := range stage {
			if !strings.HasPrefix(op, "$") {
				return nil, errx.Newf(errx.KindSchemaViolation, "stage %d of %q must start with a $ operator", i, name)
			}
			if _, banned := writeStages[op]; banned {
				return nil, errx.Newf(errx.KindValidation, "the %s stage writes data and is not allowed here", op)
			}
		}
		out = append(out, stage)
	}
	return out, nil
}

var writeStages = map[string]struct{}{"$out": {}, "$merge": {}}

func nonEmptyObjectParam(p map[string]any, name string) (bson.M, error) {
	out, err := objectParam(p, name)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errx.Newf(errx.KindSchemaViolation, "parameter %q must not be empty", name)
	}
	return out, nil
}

// withOperators 将不含 $ 操作符的更新文档包装为 $set。
func withOperators(update bson.M) bson.M {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return update
		}
	}
	return bson.M{"$set": update}
}
