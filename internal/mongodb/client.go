package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	logx "github.com/wwwzy/MongoAgent/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultSampleSize = 100
)

type Config struct {
	URI            string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Database       string        `mapstructure:"database" yaml:"database" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// OpTimeout 为单次数据库调用的超时；<=0 表示只受调用方 ctx 控制。
	OpTimeout  time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
	SampleSize int           `mapstructure:"sample_size" yaml:"sample_size" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		ConnectTimeout: 10 * time.Second,
		OpTimeout:      15 * time.Second,
		SampleSize:     DefaultSampleSize,
	}
}

type FindOptions struct {
	Limit      int64
	Skip       int64
	Projection bson.M
	Sort       bson.D
}

type UpdateResult struct {
	Matched    int64  `json:"matched"`
	Modified   int64  `json:"modified"`
	UpsertedID string `json:"upsertedId,omitempty"`
}

type IndexOptions struct {
	Name   string
	Unique bool
}

// Client 是数据库协作方：对单个 database 暴露集合级别的操作，可被多个轮次并发使用。
type Client struct {
	cfg    Config
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	c := &Client{cfg: cfg, client: client, db: client.Database(cfg.Database)}
	if err := c.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logx.Info().Str("database", cfg.Database).Msg("connected to mongodb")
	return c, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("mongo client not initialized")
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

func (c *Client) SampleSize() int {
	return c.cfg.SampleSize
}

func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.OpTimeout)
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	names, err := c.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, classify("list_collections", "", err)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}

	cur, err := c.db.Collection(collection).Find(ctx, nonNil(filter), findOpts)
	if err != nil {
		return nil, classify("find", collection, err)
	}
	defer cur.Close(ctx)

	docs := make([]bson.M, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify("find", collection, err)
	}
	return docs, nil
}

// Aggregate 执行聚合管道；管道由调用方保证不含写阶段。
func (c *Client) Aggregate(ctx context.Context, collection string, pipeline []bson.M) ([]bson.M, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if pipeline == nil {
		pipeline = []bson.M{}
	}
	cur, err := c.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify("aggregate", collection, err)
	}
	defer cur.Close(ctx)

	docs := make([]bson.M, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify("aggregate", collection, err)
	}
	return docs, nil
}

func (c *Client) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	n, err := c.db.Collection(collection).CountDocuments(ctx, nonNil(filter))
	if err != nil {
		return 0, classify("count", collection, err)
	}
	return n, nil
}

func (c *Client) InsertOne(ctx context.Context, collection string, doc bson.M) (string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	res, err := c.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", classify("insert_one", collection, err)
	}
	return idString(res.InsertedID), nil
}

func (c *Client) UpdateOne(ctx context.Context, collection string, filter, update bson.M, upsert bool) (UpdateResult, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	res, err := c.db.Collection(collection).UpdateOne(ctx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	if err != nil {
		return UpdateResult{}, classify("update_one", collection, err)
	}
	out := UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if res.UpsertedID != nil {
		out.UpsertedID = idString(res.UpsertedID)
	}
	return out, nil
}

func (c *Client) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	res, err := c.db.Collection(collection).DeleteOne(ctx, nonNil(filter))
	if err != nil {
		return 0, classify("delete_one", collection, err)
	}
	return res.DeletedCount, nil
}

func (c *Client) CreateIndex(ctx context.Context, collection string, keys bson.D, opts IndexOptions) (string, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	idxOpts := options.Index()
	if opts.Name != "" {
		idxOpts.SetName(opts.Name)
	}
	if opts.Unique {
		idxOpts.SetUnique(true)
	}

	name, err := c.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: idxOpts})
	if err != nil {
		return "", classify("create_index", collection, err)
	}
	return name, nil
}

func (c *Client) DropIndex(ctx context.Context, collection string, name string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	if _, err := c.db.Collection(collection).Indexes().DropOne(ctx, name); err != nil {
		return classify("drop_index", collection, err)
	}
	return nil
}

func (c *Client) ListIndexes(ctx context.Context, collection string) ([]bson.M, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	cur, err := c.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, classify("list_indexes", collection, err)
	}
	defer cur.Close(ctx)

	out := make([]bson.M, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify("list_indexes", collection, err)
	}
	return out, nil
}

// InferSchema 采样最多 sampleSize 条文档推断字段类型，并附带文档总数与索引。
// mongo.sample_size 既是默认采样数也是上限。
func (c *Client) InferSchema(ctx context.Context, collection string, sampleSize int) (*CollectionSchema, error) {
	if sampleSize <= 0 || sampleSize > c.cfg.SampleSize {
		sampleSize = c.cfg.SampleSize
	}

	docs, err := c.Find(ctx, collection, bson.M{}, FindOptions{Limit: int64(sampleSize)})
	if err != nil {
		return nil, err
	}
	count, err := c.Count(ctx, collection, bson.M{})
	if err != nil {
		return nil, err
	}
	indexes, err := c.ListIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}

	schema := InferCollectionSchema(collection, docs)
	schema.Count = count
	schema.Indexes, err = ToJSONDocs(indexes)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
