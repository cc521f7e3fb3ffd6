// Package toolstest provides an in-memory Database for tests of the tool
// registry and the orchestration graph.
package toolstest

import (
	"context"
	"sort"
	"sync"

	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

// FakeDatabase keeps collections in memory and counts every call per method.
// Filters are matched by top-level equality only.
type FakeDatabase struct {
	mu          sync.Mutex
	Collections map[string][]bson.M
	Indexes     map[string][]bson.M

	// Err, when set, is returned by the named method; ErrTimes limits how
	// many calls fail (0 means always).
	Err      map[string]error
	ErrTimes map[string]int

	calls map[string]int
	// lastSampleSize 为最近一次 InferSchema 收到的采样数
	lastSampleSize int
}

func NewFakeDatabase() *FakeDatabase {
	return &FakeDatabase{
		Collections: map[string][]bson.M{},
		Indexes:     map[string][]bson.M{},
		Err:         map[string]error{},
		ErrTimes:    map[string]int{},
		calls:       map[string]int{},
	}
}

// Seed replaces the documents of a collection.
func (f *FakeDatabase) Seed(collection string, docs ...bson.M) *FakeDatabase {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Collections[collection] = append([]bson.M(nil), docs...)
	return f
}

// FailWith makes method fail with err for the next times calls (0 = always).
func (f *FakeDatabase) FailWith(method string, err error, times int) *FakeDatabase {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err[method] = err
	f.ErrTimes[method] = times
	return f
}

func (f *FakeDatabase) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// LastSampleSize returns the sampleSize passed to the most recent InferSchema call.
func (f *FakeDatabase) LastSampleSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSampleSize
}

func (f *FakeDatabase) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeDatabase) enter(method string) error {
	f.calls[method]++
	err, ok := f.Err[method]
	if !ok || err == nil {
		return nil
	}
	if times := f.ErrTimes[method]; times > 0 {
		if times == 1 {
			delete(f.Err, method)
		}
		f.ErrTimes[method] = times - 1
	}
	return err
}

func (f *FakeDatabase) ListCollections(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListCollections"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Collections))
	for name := range f.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeDatabase) Find(_ context.Context, collection string, filter bson.M, opts mongodb.FindOptions) ([]bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Find"); err != nil {
		return nil, err
	}
	out := make([]bson.M, 0)
	skipped := int64(0)
	for _, doc := range f.Collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		if skipped < opts.Skip {
			skipped++
			continue
		}
		out = append(out, doc)
		if opts.Limit > 0 && int64(len(out)) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (f *FakeDatabase) Count(_ context.Context, collection string, filter bson.M) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Count"); err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range f.Collections[collection] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

// Aggregate supports $match (equality), $skip, $limit and $count; other
// stages pass documents through unchanged.
func (f *FakeDatabase) Aggregate(_ context.Context, collection string, pipeline []bson.M) ([]bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Aggregate"); err != nil {
		return nil, err
	}
	docs := append([]bson.M(nil), f.Collections[collection]...)
	for _, stage := range pipeline {
		for op, arg := range stage {
			switch op {
			case "$match":
				filter, _ := arg.(bson.M)
				kept := docs[:0:0]
				for _, doc := range docs {
					if matches(doc, filter) {
						kept = append(kept, doc)
					}
				}
				docs = kept
			case "$skip":
				docs = docs[min(stageInt(arg), len(docs)):]
			case "$limit":
				docs = docs[:min(stageInt(arg), len(docs))]
			case "$count":
				name, _ := arg.(string)
				docs = []bson.M{{name: int32(len(docs))}}
			}
		}
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}

func stageInt(v any) int {
	switch n := v.(type) {
	case int:
		return max(n, 0)
	case int32:
		return max(int(n), 0)
	case int64:
		return max(int(n), 0)
	case float64:
		return max(int(n), 0)
	}
	return 0
}

func (f *FakeDatabase) InsertOne(_ context.Context, collection string, doc bson.M) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("InsertOne"); err != nil {
		return "", err
	}
	f.Collections[collection] = append(f.Collections[collection], doc)
	if id, ok := doc["_id"].(string); ok {
		return id, nil
	}
	return "generated-id", nil
}

func (f *FakeDatabase) UpdateOne(_ context.Context, collection string, filter, update bson.M, _ bool) (mongodb.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateOne"); err != nil {
		return mongodb.UpdateResult{}, err
	}
	for _, doc := range f.Collections[collection] {
		if !matches(doc, filter) {
			continue
		}
		if set, ok := update["$set"].(bson.M); ok {
			for k, v := range set {
				doc[k] = v
			}
		}
		return mongodb.UpdateResult{Matched: 1, Modified: 1}, nil
	}
	return mongodb.UpdateResult{}, nil
}

func (f *FakeDatabase) DeleteOne(_ context.Context, collection string, filter bson.M) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteOne"); err != nil {
		return 0, err
	}
	docs := f.Collections[collection]
	for i, doc := range docs {
		if matches(doc, filter) {
			f.Collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *FakeDatabase) CreateIndex(_ context.Context, collection string, keys bson.D, opts mongodb.IndexOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateIndex"); err != nil {
		return "", err
	}
	name := opts.Name
	if name == "" && len(keys) > 0 {
		name = keys[0].Key + "_1"
	}
	f.Indexes[collection] = append(f.Indexes[collection], bson.M{"name": name})
	return name, nil
}

func (f *FakeDatabase) DropIndex(_ context.Context, collection string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("DropIndex")
}

func (f *FakeDatabase) ListIndexes(_ context.Context, collection string) ([]bson.M, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListIndexes"); err != nil {
		return nil, err
	}
	return append([]bson.M{{"name": "_id_"}}, f.Indexes[collection]...), nil
}

func (f *FakeDatabase) InferSchema(_ context.Context, collection string, sampleSize int) (*mongodb.CollectionSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSampleSize = sampleSize
	if err := f.enter("InferSchema"); err != nil {
		return nil, err
	}
	docs := f.Collections[collection]
	if sampleSize > 0 && len(docs) > sampleSize {
		docs = docs[:sampleSize]
	}
	schema := mongodb.InferCollectionSchema(collection, docs)
	schema.Count = int64(len(f.Collections[collection]))
	return schema, nil
}

func matches(doc, filter bson.M) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}
