package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"github.com/wwwzy/MongoAgent/internal/tools"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		raw  string
		want Intent
		ok   bool
	}{
		{"GENERAL_CONVERSATION", IntentGeneralConversation, true},
		{"business_inquiry", IntentBusinessInquiry, true},
		{"  \"BUSINESS_INQUIRY\". ", IntentBusinessInquiry, true},
		{"General Conversation", IntentGeneralConversation, true},
		{"Label: GENERAL_CONVERSATION", IntentGeneralConversation, true},
		{"GENERAL_CONVERSATION or BUSINESS_INQUIRY", IntentUnclassified, false},
		{"", IntentUnclassified, false},
		{"weather", IntentUnclassified, false},
	}
	for _, tt := range tests {
		got, ok := ParseIntent(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseDescriptor(t *testing.T) {
	t.Run("wrapped parameters", func(t *testing.T) {
		d, err := ParseDescriptor("```json\n{\"operation\": \"find\", \"parameters\": {\"collection\": \"users\", \"limit\": 5}}\n```")
		require.NoError(t, err)
		assert.Equal(t, "find", d.Operation)
		assert.Equal(t, map[string]any{"collection": "users", "limit": float64(5)}, d.Parameters)
	})

	t.Run("flat parameters", func(t *testing.T) {
		d, err := ParseDescriptor(`{"operation": "count", "collection": "orders"}`)
		require.NoError(t, err)
		assert.Equal(t, "count", d.Operation)
		assert.Equal(t, map[string]any{"collection": "orders"}, d.Parameters)
	})

	t.Run("null parameters", func(t *testing.T) {
		d, err := ParseDescriptor(`{"operation": "list_collections", "parameters": null}`)
		require.NoError(t, err)
		assert.Empty(t, d.Parameters)
	})

	for _, raw := range []string{
		"count users",
		`{"parameters": {"collection": "users"}}`,
		`{"operation": "  "}`,
		`{"operation": "find", "parameters": "users"}`,
	} {
		_, err := ParseDescriptor(raw)
		assert.Error(t, err, raw)
	}
}

func TestRouting(t *testing.T) {
	assert.Equal(t, NodeClassifyIntent, RouteAfterDetect(AgentState{OriginalLanguage: "en"}))
	assert.Equal(t, NodeClassifyIntent, RouteAfterDetect(AgentState{}))
	assert.Equal(t, NodeTranslateIn, RouteAfterDetect(AgentState{OriginalLanguage: "es"}))

	assert.Equal(t, NodeConversationReply, RouteIntent(AgentState{Intent: IntentGeneralConversation}))
	assert.Equal(t, NodeQueryUnderstand, RouteIntent(AgentState{Intent: IntentBusinessInquiry}))
	assert.Equal(t, NodeQueryUnderstand, RouteIntent(AgentState{Intent: IntentUnclassified}))

	assert.Equal(t, NodeExecute, RouteAfterUnderstand(AgentState{QueryDescriptor: &QueryDescriptor{Operation: "count"}}))
	assert.Equal(t, NodeFormat, RouteAfterUnderstand(AgentState{
		QueryResult: failureResult("", errx.KindSchemaViolation, "bad"),
	}))

	assert.Equal(t, NodeOutput, RouteAfterAnswer(AgentState{OriginalLanguage: "en"}))
	assert.Equal(t, NodeTranslateOut, RouteAfterAnswer(AgentState{OriginalLanguage: "ja"}))
}

func TestRenderResult_Successes(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"count", tools.CountResult{Collection: "users", Count: 42}, "There are 42 users."},
		{"count one", tools.CountResult{Collection: "users", Count: 1}, "There is 1 document in users."},
		{"count zero", tools.CountResult{Collection: "orders", Count: 0}, "There are 0 orders."},
		{"insert", tools.InsertResult{Collection: "users", Acknowledged: true, InsertedID: "abc"}, "Inserted a new document into users with id abc."},
		{"update", tools.UpdateResult{Collection: "users", UpdateResult: mongodb.UpdateResult{Matched: 1, Modified: 1}}, "Updated one document in users."},
		{"update no match", tools.UpdateResult{Collection: "users"}, "No document in users matched your request, so nothing was updated."},
		{"update unchanged", tools.UpdateResult{Collection: "users", UpdateResult: mongodb.UpdateResult{Matched: 1}}, "A matching document in users was found, but it already had those values."},
		{"upsert", tools.UpdateResult{Collection: "users", UpdateResult: mongodb.UpdateResult{UpsertedID: "x1"}}, "No document in users matched, so a new one was created with id x1."},
		{"delete", tools.DeleteResult{Collection: "users", Deleted: 1}, "Deleted one document from users."},
		{"delete none", tools.DeleteResult{Collection: "users"}, "No document in users matched your request, so nothing was deleted."},
		{"index created", tools.IndexResult{Collection: "users", IndexName: "email_1"}, "Created the index email_1 on users."},
		{"index dropped", tools.IndexResult{Collection: "users", IndexName: "email_1", Dropped: true}, "Dropped the index email_1 on users."},
		{"empty find", tools.FindResult{Collection: "users"}, "No documents in users matched your request."},
		{"no collections", tools.CollectionsResult{}, "The database has no collections yet."},
		{"empty aggregate", tools.AggregateResult{Collection: "orders"}, "The aggregation on orders returned no documents."},
		{"empty schema", &mongodb.CollectionSchema{Collection: "logs"}, "No documents in logs could be sampled, so its structure is unknown."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RenderResult(successResult("op", tt.data))
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := RenderResult(successResult("find", tools.FindResult{
		Collection: "users",
		Documents:  []map[string]any{{"name": "Ada"}},
		Count:      1,
	}))
	assert.False(t, ok, "non-empty reads are summarized by the model")

	agg := successResult("aggregate", tools.AggregateResult{
		Collection: "orders",
		Documents:  []map[string]any{{"_id": "paid", "total": 2}},
		Count:      1,
	})
	_, ok = RenderResult(agg)
	assert.False(t, ok)
	assert.Contains(t, fallbackSummary(agg, 500), "The aggregation on orders returned 1 document:")
}

func TestRenderResult_Failures(t *testing.T) {
	tests := []struct {
		kind errx.Kind
		msg  string
		want string
	}{
		{errx.KindNotFound, `the collection "x" is not available`, `I'm sorry, I couldn't find what you asked for: the collection "x" is not available.`},
		{errx.KindValidation, "duplicate key", "The database rejected the insert_one request: duplicate key."},
		{errx.KindConnection, "timeout", "I couldn't reach the database right now. Please try again in a moment."},
		{errx.KindDatabaseOperation, "boom", "The insert_one operation could not be completed. Please try again later."},
		{errx.KindSchemaViolation, unparseableMessage, "I couldn't turn your request into a database operation. Could you rephrase it with more detail?"},
		{errx.KindSchemaViolation, `missing required parameter "document"`, `I couldn't run that request because missing required parameter "document". Could you rephrase it?`},
		{errx.KindInternal, "x", genericApology},
	}
	for _, tt := range tests {
		got, ok := RenderResult(failureResult("insert_one", tt.kind, tt.msg))
		require.True(t, ok)
		assert.Equal(t, tt.want, got, tt.kind)
	}

	got, _ := RenderResult(failureResult("shutdown", errx.KindOperationNotFound, "n/a"))
	assert.Contains(t, got, "can't perform the shutdown operation")
}

func TestSummaryPayloadTruncates(t *testing.T) {
	docs := make([]map[string]any, 100)
	for i := range docs {
		docs[i] = map[string]any{"n": i}
	}
	out := summaryPayload(tools.FindResult{Collection: "c", Documents: docs, Count: 100}, 200)
	assert.LessOrEqual(t, len(out), 200+len("\n... (truncated)"))
	assert.Contains(t, out, "(truncated)")
}

func TestSummaryPayloadKeepsUTF8(t *testing.T) {
	data := map[string]any{"name": strings.Repeat("日本語", 50)}
	for limit := 10; limit < 40; limit++ {
		out := summaryPayload(data, limit)
		assert.True(t, utf8.ValidString(out), "limit %d", limit)
	}
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", AgentState{}.Outcome())
	assert.Equal(t, "success", AgentState{QueryResult: successResult("count", nil)}.Outcome())
	assert.Equal(t, "NOT_FOUND", AgentState{QueryResult: failureResult("find", errx.KindNotFound, "x")}.Outcome())
}
