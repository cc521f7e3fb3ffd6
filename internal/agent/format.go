package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"

	"github.com/wwwzy/MongoAgent/internal/core"
	"github.com/wwwzy/MongoAgent/internal/errx"
	"github.com/wwwzy/MongoAgent/internal/mongodb"
	"github.com/wwwzy/MongoAgent/internal/tools"
	logx "github.com/wwwzy/MongoAgent/pkg/logger"
)

const genericApology = "I'm sorry, something went wrong while handling your request. Please try again."

type formatStage struct {
	deps Dependencies
	tpl  prompt.ChatTemplate
}

func newFormatStage(deps Dependencies) *formatStage {
	return &formatStage{deps: deps, tpl: newFormatTemplate()}
}

func (s *formatStage) Name() string { return NodeFormat }
func (s *formatStage) Describe() string {
	return "render the result or error as a natural-language answer"
}

func (s *formatStage) Run(ctx context.Context, state AgentState) (AgentState, error) {
	res := state.QueryResult
	if res == nil {
		state.FinalResponse = genericApology
		return state, nil
	}
	if text, ok := RenderResult(res); ok {
		state.FinalResponse = text
		return state, nil
	}

	payload := summaryPayload(res.Data, s.deps.Config.SummaryMaxChars)
	text, err := generate(ctx, s.deps, s.tpl, map[string]any{
		"query":     state.PivotQuery,
		"operation": res.Operation,
		"result":    payload,
	})
	if err != nil || text == "" {
		logx.Warn().Err(err).Str("trace_id", state.TraceID).Str("stage", s.Name()).
			Str("operation", res.Operation).Msg("summary generation failed, using plain rendering")
		state.FinalResponse = fallbackSummary(res, s.deps.Config.SummaryMaxChars)
		return state, nil
	}
	state.FinalResponse = text
	return state, nil
}

// RenderResult 对失败与写操作结果做确定性渲染；
// 非空的读结果返回 false，交给 LLM 总结。
func RenderResult(res *QueryResult) (string, bool) {
	if !res.Success {
		return renderFailure(res), true
	}

	switch d := res.Data.(type) {
	case tools.CountResult:
		if d.Count == 1 {
			return fmt.Sprintf("There is 1 document in %s.", d.Collection), true
		}
		return fmt.Sprintf("There are %d %s.", d.Count, d.Collection), true
	case tools.InsertResult:
		return fmt.Sprintf("Inserted a new document into %s with id %s.", d.Collection, d.InsertedID), true
	case tools.UpdateResult:
		switch {
		case d.UpsertedID != "":
			return fmt.Sprintf("No document in %s matched, so a new one was created with id %s.", d.Collection, d.UpsertedID), true
		case d.Matched == 0:
			return fmt.Sprintf("No document in %s matched your request, so nothing was updated.", d.Collection), true
		case d.Modified == 0:
			return fmt.Sprintf("A matching document in %s was found, but it already had those values.", d.Collection), true
		}
		return fmt.Sprintf("Updated one document in %s.", d.Collection), true
	case tools.DeleteResult:
		if d.Deleted == 0 {
			return fmt.Sprintf("No document in %s matched your request, so nothing was deleted.", d.Collection), true
		}
		return fmt.Sprintf("Deleted one document from %s.", d.Collection), true
	case tools.IndexResult:
		if d.Dropped {
			return fmt.Sprintf("Dropped the index %s on %s.", d.IndexName, d.Collection), true
		}
		return fmt.Sprintf("Created the index %s on %s.", d.IndexName, d.Collection), true
	case tools.FindResult:
		if len(d.Documents) == 0 {
			return fmt.Sprintf("No documents in %s matched your request.", d.Collection), true
		}
	case tools.AggregateResult:
		if len(d.Documents) == 0 {
			return fmt.Sprintf("The aggregation on %s returned no documents.", d.Collection), true
		}
	case tools.CollectionsResult:
		if len(d.Collections) == 0 {
			return "The database has no collections yet.", true
		}
	case tools.IndexListResult:
		if len(d.Indexes) == 0 {
			return fmt.Sprintf("The collection %s has no indexes.", d.Collection), true
		}
	case *mongodb.CollectionSchema:
		if d == nil || len(d.Fields) == 0 {
			name := ""
			if d != nil {
				name = d.Collection
			}
			return fmt.Sprintf("No documents in %s could be sampled, so its structure is unknown.", name), true
		}
	case nil:
		return "The operation completed but returned no data.", true
	}
	return "", false
}

func renderFailure(res *QueryResult) string {
	kind, msg := errx.KindInternal, ""
	if res.Error != nil {
		kind, msg = res.Error.Kind, res.Error.Message
	}
	op := res.Operation
	if op == "" {
		op = "requested"
	}

	switch kind {
	// 未知操作与白名单外的集合都在执行前被拒绝，两者都只给出致歉，不触达数据库。
	case errx.KindOperationNotFound:
		return fmt.Sprintf("I'm sorry, I can't perform the %s operation. I can only list, find, count, aggregate, insert, update and delete documents and manage indexes.", op)
	case errx.KindNotFound:
		return fmt.Sprintf("I'm sorry, I couldn't find what you asked for: %s.", msg)
	case errx.KindSchemaViolation:
		if msg == unparseableMessage {
			return "I couldn't turn your request into a database operation. Could you rephrase it with more detail?"
		}
		return fmt.Sprintf("I couldn't run that request because %s. Could you rephrase it?", msg)
	case errx.KindValidation:
		return fmt.Sprintf("The database rejected the %s request: %s.", op, msg)
	case errx.KindConnection:
		return "I couldn't reach the database right now. Please try again in a moment."
	case errx.KindDatabaseOperation:
		return fmt.Sprintf("The %s operation could not be completed. Please try again later.", op)
	case errx.KindLLMService:
		return "I'm sorry, I'm having trouble understanding requests right now. Please try again in a moment."
	}
	return genericApology
}

// summaryPayload 序列化结果，超过 maxChars 时截断。
func summaryPayload(data any, maxChars int) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	s := string(b)
	if maxChars > 0 && len(s) > maxChars {
		s = core.CutUTF8(s, maxChars) + "\n... (truncated)"
	}
	return s
}

func fallbackSummary(res *QueryResult, maxChars int) string {
	var head string
	switch d := res.Data.(type) {
	case tools.FindResult:
		head = fmt.Sprintf("Found %d document%s in %s:", d.Count, plural(int64(d.Count), "", "s"), d.Collection)
	case tools.AggregateResult:
		head = fmt.Sprintf("The aggregation on %s returned %d document%s:", d.Collection, d.Count, plural(int64(d.Count), "", "s"))
	case tools.CollectionsResult:
		return fmt.Sprintf("The database has %d collection%s: %s.",
			len(d.Collections), plural(int64(len(d.Collections)), "", "s"), strings.Join(d.Collections, ", "))
	case tools.IndexListResult:
		head = fmt.Sprintf("The collection %s has %d index%s:", d.Collection, len(d.Indexes), plural(int64(len(d.Indexes)), "", "es"))
	case *mongodb.CollectionSchema:
		head = fmt.Sprintf("Structure of %s, sampled from %d document%s:", d.Collection, d.SampleSize, plural(int64(d.SampleSize), "", "s"))
	default:
		head = fmt.Sprintf("The %s operation returned:", res.Operation)
	}
	return head + "\n" + summaryPayload(res.Data, maxChars)
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
