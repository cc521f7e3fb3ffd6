package agent

import (
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/MongoAgent/internal/errx"
)

// Intent 是本轮消息的分类结果，在 CLASSIFY_INTENT 之后不再改变。
type Intent string

const (
	IntentUnclassified        Intent = "UNCLASSIFIED"
	IntentGeneralConversation Intent = "GENERAL_CONVERSATION"
	IntentBusinessInquiry     Intent = "BUSINESS_INQUIRY"
)

// QueryDescriptor 是 QUERY_UNDERSTAND 从自然语言中解析出的操作描述。
type QueryDescriptor struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
}

type ResultError struct {
	Kind    errx.Kind `json:"kind"`
	Message string    `json:"message"`
}

// QueryResult 为成功载荷或失败描述，二者互斥。
type QueryResult struct {
	Success   bool         `json:"success"`
	Operation string       `json:"operation,omitempty"`
	Data      any          `json:"data,omitempty"`
	Error     *ResultError `json:"error,omitempty"`
}

func successResult(operation string, data any) *QueryResult {
	return &QueryResult{Success: true, Operation: operation, Data: data}
}

func failureResult(operation string, kind errx.Kind, message string) *QueryResult {
	return &QueryResult{Operation: operation, Error: &ResultError{Kind: kind, Message: message}}
}

// failureFromError 保留错误分类与安全消息，不暴露底层错误文本。
func failureFromError(operation string, err error) *QueryResult {
	return failureResult(operation, errx.KindOf(err), errx.MessageOf(err))
}

// AgentState 定义了在 Graph 中流转的状态
type AgentState struct {
	ConversationID string `json:"conversation_id"`
	TraceID        string `json:"trace_id"`

	// Messages 为供 LLM 阶段使用的对话历史，内容均为枢轴语言；
	// 用户可见的原文只写入轮次记录。
	Messages []*schema.Message `json:"messages"`

	// 用户本轮原始输入
	UserQuery string `json:"user_query"`
	// PivotQuery 为枢轴语言（英语）下的输入，供所有 LLM 阶段使用
	PivotQuery string `json:"pivot_query"`

	OriginalLanguage   string  `json:"original_language"`
	LanguageName       string  `json:"language_name,omitempty"`
	LanguageConfidence float64 `json:"language_confidence,omitempty"`

	Intent          Intent           `json:"intent"`
	QueryDescriptor *QueryDescriptor `json:"query_descriptor,omitempty"`
	QueryResult     *QueryResult     `json:"query_result,omitempty"`

	// FinalResponse 为枢轴语言下的回答；Response 为回译后的用户可见回答
	FinalResponse string `json:"final_response"`
	Response      string `json:"response"`

	// Visited 记录本轮经过的节点
	Visited []string `json:"visited"`
}

// Outcome 为轮次结果：success 或错误分类。
func (s AgentState) Outcome() string {
	if s.QueryResult != nil && !s.QueryResult.Success && s.QueryResult.Error != nil {
		return string(s.QueryResult.Error.Kind)
	}
	return "success"
}

// Operation 返回本轮解析出的操作名（若有）。
func (s AgentState) Operation() string {
	if s.QueryDescriptor != nil {
		return s.QueryDescriptor.Operation
	}
	return ""
}
