// Package llmtest provides a scripted model.BaseChatModel for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Responder answers one Generate call.
type Responder func(input []*schema.Message) (string, error)

// ChatModel dispatches each call to the first rule whose marker appears in the
// system prompt, falling back to Default. Every call is recorded.
type ChatModel struct {
	mu      sync.Mutex
	rules   []rule
	Default Responder
	calls   [][]*schema.Message
}

type rule struct {
	marker  string
	respond Responder
	hang    bool
}

var _ model.BaseChatModel = (*ChatModel)(nil)

func NewChatModel() *ChatModel {
	return &ChatModel{}
}

// On registers a responder for prompts whose system message contains marker.
func (m *ChatModel) On(marker string, r Responder) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{marker: marker, respond: r})
	return m
}

// Reply is On with a fixed answer.
func (m *ChatModel) Reply(marker, answer string) *ChatModel {
	return m.On(marker, func([]*schema.Message) (string, error) { return answer, nil })
}

// Fail is On with a fixed error.
func (m *ChatModel) Fail(marker string, err error) *ChatModel {
	return m.On(marker, func([]*schema.Message) (string, error) { return "", err })
}

// Hang makes calls for marker block until their context ends, then return
// the context error, like a model that never answers.
func (m *ChatModel) Hang(marker string) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{marker: marker, hang: true})
	return m
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	respond := m.Default
	hang := false
	system := systemText(input)
	for _, r := range m.rules {
		if strings.Contains(system, r.marker) {
			respond, hang = r.respond, r.hang
			break
		}
	}
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if respond == nil {
		return schema.AssistantMessage("", nil), nil
	}
	out, err := respond(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(out, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns the number of Generate calls whose system prompt contains marker;
// an empty marker counts every call.
func (m *ChatModel) Calls(marker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, in := range m.calls {
		if marker == "" || strings.Contains(systemText(in), marker) {
			n++
		}
	}
	return n
}

// LastInput returns the messages of the latest call matching marker.
func (m *ChatModel) LastInput(marker string) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if marker == "" || strings.Contains(systemText(m.calls[i]), marker) {
			return m.calls[i]
		}
	}
	return nil
}

func systemText(input []*schema.Message) string {
	var b strings.Builder
	for _, msg := range input {
		if msg != nil && msg.Role == schema.System {
			b.WriteString(msg.Content)
		}
	}
	return b.String()
}
