// Package aitest provides a scriptable chat model for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Responder produces the reply for one Generate call.
type Responder func(input []*schema.Message) (string, error)

// ChatModel is a model.BaseChatModel that answers through a Responder and records every call.
type ChatModel struct {
	mu      sync.Mutex
	respond Responder
	calls   [][]*schema.Message
}

// NewChatModel returns a fake that delegates to respond.
func NewChatModel(respond Responder) *ChatModel {
	return &ChatModel{respond: respond}
}

// Reply returns a fake that always answers with text.
func Reply(text string) *ChatModel {
	return NewChatModel(func([]*schema.Message) (string, error) { return text, nil })
}

// Fail returns a fake whose every call fails with err.
func Fail(err error) *ChatModel {
	return NewChatModel(func([]*schema.Message) (string, error) { return "", err })
}

// Sequence answers with replies in order, repeating the last one when exhausted.
func Sequence(replies ...string) *ChatModel {
	var (
		mu  sync.Mutex
		idx int
	)
	return NewChatModel(func([]*schema.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return "", nil
		}
		reply := replies[idx]
		if idx < len(replies)-1 {
			idx++
		}
		return reply, nil
	})
}

func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	copied := append([]*schema.Message(nil), input...)
	m.calls = append(m.calls, copied)
	respond := m.respond
	m.mu.Unlock()

	text, err := respond(copied)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(text, nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns the inputs of every Generate call so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

// CallCount reports how many times the model was invoked.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt concatenates the contents of the most recent call's messages.
func (m *ChatModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	var out string
	for _, msg := range m.calls[len(m.calls)-1] {
		out += msg.Content + "\n"
	}
	return out
}
