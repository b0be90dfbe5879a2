package agent

import (
	"context"

	"github.com/autostream/agent/backend/internal/model/chat"
)

// GreetingText is the fixed welcome reply.
const GreetingText = "Hi there! I'm the AutoStream assistant. How can I help you today? Check out our pricing or ask about features."

// GreetingHandler answers salutations without calling any collaborator.
type GreetingHandler struct{}

func NewGreetingHandler() *GreetingHandler {
	return &GreetingHandler{}
}

func (h *GreetingHandler) Name() HandlerName { return HandlerGreeting }

func (h *GreetingHandler) Handle(_ context.Context, state State) (Result, error) {
	return Result{
		Messages: []chat.Message{chat.AssistantMessage(GreetingText)},
		Lead:     state.Lead.Clone(),
	}, nil
}
