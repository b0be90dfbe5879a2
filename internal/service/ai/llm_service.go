package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/config"
	"github.com/autostream/agent/backend/internal/model/chat"
)

// ErrModelUnavailable is returned by every call made through a model that could not be
// initialised.
var ErrModelUnavailable = errors.New("reasoning model unavailable")

// Chain is a compiled prompt template followed by a chat model call.
type Chain = compose.Runnable[map[string]any, *schema.Message]

// NewChatModel builds the configured chat model. When credentials are missing or the
// provider rejects the configuration, it logs a warning and returns a model whose calls
// fail with ErrModelUnavailable, so start-up never aborts on a bad credential.
func NewChatModel(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) model.BaseChatModel {
	logger = logger.Named("ai")

	if !cfg.Enabled() {
		logger.Warn("ark credentials not configured, continuing without a reasoning model",
			zap.String("hint", "set ARK_API_KEY and ARK_MODEL"))
		return Unavailable("ark credentials not configured")
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		logger.Warn("failed to initialise chat model, continuing without a reasoning model", zap.Error(err))
		return Unavailable(err.Error())
	}

	logger.Info("chat model initialised", zap.String("model", cfg.Model))
	return chatModel
}

// NewChain compiles template -> chatModel, the shape every reasoning call in the agent uses.
func NewChain(ctx context.Context, chatModel model.BaseChatModel, templates ...schema.MessagesTemplate) (Chain, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, templates...))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return runnable, nil
}

// HistoryMessages converts transcript entries into model messages, oldest first.
func HistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		}
	}
	return history
}

type unavailableModel struct {
	reason string
}

// Unavailable returns a chat model that fails every call with ErrModelUnavailable.
func Unavailable(reason string) model.BaseChatModel {
	return &unavailableModel{reason: reason}
}

func (m *unavailableModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, m.reason)
}

func (m *unavailableModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, m.reason)
}
