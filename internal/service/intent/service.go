package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/autostream/agent/backend/internal/analysis/intent"
	"github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/service/ai"
	"github.com/autostream/agent/backend/pkg/utils"
)

// Config 控制意图分类服务的行为。
type Config struct {
	HistoryLimit int
}

// Result 表示一次分类结果。标签来自默认值而非模型时 Fallback 为 true。
type Result struct {
	Label    analysis.Label
	Raw      string
	Rule     string
	Fallback bool
}

// Service 使用大模型识别用户意图，出现任何问题都回退到默认标签。
type Service struct {
	classifier   ai.Chain
	historyLimit int
	logger       *zap.Logger
}

// NewService 创建意图分类服务。chatModel 可重用现有的大模型实例。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, logger *zap.Logger) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 3
	}

	chain, err := ai.NewChain(ctx, chatModel,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("history", false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent classifier chain: %w", err)
	}

	return &Service{
		classifier:   chain,
		historyLimit: historyLimit,
		logger:       logger.Named("intent"),
	}, nil
}

// Classify 根据最近几条消息判断意图。
func (s *Service) Classify(ctx context.Context, transcript []chat.Message) Result {
	history := ai.HistoryMessages(tail(transcript, s.historyLimit))
	if len(history) == 0 {
		return s.fallback("", "empty transcript")
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"history": history})
	if err != nil {
		s.logger.Warn("intent classification failed, using default", zap.Error(err))
		return s.fallback("", "classifier error")
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallback("", "empty classifier output")
	}

	label, rule := analysis.Explain(msg.Content)
	result := Result{Label: label, Raw: msg.Content, Rule: rule, Fallback: rule == "default"}
	if result.Fallback {
		s.logger.Info("intent output unrecognised, using default",
			zap.String("raw", utils.Truncate(msg.Content, 80)))
	}
	return result
}

func (s *Service) fallback(raw, reason string) Result {
	s.logger.Debug("intent fallback", zap.String("reason", reason))
	return Result{Label: analysis.Default, Raw: raw, Rule: "default", Fallback: true}
}

func tail(messages []chat.Message, limit int) []chat.Message {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

const systemPrompt = `You are the intent classifier for AutoStream, a SaaS product that provides automated video editing tools for content creators.
Classify the user's latest message, using the preceding messages only as context, into exactly one category:
- greeting: casual conversation or salutations with no product question (for example "hi", "hello there", "good morning").
- inquiry: questions about the product, features, pricing, plans or policies that need the knowledge base.
- high_intent: the user signals they want to buy, try or sign up for a plan, or is providing their name, email or creator platform.
Respond with only the category name: greeting, inquiry or high_intent.`
