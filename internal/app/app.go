// Package app assembles the agent from configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/config"
	"github.com/autostream/agent/backend/internal/service/agent"
	"github.com/autostream/agent/backend/internal/service/ai"
	"github.com/autostream/agent/backend/internal/service/chat"
	"github.com/autostream/agent/backend/internal/service/intent"
	"github.com/autostream/agent/backend/internal/service/knowledge"
	"github.com/autostream/agent/backend/internal/service/lead"
)

// App holds the wired services.
type App struct {
	Agent     *agent.Orchestrator
	Sessions  *chat.Service
	Leads     *lead.MockSink
	Knowledge *knowledge.Retriever
}

// Build wires the agent. A missing or broken reasoning model does not fail the build;
// turns that need it fail at call time instead.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	chatModel := ai.NewChatModel(ctx, cfg.AI, logger)
	return BuildWithModel(ctx, cfg, chatModel, newEmbedder(ctx, cfg.Embedding, logger), logger)
}

// BuildWithModel wires the agent around an existing chat model and optional embedder.
func BuildWithModel(ctx context.Context, cfg *config.Config, chatModel model.BaseChatModel, embedder embedding.Embedder, logger *zap.Logger) (*App, error) {
	docs, err := knowledge.LoadDocuments(ctx, cfg.Knowledge)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	retriever, err := knowledge.NewRetriever(ctx, docs, knowledge.Options{
		TopK:     cfg.Knowledge.TopK,
		Embedder: embedder,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("index knowledge base: %w", err)
	}

	classifier, err := intent.NewService(ctx, chatModel, intent.Config{HistoryLimit: cfg.AI.IntentHistory}, logger)
	if err != nil {
		return nil, err
	}

	retrieval, err := agent.NewRetrievalHandler(ctx, retriever, chatModel, cfg.Knowledge.TopK, logger)
	if err != nil {
		return nil, err
	}

	sink := lead.NewMockSink(logger)
	leads, err := agent.NewLeadHandler(ctx, chatModel, sink, logger)
	if err != nil {
		return nil, err
	}

	sessions := chat.NewService(chat.Config{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
	}, logger)

	orchestrator, err := agent.NewOrchestrator(sessions, classifier, logger,
		agent.NewGreetingHandler(), retrieval, leads)
	if err != nil {
		return nil, err
	}

	return &App{
		Agent:     orchestrator,
		Sessions:  sessions,
		Leads:     sink,
		Knowledge: retriever,
	}, nil
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	if !cfg.Enabled() {
		logger.Info("embedding model not configured, knowledge base uses lexical ranking")
		return nil
	}
	embedder, err := cfg.NewEmbedder(ctx)
	if err != nil {
		logger.Warn("failed to initialise embedder, knowledge base uses lexical ranking", zap.Error(err))
		return nil
	}
	return embedder
}
