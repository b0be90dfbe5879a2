package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/service/ai"
)

// DefaultTopK is how many knowledge chunks ground an answer.
const DefaultTopK = 2

const retrievalPrompt = `You are a helpful assistant for AutoStream.
Answer the user's question based on the following context.

Context:
{context}

Question: {query}`

// RetrievalHandler answers product questions from the knowledge base.
type RetrievalHandler struct {
	retriever retriever.Retriever
	answer    ai.Chain
	topK      int
	logger    *zap.Logger
}

// NewRetrievalHandler compiles the grounding chain. topK <= 0 uses DefaultTopK.
func NewRetrievalHandler(ctx context.Context, r retriever.Retriever, chatModel model.BaseChatModel, topK int, logger *zap.Logger) (*RetrievalHandler, error) {
	if r == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	chain, err := ai.NewChain(ctx, chatModel, schema.UserMessage(retrievalPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to compile retrieval chain: %w", err)
	}

	return &RetrievalHandler{
		retriever: r,
		answer:    chain,
		topK:      topK,
		logger:    logger.Named("retrieval"),
	}, nil
}

func (h *RetrievalHandler) Name() HandlerName { return HandlerRetrieval }

// Handle retrieves context for the latest question and returns the model's answer verbatim.
func (h *RetrievalHandler) Handle(ctx context.Context, state State) (Result, error) {
	query := state.LatestUserText()

	docs, err := h.retriever.Retrieve(ctx, query, retriever.WithTopK(h.topK))
	if err != nil {
		return Result{}, fmt.Errorf("retrieve context: %w", err)
	}

	h.logger.Debug("context retrieved",
		zap.String("session", state.SessionID),
		zap.Int("documents", len(docs)))

	msg, err := h.answer.Invoke(ctx, map[string]any{
		"context": joinDocuments(docs),
		"query":   query,
	})
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	var reply string
	if msg != nil {
		reply = msg.Content
	}

	return Result{
		Messages: []chat.Message{chat.AssistantMessage(reply)},
		Lead:     state.Lead.Clone(),
	}, nil
}

func joinDocuments(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n")
}
