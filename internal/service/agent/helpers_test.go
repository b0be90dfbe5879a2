package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/lead"
	"github.com/autostream/agent/backend/internal/service/ai/aitest"
	chatsvc "github.com/autostream/agent/backend/internal/service/chat"
	intentsvc "github.com/autostream/agent/backend/internal/service/intent"
)

type fakeRetriever struct {
	mu      sync.Mutex
	docs    []*schema.Document
	err     error
	queries []string
	topKs   []int
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	options := retriever.GetCommonOptions(&retriever.Options{}, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if options.TopK != nil {
		r.topKs = append(r.topKs, *options.TopK)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.docs, nil
}

type fakeSink struct {
	mu    sync.Mutex
	subs  []lead.Submission
	reply string
	err   error
}

func (s *fakeSink) Submit(_ context.Context, sub lead.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	if s.err != nil {
		return "", s.err
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return "Lead captured successfully: " + sub.Name + ", " + sub.Email + ", " + sub.Platform, nil
}

func (s *fakeSink) calls() []lead.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lead.Submission(nil), s.subs...)
}

func pricingDocs() []*schema.Document {
	return []*schema.Document{
		{ID: "pro", Content: "Pro Plan: $79/month, unlimited videos, 4K resolution, AI captions."},
		{ID: "basic", Content: "Basic Plan: $29/month, 10 videos per month, 720p resolution."},
	}
}

// harness bundles an orchestrator with scriptable collaborators.
type harness struct {
	orchestrator *Orchestrator
	store        *chatsvc.Service
	classifier   *aitest.ChatModel
	extractor    *aitest.ChatModel
	answerer     *aitest.ChatModel
	retriever    *fakeRetriever
	sink         *fakeSink
}

func newHarness(t *testing.T, logger *zap.Logger, classifier, extractor, answerer *aitest.ChatModel) *harness {
	t.Helper()
	ctx := context.Background()
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &harness{
		store:      chatsvc.NewService(chatsvc.Config{}, logger),
		classifier: classifier,
		extractor:  extractor,
		answerer:   answerer,
		retriever:  &fakeRetriever{docs: pricingDocs()},
		sink:       &fakeSink{},
	}

	intents, err := intentsvc.NewService(ctx, classifier, intentsvc.Config{HistoryLimit: 3}, logger)
	require.NoError(t, err)
	retrieval, err := NewRetrievalHandler(ctx, h.retriever, answerer, 0, logger)
	require.NoError(t, err)
	leads, err := NewLeadHandler(ctx, extractor, h.sink, logger)
	require.NoError(t, err)

	h.orchestrator, err = NewOrchestrator(h.store, intents, logger, NewGreetingHandler(), retrieval, leads)
	require.NoError(t, err)
	return h
}
