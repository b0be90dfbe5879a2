package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/app"
	"github.com/autostream/agent/backend/internal/config"
	"github.com/autostream/agent/backend/internal/service/agent"
	"github.com/autostream/agent/backend/internal/service/ai/aitest"
)

// scriptedModel answers the classifier with a fixed label and the lead extractor
// with a fixed JSON object.
func scriptedModel(label, extraction string) *aitest.ChatModel {
	return aitest.NewChatModel(func(in []*schema.Message) (string, error) {
		if in[0].Role == schema.System {
			return label, nil
		}
		return extraction, nil
	})
}

func newTestRouter(t *testing.T, label, extraction string, rl config.RateLimitConfig) http.Handler {
	t.Helper()
	cfg := &config.Config{
		AI:        config.AIConfig{IntentHistory: 3},
		Knowledge: config.KnowledgeConfig{ChunkSize: 500, ChunkOverlap: 50, TopK: 2},
	}
	a, err := app.BuildWithModel(context.Background(), cfg, scriptedModel(label, extraction), nil, zap.NewNop())
	require.NoError(t, err)

	return NewRouter(Deps{
		Agent:     a.Agent,
		Sessions:  a.Sessions,
		Leads:     a.Leads,
		RateLimit: rl,
		Logger:    zap.NewNop(),
	})
}

func send(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, "greeting", "{}", config.RateLimitConfig{})
	rec := send(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, rec.Body.String())
}

func TestLeadCaptureOverHTTP(t *testing.T) {
	r := newTestRouter(t, "high_intent",
		`{"name": "John Doe", "email": "john@example.com", "platform": "YouTube"}`,
		config.RateLimitConfig{})

	rec := send(r, http.MethodPost, "/api/sessions/http-1/messages",
		map[string]string{"message": "I'm John Doe, john@example.com, YouTube. Sign me up!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var turn agent.Turn
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&turn))
	assert.Equal(t, agent.HandlerLead, turn.Handler)
	assert.Equal(t, "Thanks John Doe! Lead captured successfully: John Doe, john@example.com, YouTube. We'll be in touch.", turn.Reply)
	assert.Empty(t, turn.Lead)

	rec = send(r, http.MethodGet, "/api/leads", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var leads struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&leads))
	assert.Equal(t, 1, leads.Count)
}

func TestGreetingSessionLifecycle(t *testing.T) {
	r := newTestRouter(t, "greeting", "{}", config.RateLimitConfig{})

	rec := send(r, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = send(r, http.MethodPost, "/api/sessions/"+created.ID+"/messages", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), agent.GreetingText)

	rec = send(r, http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"assistant"`)

	assert.Equal(t, http.StatusNotFound, send(r, http.MethodGet, "/api/sessions/unknown", nil).Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	r := newTestRouter(t, "greeting", "{}", config.RateLimitConfig{RPS: 0.001, Burst: 1})

	assert.Equal(t, http.StatusCreated, send(r, http.MethodPost, "/api/sessions", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodPost, "/api/sessions", nil).Code)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/healthz", nil).Code, "health checks are not throttled")
}
