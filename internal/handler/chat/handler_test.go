package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	analysis "github.com/autostream/agent/backend/internal/analysis/intent"
	chatmodel "github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/service/agent"
	"github.com/autostream/agent/backend/internal/service/ai"
	chatservice "github.com/autostream/agent/backend/internal/service/chat"
)

// echoRunner appends the message and a canned reply to the store, like a greeting turn.
type echoRunner struct {
	sessions  *chatservice.Service
	err       error
	calls     int
	evictions int
}

func (e *echoRunner) AdvanceTurn(ctx context.Context, sessionID, text string) (agent.Turn, error) {
	e.calls++
	if e.err != nil {
		return agent.Turn{}, e.err
	}
	if strings.TrimSpace(text) == "" {
		return agent.Turn{}, agent.ErrEmptyMessage
	}
	session, created, err := e.sessions.LoadOrCreate(ctx, sessionID)
	if err != nil {
		return agent.Turn{}, err
	}
	session.Transcript = append(session.Transcript,
		chatmodel.UserMessage(text), chatmodel.AssistantMessage(agent.GreetingText))
	if err := e.sessions.Save(ctx, session); err != nil {
		return agent.Turn{}, err
	}
	return agent.Turn{
		SessionID: sessionID,
		Intent:    analysis.Greeting,
		Handler:   agent.HandlerGreeting,
		Reply:     agent.GreetingText,
		Lead:      session.Lead,
		Messages:  len(session.Transcript),
		Created:   created,
	}, nil
}

func (e *echoRunner) Evict(ctx context.Context, sessionID string) bool {
	e.evictions++
	return e.sessions.Evict(ctx, sessionID)
}

func setupRouter() (*chi.Mux, *chatservice.Service, *echoRunner) {
	sessions := chatservice.NewService(chatservice.Config{}, zap.NewNop())
	runner := &echoRunner{sessions: sessions}
	handler := New(runner, sessions, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions, runner
}

func postMessage(r http.Handler, sessionID string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSession(t *testing.T) {
	r, sessions, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := sessions.GetSession(context.Background(), body.ID); err != nil {
		t.Fatalf("created session not stored: %v", err)
	}
}

func TestSendMessageCreatesSessionLazily(t *testing.T) {
	r, sessions, _ := setupRouter()

	resp := postMessage(r, "fresh", map[string]string{"message": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var turn agent.Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if turn.Reply != agent.GreetingText || turn.Handler != agent.HandlerGreeting || turn.SessionID != "fresh" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected session to be created, have %d", sessions.Len())
	}
}

func TestSendMessageValidation(t *testing.T) {
	r, _, runner := setupRouter()

	cases := []struct {
		name string
		body any
	}{
		{"missing message", map[string]string{}},
		{"empty message", map[string]string{"message": ""}},
		{"too long", map[string]string{"message": strings.Repeat("a", 4001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := postMessage(r, "s", tc.body); resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/s/messages", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.Code)
	}
	if runner.calls != 0 {
		t.Fatalf("invalid requests must not reach the agent, got %d calls", runner.calls)
	}
}

func TestSendMessageWhitespaceOnly(t *testing.T) {
	r, _, _ := setupRouter()
	if resp := postMessage(r, "s", map[string]string{"message": "   "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageCollaboratorFailure(t *testing.T) {
	r, sessions, runner := setupRouter()
	runner.err = fmt.Errorf("retrieval handler: %w", ai.ErrModelUnavailable)

	resp := postMessage(r, "s", map[string]string{"message": "pricing?"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if sessions.Len() != 0 {
		t.Fatal("failed turn must not create a session")
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	r, _, runner := setupRouter()
	postMessage(r, "abc", map[string]string{"message": "hello"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var session chatmodel.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(session.Transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(session.Transcript))
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.Code)
	}
	if runner.evictions != 2 {
		t.Fatalf("expected deletes to go through the turn runner, got %d", runner.evictions)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{agent.ErrEmptyMessage, http.StatusBadRequest},
		{chatservice.ErrSessionIDRequired, http.StatusBadRequest},
		{fmt.Errorf("load: %w", chatservice.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("generate answer: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("crm down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
