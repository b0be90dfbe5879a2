package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	analysis "github.com/autostream/agent/backend/internal/analysis/intent"
	"github.com/autostream/agent/backend/internal/service/agent"
)

type recordingRunner struct {
	mu    sync.Mutex
	texts []string
	err   error
	delay time.Duration
}

func (r *recordingRunner) AdvanceTurn(_ context.Context, sessionID, text string) (agent.Turn, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	time.Sleep(r.delay)
	if r.err != nil {
		return agent.Turn{}, r.err
	}
	return agent.Turn{
		SessionID: sessionID,
		Intent:    analysis.Greeting,
		Handler:   agent.HandlerGreeting,
		Reply:     agent.GreetingText,
		Messages:  2,
	}, nil
}

func (r *recordingRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, runner TurnRunner, sessionID string) *websocket.Conn {
	t.Helper()
	return dialHandler(t, New(runner, zap.NewNop()), sessionID)
}

func dialHandler(t *testing.T, h *Handler, sessionID string) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, msg any) frame {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out frame
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestTextFrameRunsTurn(t *testing.T) {
	runner := &recordingRunner{}
	conn := dial(t, runner, "s-ws")

	out := exchange(t, conn, map[string]any{"type": "text", "data": map[string]string{"text": "hello"}})

	assert.Equal(t, "turn", out.Type)
	assert.Equal(t, "s-ws", out.SessionID)
	var turn agent.Turn
	require.NoError(t, json.Unmarshal(out.Data, &turn))
	assert.Equal(t, agent.GreetingText, turn.Reply)
	assert.Equal(t, agent.HandlerGreeting, turn.Handler)
	assert.Equal(t, []string{"hello"}, runner.calls())
}

func TestTurnLongerThanReadTimeoutKeepsConnection(t *testing.T) {
	runner := &recordingRunner{delay: 600 * time.Millisecond}
	h := New(runner, zap.NewNop())
	h.readTimeout = 300 * time.Millisecond
	conn := dialHandler(t, h, "slow")

	out := exchange(t, conn, map[string]any{"type": "text", "data": map[string]string{"text": "first"}})
	assert.Equal(t, "turn", out.Type)

	out = exchange(t, conn, map[string]any{"type": "text", "data": map[string]string{"text": "second"}})
	assert.Equal(t, "turn", out.Type)
	assert.Equal(t, []string{"first", "second"}, runner.calls())
}

func TestTurnFailureSendsErrorFrame(t *testing.T) {
	conn := dial(t, &recordingRunner{err: errors.New("model unavailable")}, "s-ws")

	out := exchange(t, conn, map[string]any{"type": "text", "data": map[string]string{"text": "pricing?"}})
	assert.Equal(t, "error", out.Type)
	assert.Contains(t, string(out.Data), "model unavailable")

	// The connection survives a failed turn.
	out = exchange(t, conn, map[string]any{"type": "text", "data": map[string]string{"text": "again"}})
	assert.Equal(t, "error", out.Type)
}

func TestInvalidFrames(t *testing.T) {
	runner := &recordingRunner{}
	conn := dial(t, runner, "s-ws")

	cases := []struct {
		name string
		msg  any
		want string
	}{
		{"unknown type", map[string]any{"type": "audio"}, "unsupported message type"},
		{"empty text", map[string]any{"type": "text", "data": map[string]string{"text": "  "}}, "must not be empty"},
		{"bad payload", map[string]any{"type": "text", "data": "oops"}, "invalid text payload"},
		{"session mismatch", map[string]any{"type": "text", "sessionId": "other", "data": map[string]string{"text": "hi"}}, "session mismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := exchange(t, conn, tc.msg)
			assert.Equal(t, "error", out.Type)
			assert.Contains(t, string(out.Data), tc.want)
		})
	}
	assert.Empty(t, runner.calls())
}
