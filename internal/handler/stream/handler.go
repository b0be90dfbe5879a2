package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/service/agent"
	"github.com/autostream/agent/backend/pkg/utils"
)

// TurnRunner advances a conversation by one user message.
type TurnRunner interface {
	AdvanceTurn(ctx context.Context, sessionID, userText string) (agent.Turn, error)
}

// Handler runs a turn and reports its progress as Server-Sent Events.
type Handler struct {
	agent  TurnRunner
	logger *zap.Logger
}

// New creates a stream handler.
func New(runner TurnRunner, logger *zap.Logger) *Handler {
	return &Handler{agent: runner, logger: logger.Named("stream")}
}

// StreamResponse is the payload of every event.
type StreamResponse struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Handler   string `json:"handler,omitempty"`
	Content   string `json:"content,omitempty"`
	Lead      any    `json:"lead,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, message); err != nil {
		h.logger.Warn("stream turn failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// HandleStreamRequest emits start, intent, message and end events for one turn, or an
// error event when the turn fails.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, message string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	h.send(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	turn, err := h.agent.AdvanceTurn(ctx, sessionID, message)
	if err != nil {
		h.send(w, flusher, StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
		return err
	}

	h.send(w, flusher, StreamResponse{
		Event:     "intent",
		SessionID: sessionID,
		Intent:    string(turn.Intent),
		Handler:   string(turn.Handler),
	})
	h.send(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   turn.Reply,
		Lead:      turn.Lead,
	})
	h.send(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})
	return nil
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, resp.Event, resp); err != nil {
		h.logger.Debug("failed to write sse event", zap.String("event", resp.Event), zap.Error(err))
	}
}
