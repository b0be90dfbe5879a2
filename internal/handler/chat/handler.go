package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/service/agent"
	chatService "github.com/autostream/agent/backend/internal/service/chat"
	"github.com/autostream/agent/backend/pkg/utils"
)

// TurnRunner 推进一轮对话，并负责会话的删除
type TurnRunner interface {
	AdvanceTurn(ctx context.Context, sessionID, userText string) (agent.Turn, error)
	Evict(ctx context.Context, sessionID string) bool
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	agent    TurnRunner
	sessions *chatService.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// New 创建聊天处理器
func New(runner TurnRunner, sessions *chatService.Service, logger *zap.Logger) *Handler {
	return &Handler{
		agent:    runner,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger.Named("chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Post("/messages", h.handleSendMessage)
	})
}

type sendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"id":        session.ID,
		"createdAt": session.CreatedAt,
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.agent.Evict(r.Context(), sessionID) {
		utils.RespondError(w, http.StatusNotFound, chatService.ErrSessionNotFound.Error())
		return
	}
	h.logger.Info("session evicted", zap.String("session", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	turn, err := h.agent.AdvanceTurn(r.Context(), sessionID, payload.Message)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("turn failed", zap.String("session", sessionID), zap.Error(err))
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, turn)
}

// StatusFor 将回合或会话错误映射为HTTP状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrEmptyMessage), errors.Is(err, chatService.ErrSessionIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	switch verrs[0].Tag() {
	case "required":
		return "message is required"
	case "max":
		return "message is too long"
	default:
		return "invalid message"
	}
}
