package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/service/agent"
)

const (
	defaultReadTimeout = 60 * time.Second
	writeTimeout       = 10 * time.Second
	pingInterval       = 54 * time.Second
)

// TurnRunner 推进一轮对话
type TurnRunner interface {
	AdvanceTurn(ctx context.Context, sessionID, userText string) (agent.Turn, error)
}

// Handler WebSocket对话处理器，每个文本帧对应一轮对话
type Handler struct {
	agent       TurnRunner
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	logger      *zap.Logger
}

// New 创建WebSocket处理器
func New(runner TurnRunner, logger *zap.Logger) *Handler {
	return &Handler{
		agent: runner,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout: defaultReadTimeout,
		logger:      logger.Named("ws"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// conn 串行化写操作，ping 循环与对话循环共用同一连接
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer wsConn.Close()
	c := &conn{ws: wsConn}

	h.logger.Info("connection opened", zap.String("session", sessionID))
	defer h.logger.Info("connection closed", zap.String("session", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, c)

	for {
		var msg inboundMessage
		if err := wsConn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read failed", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(c, sessionID, "session mismatch")
		} else {
			h.handleMessage(ctx, c, sessionID, &msg)
		}
		// 回合可能超过读超时，处理完再续期
		_ = wsConn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, sessionID string, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(c, sessionID, "invalid text payload")
			return
		}
		h.processUserText(ctx, c, sessionID, text.Text)
	default:
		h.sendError(c, sessionID, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) processUserText(ctx context.Context, c *conn, sessionID, text string) {
	if strings.TrimSpace(text) == "" {
		h.sendError(c, sessionID, agent.ErrEmptyMessage.Error())
		return
	}

	turn, err := h.agent.AdvanceTurn(ctx, sessionID, text)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Warn("turn failed", zap.String("session", sessionID), zap.Error(err))
		}
		h.sendError(c, sessionID, err.Error())
		return
	}

	if err := c.writeJSON(outgoingMessage{
		Type:      "turn",
		SessionID: sessionID,
		Data:      turn,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		h.logger.Debug("write turn failed", zap.Error(err))
	}
}

func (h *Handler) sendError(c *conn, sessionID, message string) {
	if err := c.writeJSON(outgoingMessage{
		Type:      "error",
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}); err != nil {
		h.logger.Debug("write error failed", zap.Error(err))
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
