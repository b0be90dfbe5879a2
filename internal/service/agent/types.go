package agent

import (
	"context"
	"errors"

	analysis "github.com/autostream/agent/backend/internal/analysis/intent"
	"github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/model/lead"
	intentsvc "github.com/autostream/agent/backend/internal/service/intent"
)

// ErrEmptyMessage is returned when a turn carries no user text.
var ErrEmptyMessage = errors.New("message must not be empty")

// HandlerName identifies one of the turn handlers.
type HandlerName string

const (
	HandlerGreeting  HandlerName = "greeting"
	HandlerRetrieval HandlerName = "retrieval"
	HandlerLead      HandlerName = "lead"
)

// State is the read-only view of a session a handler works on.
// Transcript already ends with the current user message.
type State struct {
	SessionID  string
	Transcript []chat.Message
	Lead       lead.Info
}

// LatestUserText returns the content of the most recent user message.
func (s State) LatestUserText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == chat.RoleUser {
			return s.Transcript[i].Content
		}
	}
	return ""
}

// Result is what a handler contributes to the turn. Lead always carries the full
// record for the session after the turn, even when unchanged.
type Result struct {
	Messages []chat.Message
	Lead     lead.Info
}

// Handler produces the assistant side of one turn.
type Handler interface {
	Name() HandlerName
	Handle(ctx context.Context, state State) (Result, error)
}

// Classifier labels a conversation. It never fails; problems yield the default label.
type Classifier interface {
	Classify(ctx context.Context, transcript []chat.Message) intentsvc.Result
}

// Sink accepts completed leads and returns a human-readable confirmation.
type Sink interface {
	Submit(ctx context.Context, sub lead.Submission) (string, error)
}

// Store persists sessions between turns.
type Store interface {
	LoadOrCreate(ctx context.Context, sessionID string) (chat.Session, bool, error)
	Save(ctx context.Context, session chat.Session) error
	Evict(ctx context.Context, sessionID string) bool
}

// Turn summarises one completed turn for transports.
type Turn struct {
	SessionID string         `json:"sessionId"`
	Intent    analysis.Label `json:"intent"`
	Handler   HandlerName    `json:"handler"`
	Reply     string         `json:"reply"`
	Lead      lead.Info      `json:"lead"`
	Messages  int            `json:"messages"`
	Created   bool           `json:"created,omitempty"`
}
