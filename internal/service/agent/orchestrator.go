package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/chat"
)

// Orchestrator runs turns: classify, route, handle, commit.
type Orchestrator struct {
	store      Store
	classifier Classifier
	handlers   map[HandlerName]Handler
	logger     *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrchestrator wires the store, classifier and handlers. Every route target must
// have a handler.
func NewOrchestrator(store Store, classifier Classifier, logger *zap.Logger, handlers ...Handler) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("intent classifier is required")
	}

	byName := make(map[HandlerName]Handler, len(handlers))
	for _, h := range handlers {
		byName[h.Name()] = h
	}
	for _, name := range []HandlerName{HandlerGreeting, HandlerRetrieval, HandlerLead} {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("missing %s handler", name)
		}
	}

	return &Orchestrator{
		store:      store,
		classifier: classifier,
		handlers:   byName,
		logger:     logger.Named("agent"),
		locks:      make(map[string]*sessionLock),
	}, nil
}

// AdvanceTurn applies one user message to the session identified by sessionID, creating
// the session on first use. Turns of the same session run one at a time; a failed turn
// leaves the stored session untouched.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, sessionID, userText string) (Turn, error) {
	if strings.TrimSpace(userText) == "" {
		return Turn{}, ErrEmptyMessage
	}

	unlock := o.lock(sessionID)
	defer unlock()

	session, created, err := o.store.LoadOrCreate(ctx, sessionID)
	if err != nil {
		return Turn{}, fmt.Errorf("load session: %w", err)
	}

	next, turn, err := o.step(ctx, session, userText)
	if err != nil {
		o.logger.Warn("turn failed",
			zap.String("session", sessionID),
			zap.String("handler", string(turn.Handler)),
			zap.Error(err))
		return Turn{}, err
	}

	if err := o.store.Save(ctx, next); err != nil {
		return Turn{}, fmt.Errorf("save session: %w", err)
	}

	turn.Created = created
	o.logger.Info("turn completed",
		zap.String("session", sessionID),
		zap.String("intent", string(turn.Intent)),
		zap.String("handler", string(turn.Handler)),
		zap.Int("messages", turn.Messages),
		zap.Int("lead_fields", len(turn.Lead)))
	return turn, nil
}

// Step runs one turn against session without touching the store or taking the session
// lock. The input session is not modified; handlers may still call the lead sink.
func (o *Orchestrator) Step(ctx context.Context, session chat.Session, userText string) (chat.Session, chat.Message, error) {
	if strings.TrimSpace(userText) == "" {
		return session, chat.Message{}, ErrEmptyMessage
	}
	next, _, err := o.step(ctx, session, userText)
	if err != nil {
		return session, chat.Message{}, err
	}
	reply, _ := next.LastAssistant()
	return next, reply, nil
}

func (o *Orchestrator) step(ctx context.Context, session chat.Session, userText string) (chat.Session, Turn, error) {
	next := session.Clone()
	next.Transcript = append(next.Transcript, chat.UserMessage(userText))

	classified := o.classifier.Classify(ctx, next.Transcript)
	o.logger.Debug("intent classified",
		zap.String("session", next.ID),
		zap.String("label", string(classified.Label)),
		zap.String("raw", classified.Raw),
		zap.String("rule", classified.Rule),
		zap.Bool("fallback", classified.Fallback))
	name := Route(classified.Label)
	turn := Turn{SessionID: next.ID, Intent: classified.Label, Handler: name}

	handler, ok := o.handlers[name]
	if !ok {
		return session, turn, fmt.Errorf("no handler registered for %s", name)
	}

	result, err := handler.Handle(ctx, State{
		SessionID:  next.ID,
		Transcript: append([]chat.Message(nil), next.Transcript...),
		Lead:       next.Lead.Clone(),
	})
	if err != nil {
		return session, turn, fmt.Errorf("%s handler: %w", name, err)
	}

	next.Transcript = append(next.Transcript, result.Messages...)
	next.Lead = result.Lead.Clone()

	if reply, ok := next.LastAssistant(); ok {
		turn.Reply = reply.Content
	}
	turn.Lead = next.Lead.Clone()
	turn.Messages = len(next.Transcript)
	return next, turn, nil
}

// Evict removes the session once any in-flight turn on it has committed, so a turn never
// resurrects an evicted session. It reports whether the session existed.
func (o *Orchestrator) Evict(ctx context.Context, sessionID string) bool {
	unlock := o.lock(sessionID)
	defer unlock()
	return o.store.Evict(ctx, sessionID)
}

// lock serialises turns per session and drops the mutex once no turn holds it.
func (o *Orchestrator) lock(sessionID string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		o.locks[sessionID] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.locksMu.Unlock()
	}
}
