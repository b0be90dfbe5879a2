package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/autostream/agent/backend/internal/model/chat"
	"github.com/autostream/agent/backend/internal/model/lead"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// Config bounds the store. Zero values keep sessions for the process lifetime.
type Config struct {
	TTL         time.Duration
	MaxSessions int
}

// Service is the in-memory session store. Sessions are copied on the way in and out,
// so a caller never observes another caller's in-flight changes.
type Service struct {
	sessions *expirable.LRU[string, chat.Session]
	logger   *zap.Logger
}

// NewService creates an empty store.
func NewService(cfg Config, logger *zap.Logger) *Service {
	logger = logger.Named("sessions")
	onEvict := func(id string, session chat.Session) {
		logger.Debug("session evicted", zap.String("session", id), zap.Int("messages", len(session.Transcript)))
	}
	return &Service{
		sessions: expirable.NewLRU[string, chat.Session](cfg.MaxSessions, onEvict, cfg.TTL),
		logger:   logger,
	}
}

// CreateSession provisions a session with a fresh identifier.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := newSession(uuid.NewString())
	s.sessions.Add(session.ID, session)
	s.logger.Debug("session created", zap.String("session", session.ID))
	return session.Clone(), nil
}

// GetSession retrieves a copy of a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// LoadOrCreate returns the session for sessionID, creating an empty one on first use.
// The new session is not stored until Save is called.
func (s *Service) LoadOrCreate(_ context.Context, sessionID string) (chat.Session, bool, error) {
	if sessionID == "" {
		return chat.Session{}, false, ErrSessionIDRequired
	}
	if session, ok := s.sessions.Get(sessionID); ok {
		return session.Clone(), false, nil
	}
	return newSession(sessionID), true, nil
}

// Save replaces the stored session with a copy of session.
func (s *Service) Save(_ context.Context, session chat.Session) error {
	if session.ID == "" {
		return ErrSessionIDRequired
	}
	session = session.Clone()
	session.UpdatedAt = time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = session.UpdatedAt
	}
	s.sessions.Add(session.ID, session)
	return nil
}

// LoadTranscript returns the stored messages for the session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript, nil
}

// Evict removes a session. It reports whether the session existed.
func (s *Service) Evict(_ context.Context, sessionID string) bool {
	return s.sessions.Remove(sessionID)
}

// Len reports how many sessions are held.
func (s *Service) Len() int {
	return s.sessions.Len()
}

func newSession(id string) chat.Session {
	now := time.Now().UTC()
	return chat.Session{
		ID:         id,
		Transcript: make([]chat.Message, 0, 16),
		Lead:       lead.Info{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
