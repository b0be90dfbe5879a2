package chat

import (
	"time"

	"github.com/autostream/agent/backend/internal/model/lead"
)

// Session owns one conversation: its transcript and the in-progress lead record.
type Session struct {
	ID         string    `json:"id"`
	Transcript []Message `json:"transcript"`
	Lead       lead.Info `json:"lead"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the transcript or lead map.
func (s Session) Clone() Session {
	out := s
	out.Transcript = append([]Message(nil), s.Transcript...)
	out.Lead = s.Lead.Clone()
	return out
}

// LastAssistant returns the most recent assistant message, if any.
func (s Session) LastAssistant() (Message, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i], true
		}
	}
	return Message{}, false
}
