package domain

import (
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	// SpeakerUser is the person typing into the chat view.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant is the support assistant.
	SpeakerAssistant Speaker = "assistant"
)

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// Turn is a single message in a transcript. Turns are never edited after
// they are appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered history of a chat session, oldest first.
type Transcript []Turn

// Last returns the most recent n turns in their original order.
func (t Transcript) Last(n int) Transcript {
	if n <= 0 {
		return nil
	}
	if n >= len(t) {
		return t
	}
	return t[len(t)-n:]
}

// LastAssistantText returns the text of the most recent assistant turn.
func (t Transcript) LastAssistantText() string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Speaker == SpeakerAssistant {
			return t[i].Text
		}
	}
	return ""
}

// SessionState is the caller-owned conversation state for one chat session.
type SessionState struct {
	Transcript Transcript `json:"turns"`
	LastReply  string     `json:"last_reply"`
}

// WithExchange returns a copy of s with a user turn and its assistant reply
// appended. The receiver's transcript is not modified.
func (s SessionState) WithExchange(userText, reply string, at time.Time) SessionState {
	turns := make(Transcript, 0, len(s.Transcript)+2)
	turns = append(turns, s.Transcript...)
	turns = append(turns,
		Turn{Speaker: SpeakerUser, Text: userText, CreatedAt: at},
		Turn{Speaker: SpeakerAssistant, Text: reply, CreatedAt: at},
	)
	return SessionState{Transcript: turns, LastReply: reply}
}

// ChatSession is the persisted form of a session for one browser tab.
type ChatSession struct {
	UserID    string
	SessionID string
	State     SessionState
	CreatedAt time.Time
	UpdatedAt time.Time
}
