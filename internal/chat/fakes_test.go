package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/resolver"
)

type memStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ChatSession
	appendErr error
	appends   int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*domain.ChatSession)}
}

func (m *memStore) GetChatSession(_ context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.State.Transcript = append(domain.Transcript(nil), s.State.Transcript...)
	return &cp, nil
}

func (m *memStore) AppendExchange(_ context.Context, userID, sessionID string, user, assistant domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	if user.Speaker != domain.SpeakerUser || assistant.Speaker != domain.SpeakerAssistant {
		return errors.New("unexpected speakers")
	}
	m.appends++
	key := sessionKey(userID, sessionID)
	s, ok := m.sessions[key]
	if !ok {
		s = &domain.ChatSession{UserID: userID, SessionID: sessionID, CreatedAt: user.CreatedAt}
		m.sessions[key] = s
	}
	s.State.Transcript = append(s.State.Transcript, user, assistant)
	s.State.LastReply = assistant.Text
	s.UpdatedAt = assistant.CreatedAt
	return nil
}

func (m *memStore) ClearChatSession(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(userID, sessionID))
	return nil
}

// fakeResponder answers with a fixed reply. A message equal to blockOn
// signals entered and waits for gate to close.
type fakeResponder struct {
	reply   resolver.Reply
	blockOn string
	gate    chan struct{}
	entered chan struct{}

	mu   sync.Mutex
	seen []domain.SessionState
}

func (f *fakeResponder) Respond(_ context.Context, state domain.SessionState, userText string) (domain.SessionState, resolver.Reply) {
	f.mu.Lock()
	f.seen = append(f.seen, state)
	f.mu.Unlock()

	if f.blockOn != "" && userText == f.blockOn {
		f.entered <- struct{}{}
		<-f.gate
	}
	return state.WithExchange(userText, f.reply.Text, time.Unix(1_700_000_000, 0)), f.reply
}

func (f *fakeResponder) states() []domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SessionState(nil), f.seen...)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []ConversationLogEvent
	closed bool
}

func (r *recordingLogger) Log(e ConversationLogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingLogger) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
