// Package chat runs chat sessions on top of the resolver: it loads and
// persists transcripts, serializes submissions per session and exposes the
// HTTP and WebSocket transports.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/resolver"
)

var (
	// ErrEmptyMessage is returned for submissions that are blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned while another submission for the same session is
	// being resolved.
	ErrBusy = errors.New("a reply is already being prepared for this session")
)

// Responder produces the next session state for a user message.
type Responder interface {
	Respond(ctx context.Context, state domain.SessionState, userText string) (domain.SessionState, resolver.Reply)
}

// SessionStore is the persistence the service needs.
type SessionStore interface {
	GetChatSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)
	AppendExchange(ctx context.Context, userID, sessionID string, user, assistant domain.Turn) error
	ClearChatSession(ctx context.Context, userID, sessionID string) error
}

// Result is the outcome of a submission.
type Result struct {
	Reply      resolver.Reply
	Transcript domain.Transcript
}

// Service coordinates one resolution at a time per session.
type Service struct {
	responder Responder
	sessions  SessionStore
	log       ConversationLogger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates a chat service. A nil logger disables conversation logging.
func NewService(responder Responder, sessions SessionStore, log ConversationLogger) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	return &Service{
		responder: responder,
		sessions:  sessions,
		log:       log,
		inflight:  make(map[string]struct{}),
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// acquire marks a session busy. It returns false if it already was.
func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// Submit resolves text for the session and persists the user turn and the
// reply together. channel names the transport for conversation logs.
func (s *Service) Submit(ctx context.Context, userID, sessionID, channel, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	key := sessionKey(userID, sessionID)
	if !s.acquire(key) {
		return Result{}, ErrBusy
	}
	defer s.release(key)

	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return Result{}, err
	}

	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Content:    cleanForReadability(text),
	})

	start := time.Now()
	next, reply := s.responder.Respond(ctx, state, text)
	turns := next.Transcript
	if len(turns) < 2 {
		return Result{}, fmt.Errorf("responder returned %d turns", len(turns))
	}

	// The store write must not be lost to a client that disconnected while
	// the reply was being prepared.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.sessions.AppendExchange(persistCtx, userID, sessionID, turns[len(turns)-2], turns[len(turns)-1]); err != nil {
		return Result{}, fmt.Errorf("persist exchange: %w", err)
	}

	slog.Info("Chat reply resolved",
		"user_id", userID,
		"session_id", sessionID,
		"channel", channel,
		"source", reply.Source,
		"model", reply.Model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Text,
		Content:    cleanForReadability(reply.Text),
		Meta: map[string]any{
			"source":    reply.Source,
			"model":     reply.Model,
			"category":  reply.Category,
			"self_harm": reply.Signal.SelfHarm,
			"violence":  reply.Signal.Violence,
		},
	})

	return Result{Reply: reply, Transcript: turns}, nil
}

// Transcript returns the session's turns, oldest first.
func (s *Service) Transcript(ctx context.Context, userID, sessionID string) (domain.Transcript, error) {
	state, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return state.Transcript, nil
}

// Clear empties the session. It fails with ErrBusy while a reply is pending
// so a resolution in flight never lands in a cleared transcript.
func (s *Service) Clear(ctx context.Context, userID, sessionID, channel string) error {
	key := sessionKey(userID, sessionID)
	if !s.acquire(key) {
		return ErrBusy
	}
	defer s.release(key)

	if err := s.sessions.ClearChatSession(ctx, userID, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    userID,
		SessionID: sessionID,
		Channel:   channel,
		Direction: "outbound",
		EventType: "chat_cleared",
	})
	return nil
}

// Close releases the conversation logger.
func (s *Service) Close() error {
	return s.log.Close()
}

func (s *Service) load(ctx context.Context, userID, sessionID string) (domain.SessionState, error) {
	session, err := s.sessions.GetChatSession(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return domain.SessionState{}, nil
	}
	return session.State, nil
}
