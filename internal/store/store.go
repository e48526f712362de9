// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/manosakhi/internal/domain"
)

// Repository defines the interface for persisting users and chat sessions.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetChatSession retrieves a chat session with its full transcript.
	// It returns nil, nil when the session does not exist.
	GetChatSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error)

	// AppendExchange appends a user turn and its assistant reply to a session
	// in one transaction, creating the session if needed.
	AppendExchange(ctx context.Context, userID, sessionID string, user, assistant domain.Turn) error

	// ClearChatSession removes a session and its transcript.
	ClearChatSession(ctx context.Context, userID, sessionID string) error

	// CleanupExpiredSessions removes sessions idle for longer than ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
