package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	appendMaxRetries = 3
	appendBaseDelay  = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		last_reply TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated ON chat_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS chat_turns (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id, seq),
		FOREIGN KEY (user_id, session_id)
			REFERENCES chat_sessions(user_id, session_id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetChatSession retrieves a chat session with its transcript in order.
func (s *SQLiteStore) GetChatSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	query := `
		SELECT last_reply, created_at, updated_at
		FROM chat_sessions WHERE user_id = ? AND session_id = ?`

	var session domain.ChatSession
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID, sessionID).
		Scan(&session.State.LastReply, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat session: %w", err)
	}

	session.UserID = userID
	session.SessionID = sessionID
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	turns, err := s.listTurns(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	session.State.Transcript = turns

	return &session, nil
}

func (s *SQLiteStore) listTurns(ctx context.Context, userID, sessionID string) (domain.Transcript, error) {
	query := `
		SELECT speaker, text, created_at
		FROM chat_turns WHERE user_id = ? AND session_id = ?
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chat turn rows", "error", closeErr)
		}
	}()

	var turns domain.Transcript
	for rows.Next() {
		var turn domain.Turn
		var speaker string
		var createdAt int64
		if err := rows.Scan(&speaker, &turn.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		turn.Speaker = domain.Speaker(speaker)
		turn.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turns: %w", err)
	}
	return turns, nil
}

// AppendExchange writes a user turn and its reply together.
// Retries with exponential backoff when SQLite reports the database busy.
func (s *SQLiteStore) AppendExchange(ctx context.Context, userID, sessionID string, user, assistant domain.Turn) error {
	if user.Speaker != domain.SpeakerUser || assistant.Speaker != domain.SpeakerAssistant {
		return fmt.Errorf("append exchange: want user then assistant turn, got %q then %q", user.Speaker, assistant.Speaker)
	}

	var err error
	for i := 0; i < appendMaxRetries; i++ {
		err = s.appendExchangeOnce(ctx, userID, sessionID, user, assistant)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == appendMaxRetries-1 {
			break
		}

		delay := appendBaseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("AppendExchange hit SQLITE_BUSY, retrying",
			"user_id", userID,
			"session_id", sessionID,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return fmt.Errorf("append exchange: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("append exchange for %s/%s: %w", userID, sessionID, err)
}

func (s *SQLiteStore) appendExchangeOnce(ctx context.Context, userID, sessionID string, user, assistant domain.Turn) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back exchange", "error", rbErr)
			}
		}
	}()

	now := assistant.CreatedAt.Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (user_id, session_id, last_reply, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			last_reply = excluded.last_reply,
			updated_at = excluded.updated_at`,
		userID, sessionID, assistant.Text, user.CreatedAt.Unix(), now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat session: %w", err)
	}

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_turns WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	insert := `INSERT INTO chat_turns (user_id, session_id, seq, speaker, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	for i, turn := range []domain.Turn{user, assistant} {
		if _, err = tx.ExecContext(ctx, insert,
			userID, sessionID, next+int64(i), string(turn.Speaker), turn.Text, turn.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert %s turn: %w", turn.Speaker, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit exchange: %w", err)
	}
	return nil
}

// ClearChatSession removes a session and, by cascade, its turns.
func (s *SQLiteStore) ClearChatSession(ctx context.Context, userID, sessionID string) error {
	query := `DELETE FROM chat_sessions WHERE user_id = ? AND session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, sessionID); err != nil {
		return fmt.Errorf("clear chat session: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes sessions not updated within ttl.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `DELETE FROM chat_sessions WHERE updated_at < ?`
	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
