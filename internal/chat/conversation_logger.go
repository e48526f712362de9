package chat

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ConversationLogEvent is one line of a conversation log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat events. Log must not block the caller.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls where conversation logs are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// MaxOpenFiles caps the per-session files kept open. The least recently
	// written file is closed first and reopened in append mode when needed.
	MaxOpenFiles int
}

// DefaultMaxOpenLogFiles is used when MaxOpenFiles is unset.
const DefaultMaxOpenLogFiles = 64

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// fileConversationLogger appends NDJSON lines to <dir>/<user>/<session>.ndjson
// and optionally to one global file, from a single writer goroutine.
type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	done   chan struct{}

	closeOnce sync.Once
	files     map[string]*list.Element
	recent    *list.List // of *openLogFile, most recently written first
	global    *os.File
}

type openLogFile struct {
	path string
	f    *os.File
}

// NewConversationLogger returns a no-op logger when logging is disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = DefaultMaxOpenLogFiles
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*list.Element),
		recent: list.New(),
	}

	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log enqueues event, dropping it when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Content == "" && event.ContentRaw != "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close drains the queue and closes all files. Log must not be called
// after Close.
func (l *fileConversationLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.queue)
		<-l.done

		var errs []error
		for e := l.recent.Front(); e != nil; e = e.Next() {
			errs = append(errs, e.Value.(*openLogFile).f.Close())
		}
		if l.global != nil {
			errs = append(errs, l.global.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("Failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.writeSession(event.UserID, event.SessionID, line); err != nil {
			l.logger.Warn("Failed to write conversation log", "user_id", event.UserID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("Failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) writeSession(userID, sessionID string, line []byte) error {
	path := filepath.Join(l.cfg.Dir, safePathComponent(userID), safePathComponent(sessionID)+".ndjson")
	f, err := l.sessionFile(path)
	if err != nil {
		return err
	}
	_, err = f.Write(line)
	return err
}

// sessionFile returns an open handle for path, closing the least recently
// used handle when the cap is reached.
func (l *fileConversationLogger) sessionFile(path string) (*os.File, error) {
	if e, ok := l.files[path]; ok {
		l.recent.MoveToFront(e)
		return e.Value.(*openLogFile).f, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}

	for l.recent.Len() >= l.cfg.MaxOpenFiles {
		oldest := l.recent.Back()
		entry := l.recent.Remove(oldest).(*openLogFile)
		delete(l.files, entry.path)
		if err := entry.f.Close(); err != nil {
			l.logger.Warn("Failed to close conversation log", "path", entry.path, "error", err)
		}
	}
	l.files[path] = l.recent.PushFront(&openLogFile{path: path, f: f})
	return f, nil
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func safePathComponent(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

var (
	ansiPattern       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	markdownEmphasis  = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// cleanForReadability strips terminal escapes and markdown emphasis and
// collapses runs of spaces, keeping line breaks.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = markdownEmphasis.ReplaceAllString(s, "$1")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
