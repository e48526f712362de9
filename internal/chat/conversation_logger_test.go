package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	event := ConversationLogEvent{
		UserID:     "user-1",
		SessionID:  "sess-1",
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "I feel **so** tired",
	}
	logger.Log(event)

	path := filepath.Join(dir, "user-1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "I feel **so** tired" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "I feel so tired" {
		t.Fatalf("unexpected cleaned content: %q", got.Content)
	}
}

func TestConversationLoggerGlobalFile(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           filepath.Join(dir, "sessions"),
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	logger.Log(ConversationLogEvent{UserID: "u", SessionID: "a", EventType: "chat_user_message", ContentRaw: "one"})
	logger.Log(ConversationLogEvent{UserID: "u", SessionID: "b", EventType: "chat_user_message", ContentRaw: "two"})

	// Close drains the queue before returning.
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 global lines, got %d", len(lines))
	}
}

func TestConversationLoggerBoundsOpenFiles(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:      true,
		Dir:          dir,
		QueueSize:    512,
		MaxOpenFiles: 8,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	fl := logger.(*fileConversationLogger)

	const sessions = 100
	for i := 0; i < sessions; i++ {
		fl.Log(ConversationLogEvent{UserID: "u", SessionID: fmt.Sprintf("s%d", i), EventType: "chat_user_message", ContentRaw: "first"})
	}
	// s0 was evicted long ago and must be reopened in append mode.
	fl.Log(ConversationLogEvent{UserID: "u", SessionID: "s0", EventType: "chat_user_message", ContentRaw: "second"})

	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(fl.files); got > 8 {
		t.Fatalf("expected at most 8 open session files, got %d", got)
	}
	if got := fl.recent.Len(); got != len(fl.files) {
		t.Fatalf("lru list has %d entries, map has %d", got, len(fl.files))
	}

	data, err := os.ReadFile(filepath.Join(dir, "u", "s0.ndjson"))
	if err != nil {
		t.Fatalf("read s0 log: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 lines in reopened log, got %d", len(lines))
	}
	entries, err := os.ReadDir(filepath.Join(dir, "u"))
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != sessions {
		t.Fatalf("expected %d session logs, got %d", sessions, len(entries))
	}
}

func TestConversationLoggerDisabled(t *testing.T) {
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(noopConversationLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
	logger.Log(ConversationLogEvent{ContentRaw: "ignored"})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSafePathComponent(t *testing.T) {
	tests := map[string]string{
		"anon_abc":  "anon_abc",
		"../../etc": "______etc",
		"tab:1.2":   "tab_1_2",
		"":          "_",
	}
	for in, want := range tests {
		if got := safePathComponent(in); got != want {
			t.Errorf("safePathComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	raw := "\x1b[31merror\x1b[0m   plain\n\n📞 **AASRA:** 9152987821"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
	if !strings.Contains(clean, "📞 AASRA: 9152987821") {
		t.Fatalf("expected emphasis to be stripped: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
