// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultModelCandidates is the remote model priority list used when
// MODEL_CANDIDATES is unset.
const DefaultModelCandidates = "hf:meta-llama/Llama-3.1-8B-Instruct," +
	"hf:mistralai/Mistral-7B-Instruct-v0.3," +
	"hf:HuggingFaceH4/zephyr-7b-beta," +
	"gemini:gemini-2.0-flash"

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	SessionTTL      time.Duration
	MaxMessageBytes int64
	Remote          RemoteConfig
	Lexicon         LexiconConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// RemoteConfig controls remote reply generation. Empty tokens disable the
// matching provider; with no tokens every reply comes from local templates.
type RemoteConfig struct {
	HuggingFaceToken   string
	HuggingFaceBaseURL string
	GeminiAPIKey       string
	Candidates         string
	Timeout            time.Duration
	HistoryTurns       int
	MinReplyLength     int
}

// Enabled reports whether any provider token is configured.
func (r RemoteConfig) Enabled() bool {
	return r.HuggingFaceToken != "" || r.GeminiAPIKey != ""
}

// LexiconConfig points at an optional lexicon override file.
type LexiconConfig struct {
	Path  string
	Watch bool
}

// RateLimitConfig bounds chat submissions per anonymous user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxOpenFiles  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/manosakhi.db"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 60*time.Minute),
		MaxMessageBytes: int64(getEnvInt("MAX_MESSAGE_BYTES", 16<<10)),
		Remote: RemoteConfig{
			HuggingFaceToken:   strings.TrimSpace(getEnv("HUGGINGFACE_API_KEY", "")),
			HuggingFaceBaseURL: getEnv("HF_BASE_URL", ""),
			GeminiAPIKey:       strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
			Candidates:         getEnv("MODEL_CANDIDATES", DefaultModelCandidates),
			Timeout:            getEnvDuration("REMOTE_TIMEOUT", 25*time.Second),
			HistoryTurns:       getEnvInt("HISTORY_TURNS", 8),
			MinReplyLength:     getEnvInt("MIN_REPLY_LENGTH", 12),
		},
		Lexicon: LexiconConfig{
			Path:  getEnv("LEXICON_PATH", ""),
			Watch: getEnvBool("LEXICON_WATCH", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxOpenFiles:  getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 64),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be > 0")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be > 0")
	}
	if c.Remote.HistoryTurns <= 0 {
		return fmt.Errorf("HISTORY_TURNS must be > 0")
	}
	if c.Remote.MinReplyLength < 0 {
		return fmt.Errorf("MIN_REPLY_LENGTH must be >= 0")
	}
	if c.Lexicon.Watch && c.Lexicon.Path == "" {
		return fmt.Errorf("LEXICON_WATCH requires LEXICON_PATH")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
