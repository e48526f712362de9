// Package api provides the JSON helpers and the non-chat endpoints of the
// ManoSakhi API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/store"
)

// RemoteInfo describes the remote generation setup.
type RemoteInfo interface {
	RemoteEnabled() bool
	CandidateIDs() []string
}

// LexiconSource yields the active lexicon.
type LexiconSource interface {
	Current() *lexicon.Lexicon
}

// Handler serves /api/me, /api/config and /api/health.
type Handler struct {
	repo       store.Repository
	remote     RemoteInfo
	lexicon    LexiconSource
	sessionTTL time.Duration
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, remote RemoteInfo, lex LexiconSource, sessionTTL time.Duration) *Handler {
	return &Handler{
		repo:       repo,
		remote:     remote,
		lexicon:    lex,
		sessionTTL: sessionTTL,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

const healthTimeout = 2 * time.Second

// Health handles GET /api/health. It does not require identity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"remote_enabled": h.remote.RemoteEnabled(),
	})
}
