package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/manosakhi/internal/identity"
)

// RegisterRoutes registers the identity-scoped API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
	})
}

// GetMe returns the current anonymous user and tab session.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		slog.Warn("User lookup failed", "user_id", userID, "error", err)
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.UserID,
		"username":    user.Username,
		"session_id":  identity.SessionIDFromContext(r.Context()),
		"session_ttl": int64(h.sessionTTL / time.Second),
	})
}

// GetConfig returns what the chat view needs to render itself.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	lex := h.lexicon.Current()
	JSON(w, http.StatusOK, map[string]interface{}{
		"remote_enabled":  h.remote.RemoteEnabled(),
		"candidates":      h.remote.CandidateIDs(),
		"lexicon_version": lex.Version,
		"disclaimer":      lex.Disclaimer,
		"session_header":  identity.SessionHeaderName,
	})
}
