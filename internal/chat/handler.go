package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/manosakhi/internal/api"
	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/identity"
	"github.com/ashureev/manosakhi/internal/resolver"
)

// defaultMaxMessageBytes bounds a chat request body when none is configured.
const defaultMaxMessageBytes = 16 << 10

const (
	channelHTTP      = "chat_http"
	channelWebSocket = "chat_ws"
)

// Handler serves the chat HTTP and WebSocket endpoints.
type Handler struct {
	svc             *Service
	limiter         *RateLimiter
	conns           *Connections
	maxMessageBytes int64
	allowedOrigins  []string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	MaxMessageBytes int64
	// AllowedOrigins are WebSocket origin patterns; empty allows any origin.
	AllowedOrigins []string
}

// NewHandler creates a chat handler. The handler does not own svc or limiter.
func NewHandler(svc *Service, limiter *RateLimiter, opts HandlerOptions) *Handler {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Handler{
		svc:             svc,
		limiter:         limiter,
		conns:           NewConnections(),
		maxMessageBytes: opts.MaxMessageBytes,
		allowedOrigins:  opts.AllowedOrigins,
	}
}

// RegisterRoutes registers chat routes. Identity middleware must run first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/chat", h.HandleTranscript)
	r.Post("/api/chat", h.HandleSubmit)
	r.Delete("/api/chat", h.HandleClear)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// Close terminates open WebSocket connections.
func (h *Handler) Close() {
	h.conns.CloseAll()
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	Reply    string            `json:"reply"`
	Source   resolver.Source   `json:"source"`
	Model    string            `json:"model,omitempty"`
	Category string            `json:"category,omitempty"`
	Turns    domain.Transcript `json:"turns"`
}

// TranscriptResponse is returned by GET /api/chat.
type TranscriptResponse struct {
	SessionID string            `json:"session_id"`
	Turns     domain.Transcript `json:"turns"`
}

func newChatResponse(res Result) ChatResponse {
	return ChatResponse{
		Reply:    res.Reply.Text,
		Source:   res.Reply.Source,
		Model:    res.Reply.Model,
		Category: res.Reply.Category,
		Turns:    nonNilTurns(res.Transcript),
	}
}

func nonNilTurns(t domain.Transcript) domain.Transcript {
	if t == nil {
		return domain.Transcript{}
	}
	return t
}

// HandleTranscript handles GET /api/chat.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	turns, err := h.svc.Transcript(r.Context(), userID, sessionID)
	if err != nil {
		slog.Error("Failed to load transcript", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	api.JSON(w, http.StatusOK, TranscriptResponse{SessionID: sessionID, Turns: nonNilTurns(turns)})
}

// HandleSubmit handles POST /api/chat.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxMessageBytes)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Malformed and blank submissions do not spend the rate budget.
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if !h.limiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	res, err := h.svc.Submit(r.Context(), userID, sessionID, channelHTTP, req.Message)
	if err != nil {
		h.writeServiceError(w, userID, sessionID, err)
		return
	}
	api.JSON(w, http.StatusOK, newChatResponse(res))
}

// HandleClear handles DELETE /api/chat.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Clear(r.Context(), userID, sessionID, channelHTTP); err != nil {
		h.writeServiceError(w, userID, sessionID, err)
		return
	}
	h.conns.Notify(r.Context(), userID, sessionID, wsOutbound{Type: "cleared"})
	api.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, userID, sessionID string, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		api.Error(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, ErrBusy):
		api.Error(w, http.StatusConflict, ErrBusy.Error())
	default:
		slog.Error("Chat request failed", "user_id", userID, "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to process message")
	}
}
