package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/identity"
	"github.com/ashureev/manosakhi/internal/resolver"
)

const wsWriteTimeout = 10 * time.Second

// wsInbound is a client to server WebSocket message.
type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsOutbound is a server to client WebSocket message.
type wsOutbound struct {
	Type     string            `json:"type"`
	Reply    string            `json:"reply,omitempty"`
	Source   resolver.Source   `json:"source,omitempty"`
	Model    string            `json:"model,omitempty"`
	Category string            `json:"category,omitempty"`
	Turns    domain.Transcript `json:"turns,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// originPatterns converts configured origins to the host patterns the
// websocket library matches against.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// HandleWebSocket handles GET /ws/chat. On connect the current transcript is
// sent as a "history" message.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	slog.Info("Chat WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(h.maxMessageBytes)

	h.conns.Register(userID, sessionID, ws)
	defer h.conns.Unregister(userID, sessionID, ws)

	ctx := r.Context()
	turns, err := h.svc.Transcript(ctx, userID, sessionID)
	if err != nil {
		slog.Error("Failed to load transcript", "user_id", userID, "session_id", sessionID, "error", err)
		h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: "failed to load conversation"})
		return
	}
	if err := h.writeWS(ctx, ws, wsOutbound{Type: "history", Turns: nonNilTurns(turns)}); err != nil {
		return
	}

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("Chat WebSocket closed", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: "invalid message"}) != nil {
				return
			}
			continue
		}

		var out wsOutbound
		switch msg.Type {
		case "message":
			out = h.submitWS(ctx, userID, sessionID, msg.Content)
		case "clear":
			if err := h.svc.Clear(ctx, userID, sessionID, channelWebSocket); err != nil {
				out = wsError(userID, sessionID, err)
			} else {
				out = wsOutbound{Type: "cleared"}
			}
		case "ping":
			out = wsOutbound{Type: "pong"}
		default:
			out = wsOutbound{Type: "error", Error: "unknown message type"}
		}

		if err := h.writeWS(ctx, ws, out); err != nil {
			return
		}
	}
}

func (h *Handler) submitWS(ctx context.Context, userID, sessionID, content string) wsOutbound {
	if strings.TrimSpace(content) == "" {
		return wsError(userID, sessionID, ErrEmptyMessage)
	}
	if !h.limiter.Allow(userID) {
		return wsOutbound{Type: "error", Error: "rate limit exceeded"}
	}
	res, err := h.svc.Submit(ctx, userID, sessionID, channelWebSocket, content)
	if err != nil {
		return wsError(userID, sessionID, err)
	}
	return wsOutbound{
		Type:     "reply",
		Reply:    res.Reply.Text,
		Source:   res.Reply.Source,
		Model:    res.Reply.Model,
		Category: res.Reply.Category,
		Turns:    res.Transcript,
	}
}

func wsError(userID, sessionID string, err error) wsOutbound {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return wsOutbound{Type: "error", Error: "message is required"}
	case errors.Is(err, ErrBusy):
		return wsOutbound{Type: "error", Error: ErrBusy.Error()}
	default:
		slog.Error("Chat WebSocket request failed", "user_id", userID, "session_id", sessionID, "error", err)
		return wsOutbound{Type: "error", Error: "failed to process message"}
	}
}

func (h *Handler) writeWS(ctx context.Context, ws *websocket.Conn, v wsOutbound) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}
