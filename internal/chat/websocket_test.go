package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/manosakhi/internal/resolver"
)

func dialChat(t *testing.T, s *testServer, session string) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?session_id=" + session
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func TestWebSocketChat(t *testing.T) {
	s := newTestServer(t, defaultResponder(), 10)
	conn, ctx := dialChat(t, s, "tab-ws")

	var history wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &history))
	assert.Equal(t, "history", history.Type)
	assert.Empty(t, history.Turns)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "message", Content: "I can't focus on anything"}))
	var reply wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, "reply", reply.Type)
	assert.Equal(t, "That sounds exhausting. What has been hardest?", reply.Reply)
	assert.Equal(t, resolver.SourceRemote, reply.Source)
	assert.Len(t, reply.Turns, 2)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "ping"}))
	var pong wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "message", Content: "  "}))
	var empty wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &empty))
	assert.Equal(t, "error", empty.Type)
	assert.Equal(t, "message is required", empty.Error)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "clear"}))
	var cleared wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &cleared))
	assert.Equal(t, "cleared", cleared.Type)

	turns, err := s.handler.svc.Transcript(ctx, "anon_test", "tab-ws")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestWebSocketSendsExistingHistory(t *testing.T) {
	s := newTestServer(t, defaultResponder(), 10)
	_, err := s.handler.svc.Submit(context.Background(), "anon_test", "tab-h", channelHTTP, "earlier message")
	require.NoError(t, err)

	conn, ctx := dialChat(t, s, "tab-h")
	var history wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &history))
	assert.Equal(t, "history", history.Type)
	require.Len(t, history.Turns, 2)
	assert.Equal(t, "earlier message", history.Turns[0].Text)
}

func TestWebSocketBlankMessageKeepsBudget(t *testing.T) {
	s := newTestServer(t, defaultResponder(), 1)
	conn, ctx := dialChat(t, s, "tab-b")

	var history wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &history))

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "message", Content: " \n "}))
	var blank wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &blank))
	assert.Equal(t, "message is required", blank.Error)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "message", Content: "I can't sleep"}))
	var reply wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &reply))
	assert.Equal(t, "reply", reply.Type)

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "message", Content: "still awake"}))
	var limited wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &limited))
	assert.Equal(t, "rate limit exceeded", limited.Error)
}

func TestWebSocketUnknownType(t *testing.T) {
	s := newTestServer(t, defaultResponder(), 10)
	conn, ctx := dialChat(t, s, "tab-u")

	var history wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &history))

	require.NoError(t, wsjson.Write(ctx, conn, wsInbound{Type: "resize"}))
	var out wsOutbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	assert.Equal(t, "error", out.Type)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, originPatterns(nil))
	assert.Equal(t, []string{"*"}, originPatterns([]string{"*"}))
	assert.Equal(t, []string{"sakhi.example.org"}, originPatterns([]string{"https://sakhi.example.org"}))
}
