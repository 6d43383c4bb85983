package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{ calls int }

func (e *echoHandler) Handle(ctx context.Context, userID, text string) string {
	e.calls++
	return "reply to " + text
}

func TestPrivateChatGating(t *testing.T) {
	h := &echoHandler{}
	g := New(Config{EnablePrivateChat: true, EnableGroupChat: true}, h)

	reply, handled := g.Handle(context.Background(), Inbound{UserID: "u", Text: "/help"})
	assert.True(t, handled)
	assert.Equal(t, "reply to /help", reply)

	off := New(Config{EnablePrivateChat: false}, h)
	_, handled = off.Handle(context.Background(), Inbound{UserID: "u", Text: "/help"})
	assert.False(t, handled)
}

func TestGroupMentionRules(t *testing.T) {
	h := &echoHandler{}
	g := New(Config{EnableGroupChat: true, RequireMentionInGroup: true}, h)
	ctx := context.Background()

	// Commands always pass.
	_, handled := g.Handle(ctx, Inbound{UserID: "u", Text: "/repo", Group: true})
	assert.True(t, handled)

	// Free text without a mention is ignored.
	_, handled = g.Handle(ctx, Inbound{UserID: "u", Text: "hello", Group: true})
	assert.False(t, handled)

	// Free text with a mention passes.
	_, handled = g.Handle(ctx, Inbound{UserID: "u", Text: "hello", Group: true, Mentioned: true})
	assert.True(t, handled)

	// No mention requirement: everything passes.
	open := New(Config{EnableGroupChat: true}, h)
	_, handled = open.Handle(ctx, Inbound{UserID: "u", Text: "hello", Group: true})
	assert.True(t, handled)

	// Group chat disabled: nothing passes.
	closed := New(Config{EnableGroupChat: false}, h)
	_, handled = closed.Handle(ctx, Inbound{UserID: "u", Text: "/repo", Group: true})
	assert.False(t, handled)
}

func TestHTTPHandler(t *testing.T) {
	g := New(Config{EnablePrivateChat: true}, &echoHandler{})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json",
		strings.NewReader(`{"user_id":"u-1","text":"/status"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing user id is rejected.
	resp2, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	// Malformed body is rejected.
	resp3, err := http.Post(srv.URL, "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}
