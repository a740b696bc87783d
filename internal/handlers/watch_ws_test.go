// internal/handlers/watch_ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genzdict/battlegate/internal/auth"
	"github.com/genzdict/battlegate/internal/document"
)

func dialWatch(ctx context.Context, t *testing.T, baseURL, path, token string, subprotocols []string) (*websocket.Conn, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", "auth_token="+token)
	}
	c, resp, err := websocket.Dial(ctx, baseURL+path, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return c, err
}

func closeCodeFromRead(ctx context.Context, c *websocket.Conn) websocket.StatusCode {
	_, _, err := c.Read(ctx)
	return websocket.CloseStatus(err)
}

func TestWatchWSRejections(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(WatchWSHandler(g.Logger, g)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := auth.IssueToken("u1")
	require.NoError(t, err)

	t.Run("wrong subprotocol closes with 3000", func(t *testing.T) {
		c, err := dialWatch(ctx, t, srv.URL, "/watch/ws/battle_lobbies/ABC123", token, nil)
		require.NoError(t, err)
		defer c.CloseNow()
		assert.Equal(t, websocket.StatusCode(BadSubprotocolError), closeCodeFromRead(ctx, c))
	})

	t.Run("bad token closes with 3001", func(t *testing.T) {
		c, err := dialWatch(ctx, t, srv.URL, "/watch/ws/battle_lobbies/ABC123", "not-a-jwt", []string{"watch"})
		require.NoError(t, err)
		defer c.CloseNow()
		assert.Equal(t, websocket.StatusCode(InvalidAuthTokenError), closeCodeFromRead(ctx, c))
	})

	t.Run("missing prefix closes with 3002", func(t *testing.T) {
		c, err := dialWatch(ctx, t, srv.URL, "/watch/ws/", token, []string{"watch"})
		require.NoError(t, err)
		defer c.CloseNow()
		assert.Equal(t, websocket.StatusCode(InvalidWatchPathError), closeCodeFromRead(ctx, c))
	})
}

func TestWatchWSDeliversChanges(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(WatchWSHandler(g.Logger, g)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := auth.IssueToken("hostA")
	require.NoError(t, err)

	c, err := dialWatch(ctx, t, srv.URL, "/watch/ws/battle_lobbies/ABC123", token, []string{"watch"})
	require.NoError(t, err)
	defer c.CloseNow()

	// The subscription races the dial, so keep re-writing until the first
	// event arrives.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = g.Store.PutSystem(ctx, document.LobbyPath("ABC123"), document.Doc{
					"hostId":    "hostA",
					"status":    "created",
					"questions": []interface{}{"q1"},
				})
			}
		}
	}()
	defer close(done)

	_, payload, err := c.Read(ctx)
	require.NoError(t, err)

	var msg struct {
		Type string       `json:"type"`
		Path string       `json:"path"`
		Op   string       `json:"op"`
		Doc  document.Doc `json:"doc"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "change", msg.Type)
	assert.Equal(t, "battle_lobbies/ABC123", msg.Path)
	host, _ := msg.Doc.String("hostId")
	assert.Equal(t, "hostA", host)
}
