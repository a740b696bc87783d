// internal/handlers/docs_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genzdict/battlegate/internal/auth"
	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/notify"
	"github.com/genzdict/battlegate/internal/store"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	auth.Init()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	broker := notify.NewBroker(logger)
	return NewGateway(store.NewMemory(broker), broker, logger)
}

func authedRequest(t *testing.T, identity, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	token, err := auth.IssueToken(identity)
	require.NoError(t, err)
	req.Header.Set("Cookie", "auth_token="+token)
	return req
}

func TestDocsHandlerAuth(t *testing.T) {
	g := newTestGateway(t)
	handler := DocsHandler(g)

	t.Run("no token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/docs/battle_lobbies/ABC123", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/docs/battle_lobbies/ABC123", nil)
		req.Header.Set("Cookie", "auth_token=not-a-jwt")
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing document path is 400", func(t *testing.T) {
		req := authedRequest(t, "u1", http.MethodGet, "/docs/", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDocsHandlerWriteAndRead(t *testing.T) {
	g := newTestGateway(t)
	handler := DocsHandler(g)

	lobby := document.Doc{
		"hostId":       "hostA",
		"status":       "created",
		"currentIndex": 0,
		"questions":    []interface{}{"q1", "q2"},
		"answers":      map[string]interface{}{},
		"locked":       map[string]interface{}{},
		"scores":       map[string]interface{}{},
	}

	t.Run("allowed write is 204", func(t *testing.T) {
		req := authedRequest(t, "hostA", http.MethodPut, "/docs/battle_lobbies/ABC123", lobby)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("any signed-in caller may read", func(t *testing.T) {
		req := authedRequest(t, "someone_else", http.MethodGet, "/docs/battle_lobbies/ABC123", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var got document.Doc
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		host, _ := got.String("hostId")
		assert.Equal(t, "hostA", host)
	})

	t.Run("refused write is a bare 403", func(t *testing.T) {
		tampered := lobby.Clone()
		tampered["status"] = "started"
		req := authedRequest(t, "intruder", http.MethodPut, "/docs/battle_lobbies/ABC123", tampered)
		w := httptest.NewRecorder()
		handler(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		// The policy cause stays server-side.
		assert.NotContains(t, w.Body.String(), "transition")
		assert.NotContains(t, w.Body.String(), "role")
	})

	t.Run("unknown document is 404", func(t *testing.T) {
		req := authedRequest(t, "hostA", http.MethodGet, "/docs/battle_lobbies/NOPE99", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad payload is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/docs/battle_lobbies/ABC123", bytes.NewBufferString("{nope"))
		token, err := auth.IssueToken("hostA")
		require.NoError(t, err)
		req.Header.Set("Cookie", "auth_token="+token)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("null payload is 400, not a delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/docs/battle_lobbies/ABC123", bytes.NewBufferString("null"))
		token, err := auth.IssueToken("hostA")
		require.NoError(t, err)
		req.Header.Set("Cookie", "auth_token="+token)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// The document survived.
		_, err = g.Store.Get(req.Context(), "battle_lobbies/ABC123")
		assert.NoError(t, err)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := authedRequest(t, "hostA", http.MethodPatch, "/docs/battle_lobbies/ABC123", lobby)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestDocsHandlerTimeSyncProbe(t *testing.T) {
	g := newTestGateway(t)
	handler := DocsHandler(g)

	req := authedRequest(t, "anyUser", http.MethodPut, "/docs/battle_lobbies/_time_sync",
		document.Doc{"ts": 1712000000})
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDocsHandlerDeleteIsPolicyChecked(t *testing.T) {
	g := newTestGateway(t)
	handler := DocsHandler(g)

	ctx := context.Background()
	require.NoError(t, g.Store.PutSystem(ctx, document.UserPath("u1"), document.Doc{
		"displayId": "Name", "displayIdLower": "name",
	}))

	req := authedRequest(t, "u1", http.MethodDelete, "/docs/users/u1", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := g.Store.Get(ctx, document.UserPath("u1"))
	assert.NoError(t, err)
}
