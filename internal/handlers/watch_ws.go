// internal/handlers/watch_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/middleware"
	"github.com/genzdict/battlegate/internal/store"
)

// WatchWSHandler upgrades /watch/ws/{prefix} to a websocket delivering every
// committed change under the given path prefix. This is the store's
// change-notification fan-out: subscribers see writes only after the policy
// evaluator has allowed them and the store has committed.
func WatchWSHandler(logger *logrus.Logger, g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		prefix := strings.Trim(strings.TrimPrefix(r.URL.Path, "/watch/ws/"), "/")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"watch"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "watch" {
			c.Close(BadSubprotocolError, "client must speak the watch subprotocol")
			return
		}

		caller := callerIdentity(r)
		if caller == "" {
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		if prefix == "" {
			c.Close(InvalidWatchPathError, "missing watch path prefix")
			return
		}

		events, unsubscribe := g.Broker.Subscribe(prefix)
		defer unsubscribe()
		middleware.LogWatchConnect(logger, remoteAddr, prefix)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Read side exists only to notice the client going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := c.Read(ctx); err != nil {
					return
				}
			}
		}()

		err = writeEvents(ctx, c, events)
		middleware.LogWatchDisconnect(logger, remoteAddr, prefix, err)
		c.Close(websocket.StatusNormalClosure, "watch ended")
	}
}

// writeEvents pushes change events to the client until the context ends or
// the broker closes the channel.
func writeEvents(ctx context.Context, c *websocket.Conn, events <-chan store.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(map[string]interface{}{
				"type": "change",
				"path": ev.Path,
				"op":   ev.Op,
				"doc":  ev.Doc,
			})
			if err != nil {
				return err
			}
			if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
