// internal/handlers/gateway.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/notify"
	"github.com/genzdict/battlegate/internal/store"
)

// Gateway bundles the document store, the watch fan-out broker and the
// logger for the HTTP handlers.
type Gateway struct {
	Store  store.Store
	Broker *notify.Broker
	Logger *logrus.Logger
}

// NewGateway wires a gateway around a store and broker.
func NewGateway(s store.Store, broker *notify.Broker, logger *logrus.Logger) *Gateway {
	return &Gateway{
		Store:  s,
		Broker: broker,
		Logger: logger,
	}
}
