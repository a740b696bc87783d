// internal/notify/broker.go
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/store"
)

// Broker is the in-process change fan-out. Websocket watch connections
// subscribe with a path prefix and receive every committed change under it.
// Sends are non-blocking; a subscriber that cannot keep up drops events.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscription
	logger *logrus.Logger
}

type subscription struct {
	id     int
	prefix string
	ch     chan store.ChangeEvent
}

// NewBroker returns an empty broker.
func NewBroker(logger *logrus.Logger) *Broker {
	return &Broker{
		subs:   make(map[int]*subscription),
		logger: logger,
	}
}

// Subscribe registers interest in all changes whose path starts with prefix.
// The returned cancel func must be called when the subscriber goes away.
func (b *Broker) Subscribe(prefix string) (<-chan store.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{
		id:     b.nextID,
		prefix: prefix,
		ch:     make(chan store.ChangeEvent, 16),
	}
	b.subs[sub.id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// PublishChange delivers the event to every matching subscriber.
func (b *Broker) PublishChange(_ context.Context, ev store.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(ev.Path, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{
					"path":   ev.Path,
					"prefix": sub.prefix,
				}).Warn("watch subscriber slow, dropping change event")
			}
		}
	}
}

// PublishDeny is a no-op; deny records are an audit concern, not a client one.
func (b *Broker) PublishDeny(context.Context, store.DenyRecord) {}

// Composite forwards events to multiple notifiers in order.
type Composite []store.Notifier

func (c Composite) PublishChange(ctx context.Context, ev store.ChangeEvent) {
	for _, n := range c {
		n.PublishChange(ctx, ev)
	}
}

func (c Composite) PublishDeny(ctx context.Context, rec store.DenyRecord) {
	for _, n := range c {
		n.PublishDeny(ctx, rec)
	}
}
