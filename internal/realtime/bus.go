// Package realtime carries change events from the services to websocket
// subscribers, either inside one process or across instances over NATS.
package realtime

import (
	"encoding/json"
	"sync"
)

// Event types
const (
	MessageNew    = "message_new"
	OrderStatus   = "order_status"
	ReviewPending = "review_pending"
)

// AdminTopic receives moderation events for every admin session.
const AdminTopic = "admin"

// OrderTopic is the topic of one P2P order.
func OrderTopic(orderID string) string {
	return "p2p_orders." + orderID
}

// Event is one change notification.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event.
func NewEvent(eventType string, data any) (Event, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: b}, nil
}

// Bus is a topic based publish/subscribe channel. Handlers must not block.
type Bus interface {
	Publish(topic string, evt Event) error
	Subscribe(topic string, fn func(Event)) (unsubscribe func(), err error)
	Close() error
}

// Publish builds and publishes an event, logging failures.
func Publish(b Bus, topic, eventType string, data any) {
	evt, err := NewEvent(eventType, data)
	if err != nil {
		logger.Error().Err(err).Str("topic", topic).Msg("could not encode event")
		return
	}
	if err := b.Publish(topic, evt); err != nil {
		logger.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// LocalBus delivers events to subscribers of the same process.
type LocalBus struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(Event)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]func(Event))}
}

func (b *LocalBus) Publish(topic string, evt Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
	return nil
}

func (b *LocalBus) Subscribe(topic string, fn func(Event)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(Event))
	}
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}, nil
}

func (b *LocalBus) Close() error { return nil }
