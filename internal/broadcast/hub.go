package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types published by the core.
const (
	EventPriceUpdate  = "price.update"
	EventWalletUpdate = "wallet.update"
)

// PriceQuote is one element of a price.update payload.
type PriceQuote struct {
	AssetCode string          `json:"asset_code"`
	Price     decimal.Decimal `json:"price"`
}

// Event is a best-effort notification fanned out to subscribers.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// NewEvent stamps a payload with an id and publish time.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

type subscriber struct {
	id string
	ch chan Event
}

// Hub is an in-process publish/subscribe fan-out with no delivery
// guarantee. Each subscriber gets its own buffered channel; a full buffer
// drops the event for that subscriber only, so a slow consumer can never
// stall the publisher or its peers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber)}
}

// Subscribe registers a new subscriber and returns its id and channel.
// buffer <= 0 falls back to a small default.
func (h *Hub) Subscribe(buffer int) (string, <-chan Event) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, buffer),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	return sub.id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish fans the event out without blocking. Returns the number of
// subscribers that received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			slog.Debug("Broadcast dropped for slow subscriber",
				slog.String("subscriber", sub.id),
				slog.String("type", ev.Type))
		}
	}
	return delivered
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
