package notify

import (
	"context"
	"sync"
	"time"
)

const (
	EventPrices         = "prices"
	EventOrderFilled    = "order.filled"
	EventOrderRejected  = "order.rejected"
	EventOrderOpen      = "order.open"
	EventOrderExpired   = "order.expired"
	EventOrderCancelled = "order.cancelled"
	EventPositionClosed = "position.closed"
	EventMarginCall     = "account.margin_call"
	EventLiquidated     = "account.liquidated"
	EventTxnCompleted   = "transaction.completed"
	EventTxnFailed      = "transaction.failed"
	EventKYCSubmitted   = "kyc.submitted"
	EventKYCApproved    = "kyc.approved"
	EventKYCRejected    = "kyc.rejected"
)

// Event is delivered to the user's room, or to everyone when UserID is empty.
type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"-"`
	Data   any       `json:"data"`
	At     time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Hub is an in-process pub/sub relay. Sends never block: a subscriber that
// falls behind loses events.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]string)}
}

// Subscribe joins the room of userID and the broadcast channel.
func (h *Hub) Subscribe(userID string) chan Event {
	ch := make(chan Event, 100)
	h.mu.Lock()
	h.subs[ch] = userID
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Notify(_ context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	h.mu.RLock()
	for ch, user := range h.subs {
		if evt.UserID != "" && evt.UserID != user {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type multi []Notifier

// Multi fans an event out to every non-nil notifier.
func Multi(ns ...Notifier) Notifier {
	out := make(multi, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Notify(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
