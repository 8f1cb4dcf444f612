package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubRoutesByUser(t *testing.T) {
	h := NewHub()
	alice := h.Subscribe("alice")
	bob := h.Subscribe("bob")
	defer h.Unsubscribe(alice)
	defer h.Unsubscribe(bob)

	h.Notify(context.Background(), Event{Type: EventOrderFilled, UserID: "alice"})
	h.Notify(context.Background(), Event{Type: EventPrices})

	got := <-alice
	assert.Equal(t, EventOrderFilled, got.Type)
	assert.False(t, got.At.IsZero())
	assert.Equal(t, EventPrices, (<-alice).Type)
	assert.Equal(t, EventPrices, (<-bob).Type)
	assert.Len(t, bob, 0)
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("u")
	for i := 0; i < 150; i++ {
		h.Notify(context.Background(), Event{Type: EventPrices})
	}
	assert.Len(t, ch, 100)
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	assert.Equal(t, 0, h.Subscribers())
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	n := Multi(a, nil, b)
	n.Notify(context.Background(), Event{Type: EventMarginCall, UserID: "u"})
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.False(t, a.events[0].At.IsZero())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, zap.NewNop())

	sink.Notify(context.Background(), Event{Type: EventPositionClosed, UserID: "u-1", Data: map[string]string{"reason": "stop_loss"}})
	sink.Notify(context.Background(), Event{Type: EventPrices, Data: 1})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u-1", string(w.msgs[0].Key))
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, EventPositionClosed, env["type"])
	assert.Equal(t, "u-1", env["user_id"])
}

func TestKafkaSinkSwallowsErrors(t *testing.T) {
	sink := newKafkaSink(&fakeWriter{err: errors.New("broker down")}, zap.NewNop())
	assert.NotPanics(t, func() {
		sink.Notify(context.Background(), Event{Type: EventOrderFilled, UserID: "u"})
	})
}
