package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sub, replay := hub.Subscribe(TypeInvoiceIssued)
	defer sub.Close()
	assert.Empty(t, replay)

	event := New(TypeInvoiceIssued, map[string]any{"invoice_id": "42"})
	require.NotEmpty(t, event.ID)
	hub.Publish(event)

	received := <-sub.Events()
	assert.Equal(t, event.ID, received.ID)
	assert.Equal(t, "42", received.Payload["invoice_id"])
}

func TestReplayBuffer(t *testing.T) {
	hub := NewHub(zap.NewNop())

	// Prime the stream so the buffer exists before the late subscriber.
	early, _ := hub.Subscribe(TypePaymentApplied)
	defer early.Close()

	hub.Publish(New(TypePaymentApplied, map[string]any{"n": 1}))
	hub.Publish(New(TypePaymentApplied, map[string]any{"n": 2}))

	late, replay := hub.Subscribe(TypePaymentApplied)
	defer late.Close()
	assert.Len(t, replay, 2)
}

func TestSlowSubscriberDropped(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.subscriberBuffer = 1

	sub, _ := hub.Subscribe(TypeAllocationRecomputed)
	defer sub.Close()

	// Second publish must not block even though nobody is draining.
	hub.Publish(New(TypeAllocationRecomputed, nil))
	hub.Publish(New(TypeAllocationRecomputed, nil))

	assert.Len(t, sub.Events(), 1)
}

func TestCloseIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub, _ := hub.Subscribe(TypeInvoiceIssued)
	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
}
