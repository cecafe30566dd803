package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventWorkerProvisioned, "provisioned worker3", map[string]string{"slot": "3"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventWorkerProvisioned, e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "3", e.Metadata["slot"])

	other := NewEvent(EventWorkerProvisioned, "", nil)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(NewEvent(EventMessageSent, "sent", nil))

	for _, sub := range []Subscriber{first, second} {
		select {
		case e := <-sub:
			assert.Equal(t, EventMessageSent, e.Type)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBrokerSetsTimestamp(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Publish(&Event{Type: EventWorkerStarted})

	select {
	case e := <-sub:
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
	assert.Zero(t, b.SubscriberCount())

	// Second unsubscribe is a no-op
	b.Unsubscribe(sub)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker() // not started, nothing drains the queue

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(NewEvent(EventMessageReceived, "", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full queue")
	}
}

func TestPublishAfterStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	require.NotPanics(t, func() {
		b.Publish(NewEvent(EventWorkerFailed, "", nil))
	})
}

func TestSubscribeFiltersByType(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	failures := b.Subscribe(EventWorkerFailed)
	b.Publish(NewEvent(EventMessageSent, "ignored", nil))
	b.Publish(NewEvent(EventWorkerFailed, "worker2 failed", nil))

	select {
	case e := <-failures:
		assert.Equal(t, EventWorkerFailed, e.Type)
	case <-time.After(time.Second):
		t.Fatal("filtered event not delivered")
	}

	select {
	case e := <-failures:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
