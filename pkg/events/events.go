package events

import (
	"sync"
	"time"

	"github.com/cuemby/colony/pkg/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType represents the type of event
type EventType string

const (
	EventWorkerProvisioned EventType = "worker.provisioned"
	EventWorkerStarted     EventType = "worker.started"
	EventWorkerReplaced    EventType = "worker.replaced"
	EventWorkerUnsupported EventType = "worker.unsupported"
	EventWorkerFailed      EventType = "worker.failed"
	EventMessageSent       EventType = "message.sent"
	EventMessageReceived   EventType = "message.received"
	EventReconciled        EventType = "fleet.reconciled"
)

// Event represents a fleet or relay event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// NewEvent builds an event with a fresh id
func NewEvent(eventType EventType, message string, metadata map[string]string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
		Metadata:  metadata,
	}
}

// Subscriber receives the events it subscribed to
type Subscriber chan *Event

const (
	queueSize      = 100
	subscriberSize = 50
)

// Broker fans events out to subscribers from a single dispatch goroutine
type Broker struct {
	mu   sync.RWMutex
	subs map[Subscriber]map[EventType]bool // nil filter means every type

	queue    chan *Event
	done     chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]map[EventType]bool),
		queue:  make(chan *Event, queueSize),
		done:   make(chan struct{}),
		logger: log.WithComponent("events"),
	}
}

// Start launches the dispatch loop
func (b *Broker) Start() {
	go b.dispatch()
}

// Stop ends dispatching. Queued events are discarded. Safe to call twice.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given
func (b *Broker) Subscribe(eventTypes ...EventType) Subscriber {
	var filter map[EventType]bool
	if len(eventTypes) > 0 {
		filter = make(map[EventType]bool, len(eventTypes))
		for _, t := range eventTypes {
			filter[t] = true
		}
	}

	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = filter
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish queues an event without blocking. Events published after Stop, or
// while the queue is full, are dropped.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		b.logger.Debug().Str("type", string(event.Type)).Msg("Event queue full, dropping event")
	}
}

func (b *Broker) dispatch() {
	for {
		select {
		case <-b.done:
			return
		case event := <-b.queue:
			b.deliver(event)
		}
	}
}

// deliver hands event to every matching subscriber that has room for it
func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subs {
		if filter != nil && !filter[event.Type] {
			continue
		}
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
