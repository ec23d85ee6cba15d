package events

import (
	"sync"

	"github.com/cuemby/glide/pkg/types"
)

// InstanceChanged is published whenever the tracker's view of an instance
// changes lifecycle state.
type InstanceChanged struct {
	InstanceID string
	PathID     string
	Version    string
	Instance   types.Instance
}

// InstanceHealthChanged is published whenever a health check result
// arrives for an instance. Healthy is nil when health has become
// unreported (e.g. the check was removed).
type InstanceHealthChanged struct {
	InstanceID string
	Version    string
	PathID     string
	Healthy    *bool
}

// Event is the envelope carried on the bus; exactly one of the payload
// fields is non-nil.
type Event struct {
	InstanceChanged       *InstanceChanged
	InstanceHealthChanged *InstanceHealthChanged
}

// Subscriber is a channel that receives events in publish order.
type Subscriber chan Event

// Broker distributes events to every active subscriber, in the order
// events were published, without blocking publishers on slow subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker. Call Start before publishing.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Subscribers are not automatically unsubscribed.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber and returns its channel.
// Subscriptions are delivered events in the order Subscribe was called
// relative to Publish, per spec.md §5's ordering guarantee.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// PublishInstanceChanged publishes an InstanceChanged event.
func (b *Broker) PublishInstanceChanged(e InstanceChanged) {
	b.publish(Event{InstanceChanged: &e})
}

// PublishInstanceHealthChanged publishes an InstanceHealthChanged event.
func (b *Broker) PublishInstanceHealthChanged(e InstanceHealthChanged) {
	b.publish(Event{InstanceHealthChanged: &e})
}

func (b *Broker) publish(event Event) {
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; drop rather than block the broker.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
