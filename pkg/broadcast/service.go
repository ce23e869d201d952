// Package broadcast fans events out to any number of concurrent observers.
// Every event type and payload shape is a typed Event; delivery problems on
// one subscriber never propagate to the publisher or to other subscribers.
package broadcast

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// NewEvent stamps an envelope with the current time in Unix milliseconds.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Subscribe registers a new observer. snapshotFn builds the joiner's
// initial_state payload and runs under the registry lock, so the snapshot
// reflects exactly the events published before registration: nothing is
// missed and at worst a delta already folded into the snapshot is delivered
// again, which is idempotent for observers.
func (b *Broadcaster) Subscribe(snapshotFn func() any) (Event, *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := NewEvent(TypeInitialState, snapshotFn())
	ch := make(chan Event, subscriberBuffer)
	id := b.next
	b.next++
	b.subs[id] = ch
	return snapshot, &Subscription{C: ch, id: id, b: b}
}

// Publish pushes an event to every registered subscriber. A subscriber that
// cannot keep up (full buffer, typically a dead connection that was never
// closed) is dropped lazily rather than blocking the publisher.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logrus.Warnf("Dropping stalled subscriber %d", id)
			delete(b.subs, id)
			close(ch)
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if ch, ok := s.b.subs[s.id]; ok {
		delete(s.b.subs, s.id)
		close(ch)
	}
}
