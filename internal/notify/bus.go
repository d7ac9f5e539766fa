// Package notify implements the store-changed broadcast signal.
//
// The signal carries no payload: subscribers treat it as "something changed,
// re-read" and never as the changed data itself.
package notify

import "sync"

// Bus broadcasts change notifications to registered subscribers. Delivery is
// synchronous and in registration order.
type Bus struct {
	mu   sync.Mutex
	next int64
	subs []*Subscription
}

// Subscription is a handle to a registered listener. Holders must call
// Unsubscribe on teardown; there is no implicit global listener cleanup.
type Subscription struct {
	id  int64
	fn  func()
	bus *Bus
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns its handle. fn is invoked on the
// publisher's goroutine, so it must be cheap and must not publish back into
// the bus.
func (b *Bus) Subscribe(fn func()) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	sub := &Subscription{id: b.next, fn: fn, bus: b}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == s.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	s.bus = nil
}

// Publish notifies all current subscribers in registration order.
func (b *Bus) Publish() {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
