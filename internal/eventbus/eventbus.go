package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Event represents an arbitrary station event passed on the bus.
type Event interface{}

// Observer receives station events. Any type exposing HandleEvent qualifies;
// a returned error is collected by Publish but never stops delivery to the
// remaining observers.
type Observer interface {
	HandleEvent(Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event) error

func (f ObserverFunc) HandleEvent(e Event) error { return f(e) }

// Subscription is the handle returned by Subscribe. After Unsubscribe returns
// the observer receives no further events.
type Subscription struct {
	observer Observer
	active   atomic.Bool
}

// Bus is a synchronous fan-out notification bus. Events are delivered in
// subscription order to the snapshot of subscribers taken at publish time:
// an observer added during a publish does not see the in-flight event.
//
// The bus holds no lock while observers run, so an observer may publish
// further events without deadlocking; callers that must not be re-entered
// (such as the allocation engine) publish only outside their own critical
// sections.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

// New creates a new Bus.
func New() *Bus { return &Bus{} }

// Subscribe registers the observer and returns its subscription handle.
func (b *Bus) Subscribe(o Observer) *Subscription {
	s := &Subscription{observer: o}
	b.mu.Lock()
	if !b.closed {
		s.active.Store(true)
		b.subs = append(b.subs, s)
	}
	b.mu.Unlock()
	return s
}

// Unsubscribe deactivates the subscription. Once it returns, the observer is
// guaranteed to receive no further events, including any publish already in
// flight.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	s.active.Store(false)
	b.mu.Lock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// Publish delivers the event synchronously to every active subscriber in
// subscription order. Observer failures are collected and returned; they do
// not prevent delivery to subsequent observers.
func (b *Bus) Publish(e Event) []error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	snapshot := make([]*Subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		if err := safeHandle(s.observer, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// safeHandle invokes the observer and converts a panic into an error so a
// misbehaving observer cannot take down the publisher.
func safeHandle(o Observer, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return o.HandleEvent(e)
}

// Close deactivates all subscriptions and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.active.Store(false)
	}
	b.subs = nil
	b.mu.Unlock()
}
