package recognition

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chelleboyer/reachy-recognizer/core/events"
)

// Listener receives events synchronously on the ingestion path. Listener
// work must be non-blocking: enqueue and return.
type Listener func(events.Event)

// SubscriptionID identifies one registered listener.
type SubscriptionID = uuid.UUID

type subscription struct {
	id       SubscriptionID
	listener Listener
}

const defaultHistoryCapacity = 100

// Registry is the event history and dispatch table. Events are appended
// to a bounded FIFO history and delivered synchronously, in registration
// order, to every listener registered for their kind. A panicking listener
// is isolated: the failure is logged and the remaining listeners still run.
//
// Register and Unregister calls made from inside a listener are deferred
// until the current dispatch completes.
type Registry struct {
	mu sync.Mutex

	capacity int
	history  []events.Event

	listeners map[events.Kind][]subscription

	dispatching bool
	deferred    []func()
}

type RegistryOption func(*Registry)

func WithHistoryCapacity(capacity int) RegistryOption {
	return func(r *Registry) {
		if capacity > 0 {
			r.capacity = capacity
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	registry := &Registry{
		capacity:  defaultHistoryCapacity,
		listeners: map[events.Kind][]subscription{},
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// Register adds a listener for one event kind and returns its
// subscription ID. Inside a dispatch the registration takes effect after
// the dispatch completes.
func (r *Registry) Register(kind events.Kind, listener Listener) SubscriptionID {
	id := uuid.New()
	if r == nil || listener == nil {
		return id
	}

	entry := subscription{id: id, listener: listener}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dispatching {
		r.deferred = append(r.deferred, func() {
			r.listeners[kind] = append(r.listeners[kind], entry)
		})
		return id
	}

	r.listeners[kind] = append(r.listeners[kind], entry)
	return id
}

// Unregister removes the listener with the given subscription ID. Unknown
// IDs are ignored.
func (r *Registry) Unregister(id SubscriptionID) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dispatching {
		r.deferred = append(r.deferred, func() { r.removeLocked(id) })
		return
	}

	r.removeLocked(id)
}

func (r *Registry) removeLocked(id SubscriptionID) {
	for kind, subscriptions := range r.listeners {
		for i, entry := range subscriptions {
			if entry.id == id {
				r.listeners[kind] = append(subscriptions[:i:i], subscriptions[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n most recent events, newest first.
func (r *Registry) Recent(n int) []events.Event {
	if r == nil || n <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.history) {
		n = len(r.history)
	}

	recent := make([]events.Event, 0, n)
	for i := len(r.history) - 1; i >= len(r.history)-n; i-- {
		recent = append(recent, r.history[i])
	}
	return recent
}

// HistorySize returns the number of events currently retained.
func (r *Registry) HistorySize() int {
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// publish appends the event to history and dispatches it. Called only by
// the tracker, one event at a time, on the ingestion path.
func (r *Registry) publish(event events.Event) {
	if r == nil || event == nil {
		return
	}

	r.mu.Lock()
	r.history = append(r.history, event)
	if len(r.history) > r.capacity {
		r.history = append(r.history[:0:0], r.history[len(r.history)-r.capacity:]...)
	}

	targets := append([]subscription(nil), r.listeners[event.Kind()]...)
	r.dispatching = true
	r.mu.Unlock()

	for _, entry := range targets {
		r.invoke(entry, event)
	}

	r.mu.Lock()
	r.dispatching = false
	for _, apply := range r.deferred {
		apply()
	}
	r.deferred = nil
	r.mu.Unlock()
}

// invoke runs one listener with a panic boundary so a failing subscriber
// cannot break propagation to the others.
func (r *Registry) invoke(entry subscription, event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("listener %s panicked on %s: %v", entry.id, event.Kind(), recovered)
			logger.Error("listener failed", "error", err)
		}
	}()

	entry.listener(event)
}
