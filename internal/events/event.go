package events

import (
	"sync"
)

// registry holds the listener bookkeeping shared by ChannelEvent and CallbackEvent.
// L is the listener type (a channel or a callback), T the event value type.
type registry[L any, T any] struct {
	mu                    sync.RWMutex
	listeners             map[uint64]L
	nextID                uint64
	sendLastEventOnListen bool
	lastEvent             *T
}

func newRegistry[L any, T any](sendLastEventOnListen bool) registry[L, T] {
	return registry[L, T]{
		listeners:             make(map[uint64]L),
		sendLastEventOnListen: sendLastEventOnListen,
	}
}

// add stores the listener and returns its id plus a copy of the last event
// when it should be replayed to the new listener.
func (r *registry[L, T]) add(listener L) (uint64, *T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = listener
	if !r.sendLastEventOnListen || r.lastEvent == nil {
		return id, nil
	}
	replay := *r.lastEvent
	return id, &replay
}

func (r *registry[L, T]) remover(id uint64) func() {
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// snapshot records value as the last event (if enabled) and returns the
// listeners to deliver to. Delivery happens outside the lock.
func (r *registry[L, T]) snapshot(value T) []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendLastEventOnListen {
		v := value
		r.lastEvent = &v
	}
	out := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

// ListenerCount returns the current number of registered listeners
func (r *registry[L, T]) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Last returns the most recently notified value, if the event remembers it.
func (r *registry[L, T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastEvent == nil {
		var zero T
		return zero, false
	}
	return *r.lastEvent, true
}

// ChannelEvent provides pub/sub behavior using channels.
// Sends never block: a listener whose channel is full misses that value.
type ChannelEvent[T any] struct {
	registry[chan<- T, T]
	dropped uint64
}

// NewChannelEvent creates a new ChannelEvent.
// sendLastEventOnListen: remember the last Notify value and send it to new listeners.
func NewChannelEvent[T any](sendLastEventOnListen bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{registry: newRegistry[chan<- T, T](sendLastEventOnListen)}
}

// Listen registers a channel to receive values when Notify is invoked.
// Returns a deregistration function; calling it more than once is safe.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	id, replay := e.add(ch)
	if replay != nil {
		e.send(ch, *replay)
	}
	return e.remover(id)
}

// Notify sends value to all registered channels
func (e *ChannelEvent[T]) Notify(value T) {
	for _, ch := range e.snapshot(value) {
		e.send(ch, value)
	}
}

// Dropped returns how many deliveries were skipped because a channel was full
func (e *ChannelEvent[T]) Dropped() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dropped
}

func (e *ChannelEvent[T]) send(ch chan<- T, value T) {
	select {
	case ch <- value:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// CallbackEvent provides pub/sub behavior with type-safe callbacks.
// Callbacks run synchronously on the notifying goroutine.
type CallbackEvent[T any] struct {
	registry[func(T), T]
}

// NewCallbackEvent creates a new CallbackEvent.
// sendLastEventOnListen: remember the last Notify value and call new listeners with it.
func NewCallbackEvent[T any](sendLastEventOnListen bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{registry: newRegistry[func(T), T](sendLastEventOnListen)}
}

// Listen registers a callback to be called when Notify is invoked.
// Returns a deregistration function; calling it more than once is safe.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}
	id, replay := e.add(callback)
	if replay != nil {
		callback(*replay)
	}
	return e.remover(id)
}

// Notify calls all registered callbacks with value
func (e *CallbackEvent[T]) Notify(value T) {
	for _, callback := range e.snapshot(value) {
		callback(value)
	}
}
