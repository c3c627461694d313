package extension

import (
	"errors"
	"sync"
	"time"
)

// AsyncEventBroker maintains an ordered list of named listeners for a single kind of event.
// Emit never blocks on listeners: each listener has its own queue, drained on a goroutine, so
// a listener sees events in emit order while listeners run in parallel with each other.
type AsyncEventBroker[E any] struct {
	listeners namedList[*mailbox[E]]
}

// mailbox queues events for one listener.  A drain goroutine runs only while the queue is
// non-empty.
type mailbox[E any] struct {
	name     string
	fn       func(E)
	mu       sync.Mutex
	queue    []E
	draining bool
	closed   bool
}

func (mb *mailbox[E]) post(event E) {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.queue = append(mb.queue, event)
	start := !mb.draining
	mb.draining = true
	mb.mu.Unlock()

	if start {
		go mb.drain()
	}
}

func (mb *mailbox[E]) drain() {
	for {
		mb.mu.Lock()
		if len(mb.queue) == 0 || mb.closed {
			mb.queue = nil
			mb.draining = false
			mb.mu.Unlock()
			return
		}
		event := mb.queue[0]
		var zero E
		mb.queue[0] = zero
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()

		guard(mb.name, func(e E) *struct{} {
			mb.fn(e)
			return nil
		}, event)
	}
}

// close drops queued events; an event being delivered is allowed to finish.
func (mb *mailbox[E]) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.closed = true
}

// Emit queues a copy of the provided event for each registered listener.
func (eb *AsyncEventBroker[E]) Emit(event *E) {
	eb.listeners.each(func(_ string, mb *mailbox[E]) bool {
		mb.post(*event)
		return true
	})
}

// AddListener registers the named listener, replacing one with a duplicate name if present.
func (eb *AsyncEventBroker[E]) AddListener(name string, listener func(E)) {
	if old, ok := eb.listeners.add(name, &mailbox[E]{name: name, fn: listener}); ok {
		old.close()
	}
}

// RemoveListener unregisters the named listener, dropping events it has not yet received.
func (eb *AsyncEventBroker[E]) RemoveListener(name string) {
	if old, ok := eb.listeners.remove(name); ok {
		old.close()
	}
}

// Len returns the number of listeners.
func (eb *AsyncEventBroker[E]) Len() int {
	return eb.listeners.len()
}

// AsyncTestListener returns a func that will wait for an event and return it, or timeout
// with an error.  The listener removes itself after capacity events.
func (eb *AsyncEventBroker[E]) AsyncTestListener(name string, capacity int) func() (*E, error) {
	events := make(chan E, capacity)
	eb.AddListener(name, func(e E) { events <- e })

	received := 0
	return func() (*E, error) {
		received++
		if received >= capacity {
			defer eb.RemoveListener(name)
		}

		select {
		case event := <-events:
			return &event, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("timeout waiting for event")
		}
	}
}
