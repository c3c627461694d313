package msghub

import (
	"container/ring"
	"context"

	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/extension/event"
)

// Length of msghub operation queue
const opChanLen = 100

// Listener receives the contents of the history buffer, followed by new action records.
type Listener interface {
	Receive(rec event.ActionRecord) error
}

// Hub relays action records on to its listeners.
type Hub struct {
	// history buffer, points to the next record to write.  Proceeding non-nil entry is oldest.
	history   *ring.Ring
	listeners map[Listener]struct{} // listeners interested in new records
	opChan    chan func(h *Hub)     // operations queued for this actor
}

// New constructs a new Hub which will cache historyLen records in memory for playback to
// future listeners.  Records are received from the extension host's AfterActionDispatched
// event.  Call Start to begin processing.
func New(historyLen int, extHost *extension.Host) *Hub {
	hub := &Hub{
		history:   ring.New(historyLen),
		listeners: make(map[Listener]struct{}),
		opChan:    make(chan func(h *Hub), opChanLen),
	}

	extHost.Events.AfterActionDispatched.AddListener("msghub",
		func(rec event.ActionRecord) {
			hub.Dispatch(rec)
		})

	return hub
}

// Start Hub processing loop, it runs until ctx is canceled.
func (hub *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-hub.opChan:
			op(hub)
		}
	}
}

// Dispatch queues a record for broadcast by the hub.  The record will be placed into the
// history buffer and then relayed to all registered listeners.
func (hub *Hub) Dispatch(rec event.ActionRecord) {
	hub.opChan <- func(h *Hub) {
		if h.history != nil {
			h.history.Value = rec
			h.history = h.history.Next()
		}

		// Deliver to all listeners, removing listeners if they return an error.
		for l := range h.listeners {
			if err := l.Receive(rec); err != nil {
				delete(h.listeners, l)
			}
		}
	}
}

// AddListener registers a listener to receive broadcasted records, after replaying the
// history buffer to it.
func (hub *Hub) AddListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		if h.history != nil {
			failed := false
			h.history.Do(func(v any) {
				if v != nil && !failed {
					failed = l.Receive(v.(event.ActionRecord)) != nil
				}
			})
			if failed {
				return
			}
		}

		h.listeners[l] = struct{}{}
	}
}

// RemoveListener deletes a listener registration, it will cease to receive records.
func (hub *Hub) RemoveListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		delete(h.listeners, l)
	}
}

// History returns a copy of the history buffer, oldest first.
func (hub *Hub) History() []event.ActionRecord {
	result := make(chan []event.ActionRecord, 1)
	hub.opChan <- func(h *Hub) {
		var recs []event.ActionRecord
		if h.history != nil {
			h.history.Do(func(v any) {
				if v != nil {
					recs = append(recs, v.(event.ActionRecord))
				}
			})
		}
		result <- recs
	}
	return <-result
}

// Sync blocks until the msghub has processed its queue up to this point, useful for unit
// tests.
func (hub *Hub) Sync() {
	done := make(chan struct{})
	hub.opChan <- func(h *Hub) {
		close(done)
	}
	<-done
}
