package extension

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/extension/event"
	"github.com/listenkit/listenkit/pkg/listener"
)

// Host defines extension points for listenkit.
type Host struct {
	Events *Events
	seq    atomic.Uint64
}

// Events defines all the event types supported by the extension host.
//
// Before-events are processed synchronously, and the first listener to respond with a non-nil
// value determines the outcome; the remaining listeners are not called.
//
// After-events are processed asynchronously with respect to the dispatch that caused them.
type Events struct {
	AfterActionDispatched  AsyncEventBroker[event.ActionRecord]
	AfterListenerFailed    AsyncEventBroker[event.ListenerFailure]
	BeforeActionDispatched EventBroker[event.InboundAction, event.Verdict]
}

// Void indicates the event emitter will ignore any value returned by listeners.
type Void struct{}

// NewHost creates a new extension host.
func NewHost() *Host {
	return &Host{Events: &Events{}}
}

// Attach registers an after-reducer listener that emits AfterActionDispatched for every
// action reaching the reducer.
func (h *Host) Attach(mw *listener.Middleware) (listener.Unsubscribe, error) {
	return mw.AddListener(listener.Registration{
		Trigger: listener.OnMatch(action.Pattern("*")),
		When:    listener.AfterReducer,
		Effect:  h.record,
	})
}

// ErrorHandler returns a listener.ErrorHandler that emits AfterListenerFailed, then calls
// next if it is non-nil.
func (h *Host) ErrorHandler(next listener.ErrorHandler) listener.ErrorHandler {
	return func(err error, info listener.ErrorInfo) {
		h.Events.AfterListenerFailed.Emit(&event.ListenerFailure{
			ListenerID: info.ListenerID,
			RaisedBy:   string(info.RaisedBy),
			Phase:      string(info.Phase),
			ActionType: info.Action.Type,
			Error:      err.Error(),
		})
		if next != nil {
			next(err, info)
		}
	}
}

func (h *Host) record(_ context.Context, a action.Action, _ *listener.API) error {
	h.Events.AfterActionDispatched.Emit(&event.ActionRecord{
		Seq:     h.seq.Add(1),
		Type:    a.Type,
		Payload: a.Payload,
		Time:    time.Now(),
	})
	return nil
}
