package listener

import (
	"fmt"
	"sync"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/rs/zerolog"
)

// task tracks the synchronous portion of one effect invocation.
type task struct {
	once   sync.Once
	parked chan struct{}
}

func newTask() *task {
	return &task{parked: make(chan struct{})}
}

// park releases the dispatch waiting on this effect.  Only the first call has any effect.
func (t *task) park() {
	t.once.Do(func() { close(t.parked) })
}

// matches evaluates the predicate, treating a panic as no match.
func (m *Middleware) matches(e *entry, a action.Action, current, original any, phase Phase) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			m.report(newPanicError(r), ErrorInfo{
				RaisedBy:   RaisedByPredicate,
				ListenerID: e.id,
				Phase:      phase,
				Action:     a,
			})
		}
	}()

	return e.predicate(a, current, original)
}

// report hands err to the ErrorHandler.  If the handler panics, the failure is delivered to
// the FaultHandler from a new goroutine so the caller is never disturbed.
func (m *Middleware) report(err error, info ErrorInfo) {
	m.opts.metrics.ListenerFailed(info.RaisedBy)
	defer func() {
		if r := recover(); r != nil {
			fault := fmt.Errorf("listener: error handler failed on %q: %w", err.Error(), newPanicError(r))
			onFault := m.opts.onFault
			time.AfterFunc(0, func() { onFault(fault) })
		}
	}()

	m.opts.onError(err, info)
}

// LogErrors returns the default ErrorHandler, which logs each error to logger.  Use it to keep
// logging when wrapping the handler.
func LogErrors(logger zerolog.Logger) ErrorHandler {
	return func(err error, info ErrorInfo) {
		logger.Error().Err(err).Str("raisedBy", string(info.RaisedBy)).
			Str("listener", info.ListenerID).Str("phase", string(info.Phase)).
			Str("action", info.Action.Type).Msg("Listener error")
	}
}

func (m *Middleware) logFault(err error) {
	m.logger.Error().Err(err).Msg("Listener error handler failed")
}
