package listener

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/rs/zerolog"
)

// Effect is run when a listener's trigger matches.  ctx is canceled when the middleware is
// closed.  A returned error is reported to the ErrorHandler.
type Effect func(ctx context.Context, a action.Action, api *API) error

// Unsubscribe removes a listener.  Calling it more than once is harmless.
type Unsubscribe func()

// Registration describes a listener to add.
type Registration struct {
	Trigger Trigger
	Effect  Effect
	When    Phase // Defaults to AfterReducer.
}

// Middleware runs listeners around the reducer.  Install it with store.New(...,
// mw.Middleware()), usually ahead of other middleware.
type Middleware struct {
	registry *registry
	opts     *options
	logger   zerolog.Logger
	seq      atomic.Uint64 // Dispatches swept so far.
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup // In-flight effects.
	closeMu  sync.RWMutex   // Orders effect starts against Close.
	closed   atomic.Bool
}

// New creates a listener middleware.
func New(opts ...Option) (*Middleware, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.onErrorSet && o.onError == nil {
		return nil, ErrNilErrorHandler
	}

	m := &Middleware{opts: o, logger: o.logger}
	if o.onError == nil {
		o.onError = LogErrors(m.logger)
	}
	if o.onFault == nil {
		o.onFault = m.logFault
	}
	m.registry = newRegistry(o.metrics.ListenerCount)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	return m, nil
}

// Middleware returns the store middleware function.
func (m *Middleware) Middleware() store.Middleware {
	return func(api store.API) func(store.DispatchFunc) store.DispatchFunc {
		return func(next store.DispatchFunc) store.DispatchFunc {
			return func(a action.Action) any {
				return m.dispatch(api, next, a)
			}
		}
	}
}

func (m *Middleware) dispatch(api store.API, next store.DispatchFunc, a action.Action) any {
	switch a.Type {
	case AddType:
		return m.handleAdd(a)
	case RemoveType:
		return m.handleRemove(a)
	case ClearType:
		m.ClearListeners()
		return nil
	}

	if m.registry.len() == 0 || m.closed.Load() {
		return next(a)
	}

	seq := m.seq.Add(1)
	m.opts.metrics.ActionSwept(a.Type)
	original := api.GetState()
	m.sweep(api, a, original, BeforeReducer, seq)
	result := next(a)
	m.sweep(api, a, original, AfterReducer, seq)

	return result
}

// sweep evaluates every listener registered for phase, starting the matching effects.
func (m *Middleware) sweep(api store.API, a action.Action, original any, phase Phase, seq uint64) {
	for _, e := range m.registry.snapshot() {
		if !e.when.includes(phase) || e.since.Load() >= seq || e.removed.Load() {
			continue
		}
		if m.matches(e, a, api.GetState(), original, phase) {
			m.notify(api, e, a, original, phase)
		}
	}
}

// notify starts the effect and waits for its synchronous portion to finish.
func (m *Middleware) notify(api store.API, e *entry, a action.Action, original any, phase Phase) {
	m.closeMu.RLock()
	if m.closed.Load() {
		m.closeMu.RUnlock()
		return
	}
	m.wg.Add(1)
	m.closeMu.RUnlock()

	t := newTask()
	lapi := &API{store: api, m: m, entry: e, original: original, phase: phase, task: t}
	info := ErrorInfo{RaisedBy: RaisedByEffect, ListenerID: e.id, Phase: phase, Action: a}

	m.opts.metrics.EffectStarted(phase)
	go func() {
		defer m.wg.Done()
		defer t.park()
		defer func() {
			if r := recover(); r != nil {
				m.report(newPanicError(r), info)
			}
		}()

		if err := e.effect(m.ctx, a, lapi); err != nil {
			m.report(err, info)
		}
	}()

	<-t.parked
}

// AddListener registers a listener and returns the func that removes it.  Registering an
// effect that is already registered with the same trigger returns the existing listener's
// Unsubscribe.
func (m *Middleware) AddListener(reg Registration) (Unsubscribe, error) {
	if reg.Effect == nil {
		return nil, ErrMissingEffect
	}
	predicate, typ, err := reg.Trigger.compile()
	if err != nil {
		return nil, err
	}
	if m.closed.Load() {
		return nil, ErrClosed
	}

	e := &entry{
		id:        uuid.NewString(),
		typ:       typ,
		predicate: predicate,
		effect:    reg.Effect,
		effectID:  effectIdentity(reg.Effect),
		trigger:   reg.Trigger.key(),
		when:      reg.When.normalize(),
	}
	e.since.Store(m.seq.Load())
	e.unsubscribe = func() {
		if m.registry.remove(e) {
			m.logger.Debug().Str("listener", e.id).Msg("Listener removed")
		}
	}

	added := m.registry.add(e)
	if added == e {
		m.logger.Debug().Str("listener", e.id).Stringer("trigger", reg.Trigger).
			Str("when", string(e.when)).Msg("Listener added")
	}

	return added.unsubscribe, nil
}

// RemoveListener removes the listener registered with the given type or action creator
// trigger and effect.  Listeners registered with a matcher or predicate have no type and are
// found by effect alone when trigger has no type either.
func (m *Middleware) RemoveListener(trigger Trigger, effect Effect) bool {
	if effect == nil {
		return false
	}
	return m.registry.removeMatching(trigger.actionType(), effect)
}

// ClearListeners removes every listener.  Effects already running are not interrupted.
func (m *Middleware) ClearListeners() {
	m.registry.clear()
	m.logger.Debug().Msg("Listeners cleared")
}

// ListenerCount returns the number of registered listeners.
func (m *Middleware) ListenerCount() int {
	return m.registry.len()
}

// Close cancels the context passed to effects, causing pending waits to give up, and then
// waits for running effects until ctx is done.  No listeners can be added afterward.
func (m *Middleware) Close(ctx context.Context) error {
	m.closeMu.Lock()
	if !m.closed.CompareAndSwap(false, true) {
		m.closeMu.Unlock()
		return nil
	}
	m.closeMu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

func (m *Middleware) handleAdd(a action.Action) any {
	var reg Registration
	switch p := a.Payload.(type) {
	case Registration:
		reg = p
	case *Registration:
		if p == nil {
			return ErrInvalidPayload
		}
		reg = *p
	default:
		return ErrInvalidPayload
	}

	unsubscribe, err := m.AddListener(reg)
	if err != nil {
		return err
	}
	return unsubscribe
}

func (m *Middleware) handleRemove(a action.Action) any {
	switch r := a.Payload.(type) {
	case Removal:
		return m.RemoveListener(r.Trigger, r.Effect)
	case *Removal:
		if r == nil {
			return false
		}
		return m.RemoveListener(r.Trigger, r.Effect)
	}
	return false
}
