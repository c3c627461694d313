package listener

import (
	"context"
	"sync"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/store"
)

// API is handed to every effect invocation.
type API struct {
	store    store.API
	m        *Middleware
	entry    *entry
	original any
	phase    Phase
	task     *task
}

// Taken describes the action that satisfied a Take.
type Taken struct {
	Action        action.Action
	State         any
	OriginalState any
}

// Dispatch sends an action through the whole store pipeline, including this middleware.
func (api *API) Dispatch(a action.Action) any {
	return api.store.Dispatch(a)
}

// GetState returns the current store state.
func (api *API) GetState() any {
	return api.store.GetState()
}

// GetOriginalState returns the state from before the dispatch that triggered this effect.
func (api *API) GetOriginalState() any {
	return api.original
}

// CurrentPhase reports whether the effect was started before or after the reducer.
func (api *API) CurrentPhase() Phase {
	return api.phase
}

// Extra returns the value configured with WithExtra.
func (api *API) Extra() any {
	return api.m.opts.extra
}

// ListenerID returns the id of the listener running this effect.
func (api *API) ListenerID() string {
	return api.entry.id
}

// Unsubscribe removes this listener.  The current invocation keeps running.
func (api *API) Unsubscribe() {
	api.entry.unsubscribe()
}

// Subscribe re-registers this listener after Unsubscribe.  It does nothing while the
// listener is registered.  Like a new listener, it only sees later dispatches.
func (api *API) Subscribe() {
	if api.entry.removed.Load() {
		api.entry.since.Store(api.m.seq.Load())
		api.m.registry.add(api.entry)
	}
}

// Yield ends the synchronous portion of the effect: the dispatch that started it carries on,
// and the effect continues in the background.  Call it before blocking on anything other
// than Condition, Take or Delay, which yield on their own.
func (api *API) Yield() {
	api.task.park()
}

// Condition waits until a future action satisfies predicate, returning true, or until
// timeout elapses or ctx is done, returning false.  A timeout of zero waits without limit.
func (api *API) Condition(ctx context.Context, predicate Predicate, timeout time.Duration) bool {
	_, ok := api.Take(ctx, predicate, timeout)
	return ok
}

// Take is Condition, additionally returning the matching action and the states it was
// evaluated against.
func (api *API) Take(ctx context.Context, predicate Predicate, timeout time.Duration) (Taken, bool) {
	return api.m.take(ctx, predicate, timeout, api.Yield)
}

// Delay yields and then sleeps for d, returning early with ctx's error when ctx is done or the
// middleware is closed.
func (api *API) Delay(ctx context.Context, d time.Duration) error {
	api.Yield()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-api.m.ctx.Done():
		return api.m.ctx.Err()
	}
}

// take registers a one-shot listener for predicate and waits for it to fire.  The listener
// is removed before take returns, whichever way the wait ends.
func (m *Middleware) take(
	ctx context.Context, predicate Predicate, timeout time.Duration, yield func(),
) (Taken, bool) {
	if predicate == nil {
		predicate = func(action.Action, any, any) bool { return false }
	}

	result := make(chan Taken, 1)
	var once sync.Once
	unsubscribe, err := m.AddListener(Registration{
		Trigger: OnPredicate(predicate),
		When:    Both,
		Effect: func(_ context.Context, a action.Action, api *API) error {
			api.Unsubscribe()
			once.Do(func() {
				result <- Taken{Action: a, State: api.GetState(), OriginalState: api.GetOriginalState()}
			})
			return nil
		},
	})
	yield()
	if err != nil {
		return Taken{}, false
	}
	defer unsubscribe()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case taken := <-result:
		return taken, true
	case <-expired:
	case <-ctx.Done():
	case <-m.ctx.Done():
	}
	return Taken{}, false
}
