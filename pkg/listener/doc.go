// Package listener provides a store middleware that runs side-effect listeners in response to
// dispatched actions.
//
// A listener pairs a Trigger (action type, action creator, matcher, or free-form predicate
// over the action and the current/previous state) with an Effect.  Listeners run before the
// reducer, after it, or both.  Each matching effect is started on its own goroutine and the
// dispatch waits only for the effect's synchronous portion: until the effect returns or
// reaches its first suspension point (API.Yield, API.Condition, API.Take, API.Delay).  Work
// after that point continues in the background while the store moves on.
//
// Basic usage:
//
//	mw, err := listener.New()
//	...
//	st := store.New(reducer, initial, mw.Middleware())
//	unsubscribe, err := mw.AddListener(listener.Registration{
//		Trigger: listener.OnType("todo/add"),
//		Effect: func(ctx context.Context, a action.Action, api *listener.API) error {
//			if api.Condition(ctx, listener.Matches(action.OfType("todo/save")), time.Second) {
//				api.Dispatch(action.Action{Type: "todo/saved"})
//			}
//			return nil
//		},
//	})
//
// Panics and errors from predicates and effects are isolated per listener and reported to the
// configured ErrorHandler; they never interrupt the dispatch.
package listener
