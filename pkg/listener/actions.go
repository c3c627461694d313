package listener

import "github.com/listenkit/listenkit/pkg/action"

// Control action types.  The middleware consumes these; they never reach listeners or
// reducers.
const (
	AddType    = "listenerMiddleware/add"
	RemoveType = "listenerMiddleware/remove"
	ClearType  = "listenerMiddleware/removeAll"
)

// Removal is the payload of a remove control action.
type Removal struct {
	Trigger Trigger
	Effect  Effect
}

// AddListenerAction returns an action that registers a listener when dispatched.  Dispatch
// returns the Unsubscribe, or an error if the registration is invalid.
func AddListenerAction(reg Registration) action.Action {
	return action.Action{Type: AddType, Payload: reg}
}

// RemoveListenerAction returns an action that removes a listener when dispatched.  Dispatch
// returns a bool reporting whether a listener was removed.
func RemoveListenerAction(trigger Trigger, effect Effect) action.Action {
	return action.Action{Type: RemoveType, Payload: Removal{Trigger: trigger, Effect: effect}}
}

// ClearListenersAction returns an action that removes every listener when dispatched.
func ClearListenersAction() action.Action {
	return action.Action{Type: ClearType}
}
