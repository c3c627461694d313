package luahost

import (
	"context"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
	lua "github.com/yuin/gopher-lua"
)

const listenerAPIName = "listener_api"

// apiHandle is the Lua view of a listener.API during one effect invocation.
type apiHandle struct {
	ctx context.Context
	api *listener.API
}

var listenerAPIMethods = map[string]lua.LGFunction{
	"condition":      apiCondition,
	"delay":          apiDelay,
	"dispatch":       apiDispatch,
	"id":             apiID,
	"original_state": apiOriginalState,
	"phase":          apiPhase,
	"state":          apiState,
	"take":           apiTake,
	"unsubscribe":    apiUnsubscribe,
}

func registerListenerAPIType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(listenerAPIName)
	ls.SetField(mt, "__index", ls.SetFuncs(ls.NewTable(), listenerAPIMethods))
}

func wrapListenerAPI(ls *lua.LState, h *apiHandle) *lua.LUserData {
	return wrapUserData(ls, listenerAPIName, h)
}

func checkListenerAPI(ls *lua.LState) *apiHandle {
	ud := ls.CheckUserData(1)
	if h, ok := ud.Value.(*apiHandle); ok {
		return h
	}
	ls.ArgError(1, listenerAPIName+" expected")
	return nil
}

// api:dispatch(type [, payload])
func apiDispatch(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	a, err := actionArgs(ls, 2)
	if err != nil {
		ls.RaiseError("dispatch: %v", err)
		return 0
	}
	h.api.Dispatch(a)
	return 0
}

func apiState(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	ls.Push(toLua(ls, h.api.GetState()))
	return 1
}

func apiOriginalState(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	ls.Push(toLua(ls, h.api.GetOriginalState()))
	return 1
}

func apiPhase(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	ls.Push(lua.LString(h.api.CurrentPhase()))
	return 1
}

func apiID(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	ls.Push(lua.LString(h.api.ListenerID()))
	return 1
}

func apiUnsubscribe(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	h.api.Unsubscribe()
	return 0
}

// api:condition(pattern [, timeout_ms]) returns true when a matching action arrives.
func apiCondition(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	pattern := ls.CheckString(2)
	timeout := millis(ls.OptNumber(3, 0))

	ok := h.api.Condition(h.ctx, listener.Matches(action.Pattern(pattern)), timeout)
	ls.Push(lua.LBool(ok))
	return 1
}

// api:take(pattern [, timeout_ms]) returns the matching action, or nil.
func apiTake(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	pattern := ls.CheckString(2)
	timeout := millis(ls.OptNumber(3, 0))

	taken, ok := h.api.Take(h.ctx, listener.Matches(action.Pattern(pattern)), timeout)
	if !ok {
		ls.Push(lua.LNil)
		return 1
	}
	ls.Push(actionTable(ls, taken.Action))
	return 1
}

// api:delay(ms) returns false if interrupted.
func apiDelay(ls *lua.LState) int {
	h := checkListenerAPI(ls)
	d := millis(ls.CheckNumber(2))

	ls.Push(lua.LBool(h.api.Delay(h.ctx, d) == nil))
	return 1
}

// actionArgs reads a (type, payload) pair or an action table starting at pos.
func actionArgs(ls *lua.LState, pos int) (action.Action, error) {
	if t, ok := ls.Get(pos).(*lua.LTable); ok {
		return actionFromTable(t)
	}
	typ := ls.CheckString(pos)
	payload, err := fromLua(ls.Get(pos + 1))
	if err != nil {
		return action.Action{}, err
	}
	return action.Action{Type: typ, Payload: payload}, nil
}

func actionFromTable(t *lua.LTable) (action.Action, error) {
	typ, ok := t.RawGetString("type").(lua.LString)
	if !ok || typ == "" {
		return action.Action{}, errMissingType
	}
	payload, err := fromLua(t.RawGetString("payload"))
	if err != nil {
		return action.Action{}, err
	}
	return action.Action{Type: string(typ), Payload: payload}, nil
}

func millis(n lua.LNumber) time.Duration {
	return time.Duration(float64(n) * float64(time.Millisecond))
}
