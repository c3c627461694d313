package luahost

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

const (
	listenkitName       = "listenkit"
	listenkitAfterName  = "listenkit_after"
	listenkitBeforeName = "listenkit_before"
)

// Listenkit is the Go side of the listenkit global.
type Listenkit struct {
	After     AfterFuncs
	Before    BeforeFuncs
	Listeners []ListenerFunc // Registered with listenkit.on, in order.
}

// AfterFuncs holds the listenkit.after event handlers.
type AfterFuncs struct {
	Action         *lua.LFunction
	ListenerFailed *lua.LFunction
}

// BeforeFuncs holds the listenkit.before event handlers.
type BeforeFuncs struct {
	Dispatch *lua.LFunction
}

// ListenerFunc is a store listener declared by the script.
type ListenerFunc struct {
	Trigger string // Action type or pattern.
	When    string
	Fn      *lua.LFunction
}

func registerListenkitTypes(ls *lua.LState) {
	// listenkit type.
	mt := ls.NewTypeMetatable(listenkitName)
	ls.SetField(mt, "__index", ls.NewFunction(listenkitIndex))

	// listenkit.after type.
	mt = ls.NewTypeMetatable(listenkitAfterName)
	ls.SetField(mt, "__index", ls.NewFunction(listenkitAfterIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(listenkitAfterNewIndex))

	// listenkit.before type.
	mt = ls.NewTypeMetatable(listenkitBeforeName)
	ls.SetField(mt, "__index", ls.NewFunction(listenkitBeforeIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(listenkitBeforeNewIndex))

	// listenkit global.
	ud := ls.NewUserData()
	ud.Value = &Listenkit{}
	ls.SetMetatable(ud, ls.GetTypeMetatable(listenkitName))
	ls.SetGlobal(listenkitName, ud)
}

func wrapUserData(ls *lua.LState, typeName string, val any) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = val
	ls.SetMetatable(ud, ls.GetTypeMetatable(typeName))

	return ud
}

func getListenkit(ls *lua.LState) (*Listenkit, error) {
	lv := ls.GetGlobal(listenkitName)
	if lv == nil {
		return nil, errors.New("listenkit object was nil")
	}

	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, fmt.Errorf("listenkit object was type %s instead of UserData", lv.Type())
	}

	val, ok := ud.Value.(*Listenkit)
	if !ok {
		return nil, fmt.Errorf("listenkit object (%v) could not be cast", ud.Value)
	}

	return val, nil
}

func checkListenkit(ls *lua.LState, pos int) *Listenkit {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*Listenkit); ok {
		return val
	}
	ls.ArgError(pos, listenkitName+" expected")
	return nil
}

func checkAfterFuncs(ls *lua.LState, pos int) *AfterFuncs {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*AfterFuncs); ok {
		return val
	}
	ls.ArgError(pos, listenkitAfterName+" expected")
	return nil
}

func checkBeforeFuncs(ls *lua.LState, pos int) *BeforeFuncs {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*BeforeFuncs); ok {
		return val
	}
	ls.ArgError(pos, listenkitBeforeName+" expected")
	return nil
}

// listenkit getter.
func listenkitIndex(ls *lua.LState) int {
	lk := checkListenkit(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "after":
		ls.Push(wrapUserData(ls, listenkitAfterName, &lk.After))
	case "before":
		ls.Push(wrapUserData(ls, listenkitBeforeName, &lk.Before))
	case "on":
		ls.Push(ls.NewFunction(func(ls *lua.LState) int {
			return listenkitOn(ls, lk)
		}))
	default:
		// Unknown field.
		ls.Push(lua.LNil)
	}

	return 1
}

// listenkit.on(trigger, fn [, when]) declares a store listener.
func listenkitOn(ls *lua.LState, lk *Listenkit) int {
	trigger := ls.CheckString(1)
	fn := ls.CheckFunction(2)
	when := ls.OptString(3, "after")
	if trigger == "" {
		ls.ArgError(1, "trigger must not be empty")
	}

	lk.Listeners = append(lk.Listeners, ListenerFunc{Trigger: trigger, When: when, Fn: fn})
	ls.Push(lua.LNumber(len(lk.Listeners)))

	return 1
}

// listenkit.after getter.
func listenkitAfterIndex(ls *lua.LState) int {
	after := checkAfterFuncs(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "action":
		ls.Push(funcOrNil(after.Action))
	case "listener_failed":
		ls.Push(funcOrNil(after.ListenerFailed))
	default:
		// Unknown field.
		ls.Push(lua.LNil)
	}

	return 1
}

// listenkit.after setter.
func listenkitAfterNewIndex(ls *lua.LState) int {
	after := checkAfterFuncs(ls, 1)
	index := ls.CheckString(2)

	switch index {
	case "action":
		after.Action = ls.CheckFunction(3)
	case "listener_failed":
		after.ListenerFailed = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid listenkit.after index %q", index)
	}

	return 0
}

// listenkit.before getter.
func listenkitBeforeIndex(ls *lua.LState) int {
	before := checkBeforeFuncs(ls, 1)
	field := ls.CheckString(2)

	switch field {
	case "dispatch":
		ls.Push(funcOrNil(before.Dispatch))
	default:
		// Unknown field.
		ls.Push(lua.LNil)
	}

	return 1
}

// listenkit.before setter.
func listenkitBeforeNewIndex(ls *lua.LState) int {
	before := checkBeforeFuncs(ls, 1)
	index := ls.CheckString(2)

	switch index {
	case "dispatch":
		before.Dispatch = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid listenkit.before index %q", index)
	}

	return 0
}

func funcOrNil(f *lua.LFunction) lua.LValue {
	if f == nil {
		return lua.LNil
	}

	return f
}
