package luahost

import (
	"encoding/json"

	luajson "github.com/inbucket/gopher-json"
	"github.com/listenkit/listenkit/pkg/action"
	lua "github.com/yuin/gopher-lua"
)

// toLua converts a Go value to Lua through its JSON representation.  Values that cannot be
// represented become nil.
func toLua(ls *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return lua.LNil
	}
	lv, err := luajson.Decode(ls, data)
	if err != nil {
		return lua.LNil
	}
	return lv
}

// fromLua converts a Lua value to plain Go values: nil, bool, float64, string, []any and
// map[string]any.
func fromLua(lv lua.LValue) (any, error) {
	if lv == lua.LNil {
		return nil, nil
	}
	data, err := luajson.Encode(lv)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// actionTable builds the Lua view of an action.
func actionTable(ls *lua.LState, a action.Action) *lua.LTable {
	t := ls.NewTable()
	t.RawSetString("type", lua.LString(a.Type))
	t.RawSetString("payload", toLua(ls, a.Payload))
	if a.Meta != nil {
		t.RawSetString("meta", toLua(ls, a.Meta))
	}
	if a.Error {
		t.RawSetString("error", lua.LTrue)
	}
	return t
}
