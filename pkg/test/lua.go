// Package test holds helpers shared by listenkit tests.
package test

import (
	"strings"
	"testing"
	"time"

	"github.com/cosmotek/loguago"
	luajson "github.com/inbucket/gopher-json"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// LuaInit holds useful test globals.
const LuaInit = `
	local logger = require("logger")

	async = false
	test_ok = true

	-- With async: marks tests as failed via test_ok, logs error.
	-- Without async: raises an error when a check fails.
	function assert_async(value, message)
		if not value then
			if async then
				logger.error(message, {from = "assert_async"})
				test_ok = false
			else
				error(message)
			end
		end
	end

	-- Verifies plain values, list-style tables and keyed tables.
	function assert_eq(got, want)
		if type(got) == "table" and type(want) == "table" then
			for k, wantv in pairs(want) do
				assert_eq(got[k], wantv)
			end
			for k, _ in pairs(got) do
				assert_async(want[k] ~= nil, string.format("unexpected key %q", tostring(k)))
			end
			return
		end

		assert_async(got == want, string.format("got %q, wanted %q", tostring(got), tostring(want)))
	end

	-- Verifies string got contains string want.
	function assert_contains(got, want)
		assert_async(string.find(got, want, 1, true),
			string.format("got %q, wanted it to contain %q", got, want))
	end
`

// NewLuaState creates a new Lua LState with the logger and json modules, initialized with the
// test helpers in `LuaInit`.
//
// Returns a pointer to the created LState and a string builder to hold the log output.
func NewLuaState() (*lua.LState, *strings.Builder) {
	output := &strings.Builder{}
	logger := loguago.NewLogger(zerolog.New(output))

	ls := lua.NewState()
	ls.PreloadModule("logger", logger.Loader)
	ls.PreloadModule("json", luajson.Loader)
	if err := ls.DoString(LuaInit); err != nil {
		panic(err)
	}

	return ls, output
}

// AssertNotified requires a truthy LValue on the notify channel.
func AssertNotified(t *testing.T, notify chan lua.LValue) {
	t.Helper()
	select {
	case reslv := <-notify:
		// Lua function received event.
		if lua.LVIsFalse(reslv) {
			t.Error("Lua responded with false, wanted true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Lua did not respond to event within timeout")
	}
}
