package test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuaHelpers(t *testing.T) {
	ls, _ := NewLuaState()
	defer ls.Close()

	require.NoError(t, ls.DoString(`
		assert_eq(1, 1)
		assert_eq({1, 2}, {1, 2})
		assert_eq({a = "x", b = {c = true}}, {a = "x", b = {c = true}})
		assert_contains("hello, world", "o, w")
		local json = require("json")
		assert_eq(json.decode('{"n": 2}').n, 2)
	`))

	assert.Error(t, ls.DoString(`assert_eq({1, 2}, {1})`))
	assert.Error(t, ls.DoString(`assert_eq({a = 1}, {a = 2})`))
	assert.Error(t, ls.DoString(`assert_contains("abc", "x")`))
}

func TestLuaAsyncFailure(t *testing.T) {
	ls, output := NewLuaState()
	defer ls.Close()

	require.NoError(t, ls.DoString(`
		async = true
		assert_eq("got", "want")
	`))
	assert.Equal(t, "false", ls.GetGlobal("test_ok").String())
	assert.Contains(t, output.String(), "assert_async")
}
