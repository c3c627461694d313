package luahost_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/extension/event"
	"github.com/listenkit/listenkit/pkg/extension/luahost"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/state"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/listenkit/listenkit/pkg/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var consoleLogger = zerolog.New(zerolog.NewConsoleWriter())

// fixture holds a store with listener middleware for scripts to attach to.
type fixture struct {
	extHost *extension.Host
	mw      *listener.Middleware
	store   *store.Store
	errs    chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{extHost: extension.NewHost(), errs: make(chan error, 10)}
	mw, err := listener.New(listener.WithErrorHandler(func(err error, _ listener.ErrorInfo) {
		f.errs <- err
	}))
	require.NoError(t, err)
	f.mw = mw
	f.store = store.New(state.Reduce, state.KV{}, mw.Middleware())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mw.Close(ctx)
	})
	return f
}

func (f *fixture) load(t *testing.T, script string) *luahost.Host {
	t.Helper()
	h, err := luahost.NewFromReader(consoleLogger, f.extHost, f.mw,
		strings.NewReader(test.LuaInit+script), "test.lua")
	require.NoError(t, err)
	return h
}

func TestEmptyScript(t *testing.T) {
	f := newFixture(t)
	h := f.load(t, "")
	assert.Empty(t, h.Functions)
	assert.Empty(t, h.Listeners)
}

func TestLogger(t *testing.T) {
	script := `
		local logger = require("logger")
		logger.info("_test log entry_", {})
	`

	output := &strings.Builder{}
	_, err := luahost.NewFromReader(zerolog.New(output), extension.NewHost(), nil,
		strings.NewReader(script), "test.lua")
	require.NoError(t, err)

	assert.Contains(t, output.String(), "_test log entry_")
}

func TestSyntaxError(t *testing.T) {
	_, err := luahost.NewFromReader(consoleLogger, extension.NewHost(), nil,
		strings.NewReader("function ("), "test.lua")
	assert.Error(t, err)
}

func TestAfterAction(t *testing.T) {
	script := `
		async = true

		function listenkit.after.action(a)
			assert_eq(a.type, "kv/set")
			assert_eq(a.payload.key, "k")
			assert_eq(a.payload.value, 42)
			assert_eq(a.seq, 1)
			notify:send(test_ok)
		end
	`
	f := newFixture(t)
	h := f.load(t, script)
	assert.Equal(t, []string{"after.action"}, h.Functions)
	notify := h.CreateChannel("notify")

	_, err := f.extHost.Attach(f.mw)
	require.NoError(t, err)
	f.store.Dispatch(state.Set.New(map[string]any{"key": "k", "value": 42}))
	test.AssertNotified(t, notify)
}

func TestAfterListenerFailed(t *testing.T) {
	script := `
		async = true

		function listenkit.after.listener_failed(f)
			assert_eq(f.listener_id, "abc")
			assert_eq(f.raised_by, "effect")
			assert_eq(f.phase, "afterReducer")
			assert_eq(f.action_type, "x")
			assert_eq(f.error, "boom")
			notify:send(test_ok)
		end
	`
	f := newFixture(t)
	h := f.load(t, script)
	notify := h.CreateChannel("notify")

	f.extHost.Events.AfterListenerFailed.Emit(&event.ListenerFailure{
		ListenerID: "abc",
		RaisedBy:   "effect",
		Phase:      "afterReducer",
		ActionType: "x",
		Error:      "boom",
	})
	test.AssertNotified(t, notify)
}

func TestBeforeDispatch(t *testing.T) {
	script := `
		function listenkit.before.dispatch(a)
			if a.type == "secret/read" then
				return { reject = true, reason = "no secrets from " .. a.origin }
			elseif a.type == "blocked" then
				return false
			elseif a.type == "legacy/inc" then
				return { type = "kv/incr", payload = a.payload }
			end
			return nil
		end
	`
	f := newFixture(t)
	h := f.load(t, script)
	assert.Equal(t, []string{"before.dispatch"}, h.Functions)
	events := &f.extHost.Events.BeforeActionDispatched

	got := events.Emit(&event.InboundAction{Type: "kv/set", Origin: "test"})
	assert.Nil(t, got)

	got = events.Emit(&event.InboundAction{Type: "secret/read", Origin: "1.2.3.4"})
	require.NotNil(t, got)
	assert.True(t, got.Reject)
	assert.Equal(t, "no secrets from 1.2.3.4", got.Reason)

	got = events.Emit(&event.InboundAction{Type: "blocked"})
	require.NotNil(t, got)
	assert.True(t, got.Reject)

	got = events.Emit(&event.InboundAction{Type: "legacy/inc", Payload: "hits", Origin: "o"})
	require.NotNil(t, got)
	assert.False(t, got.Reject)
	assert.Equal(t, &event.InboundAction{Type: "kv/incr", Payload: "hits", Origin: "o"}, got.Action)
}

func TestListenerDispatches(t *testing.T) {
	script := `
		listenkit.on("counter/inc", function(a, api)
			assert_eq(api:phase(), "afterReducer")
			api:dispatch("kv/set", { key = "last", value = a.payload })
			api:dispatch({ type = "kv/incr", payload = "count" })
		end)
	`
	f := newFixture(t)
	h := f.load(t, script)
	assert.Equal(t, []string{"counter/inc@afterReducer"}, h.Listeners)
	assert.Equal(t, 1, f.mw.ListenerCount())

	f.store.Dispatch(action.Action{Type: "counter/inc", Payload: 5})
	kv := f.store.GetState().(state.KV)
	assert.Equal(t, float64(5), kv["last"])
	assert.Equal(t, 1, kv.Int("count"))
	assert.Empty(t, f.errs)
}

func TestListenerReadsState(t *testing.T) {
	script := `
		listenkit.on("check", function(a, api)
			local s = api:state()
			local prev = api:original_state()
			assert_eq(s.n, 3)
			assert_eq(prev.n, 3)
			notify:send(test_ok)
		end, "before")
	`
	f := newFixture(t)
	h := f.load(t, script)
	notify := h.CreateChannel("notify")

	f.store.Dispatch(state.Set.New(state.Entry{Key: "n", Value: 3}))
	f.store.Dispatch(action.Action{Type: "check"})
	test.AssertNotified(t, notify)
}

func TestListenerCondition(t *testing.T) {
	script := `
		listenkit.on("order/*", function(a, api)
			if a.type ~= "order/placed" then
				return
			end
			local reply = api:take("order/confirmed", 1000)
			assert_async(reply ~= nil, "expected confirmation")
			notify:send(reply.payload == a.payload)
		end)
	`
	f := newFixture(t)
	h := f.load(t, script)
	notify := h.CreateChannel("notify")

	f.store.Dispatch(action.Action{Type: "order/placed", Payload: "o-1"})
	f.store.Dispatch(action.Action{Type: "order/confirmed", Payload: "o-1"})
	test.AssertNotified(t, notify)
}

func TestListenerConditionTimeout(t *testing.T) {
	script := `
		listenkit.on("wait", function(a, api)
			notify:send(not api:condition("never", 20))
		end)
	`
	f := newFixture(t)
	h := f.load(t, script)
	notify := h.CreateChannel("notify")

	f.store.Dispatch(action.Action{Type: "wait"})
	test.AssertNotified(t, notify)
	assert.Equal(t, 1, f.mw.ListenerCount())
}

func TestListenerErrorIsReported(t *testing.T) {
	script := `
		listenkit.on("fail", function(a, api)
			error("lua listener failed")
		end)
	`
	f := newFixture(t)
	f.load(t, script)

	f.store.Dispatch(action.Action{Type: "fail"})
	select {
	case err := <-f.errs:
		assert.Contains(t, err.Error(), "lua listener failed")
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for listener error")
	}
}

func TestListenerUnsubscribe(t *testing.T) {
	script := `
		listenkit.on("once", function(a, api)
			api:unsubscribe()
			api:dispatch("kv/incr", "once")
		end)
	`
	f := newFixture(t)
	f.load(t, script)

	f.store.Dispatch(action.Action{Type: "once"})
	f.store.Dispatch(action.Action{Type: "once"})
	assert.Equal(t, 1, f.store.GetState().(state.KV).Int("once"))
	assert.Equal(t, 0, f.mw.ListenerCount())
}

func TestInvalidListenersReported(t *testing.T) {
	script := `
		listenkit.on("a", function() end, "sometimes")
		listenkit.on("b", function() end, "never")
		listenkit.on("c", function() end)
	`
	f := newFixture(t)
	_, err := luahost.NewFromReader(consoleLogger, f.extHost, f.mw,
		strings.NewReader(script), "test.lua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `listener 1 (a): invalid phase "sometimes"`)
	assert.Contains(t, err.Error(), `listener 2 (b): invalid phase "never"`)
	assert.Equal(t, 0, f.mw.ListenerCount(), "Valid listeners should be removed on failure")
}

func TestListenersRequireMiddleware(t *testing.T) {
	_, err := luahost.NewFromReader(consoleLogger, extension.NewHost(), nil,
		strings.NewReader(`listenkit.on("a", function() end)`), "test.lua")
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	h := f.load(t, `listenkit.on("a", function() end)`)
	assert.Equal(t, 1, f.mw.ListenerCount())

	h.Close()
	assert.Equal(t, 0, f.mw.ListenerCount())
}

func TestNewFromConfig(t *testing.T) {
	f := newFixture(t)

	h, err := luahost.New(config.Lua{}, f.extHost, f.mw)
	assert.NoError(t, err)
	assert.Nil(t, h)

	dir := t.TempDir()
	h, err = luahost.New(config.Lua{Path: filepath.Join(dir, "missing.lua")}, f.extHost, f.mw)
	assert.NoError(t, err)
	assert.Nil(t, h)

	_, err = luahost.New(config.Lua{Path: dir}, f.extHost, f.mw)
	assert.Error(t, err)

	path := filepath.Join(dir, "script.lua")
	require.NoError(t, os.WriteFile(path, []byte(`listenkit.on("a", function() end)`), 0o600))
	h, err = luahost.New(config.Lua{Path: path}, f.extHost, f.mw)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, []string{"a@afterReducer"}, h.Listeners)
}
