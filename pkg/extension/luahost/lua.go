package luahost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/config"
	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/listenkit/listenkit/pkg/extension/event"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

var errMissingType = errors.New("action type is required")

var phases = map[string]listener.Phase{
	"after":  listener.AfterReducer,
	"before": listener.BeforeReducer,
	"both":   listener.Both,
}

// Host of Lua extensions.
type Host struct {
	Functions    []string // Event functions detected in lua script.
	Listeners    []string // Store listeners declared with listenkit.on.
	extHost      *extension.Host
	pool         *statePool
	logContext   zerolog.Context
	unsubscribes []listener.Unsubscribe
}

// New constructs a new Lua Host, pre-compiling the source.  It returns nil when no script
// is configured or the script file does not exist.
func New(conf config.Lua, extHost *extension.Host, mw *listener.Middleware) (*Host, error) {
	scriptPath := conf.Path
	if scriptPath == "" {
		return nil, nil
	}

	logContext := log.With().Str("module", "lua")
	logger := logContext.Str("phase", "startup").Str("path", scriptPath).Logger()

	// Pre-load, parse, and compile script.
	if fi, err := os.Stat(scriptPath); err != nil {
		logger.Info().Msg("Script file not found")
		return nil, nil
	} else if fi.IsDir() {
		return nil, fmt.Errorf("lua script %v is a directory", scriptPath)
	}

	logger.Info().Msg("Loading script")
	file, err := os.Open(scriptPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return NewFromReader(logContext.Logger(), extHost, mw, bufio.NewReader(file), scriptPath)
}

// NewFromReader constructs a new Lua Host, loading Lua source from the provided reader.  The
// provided path is used in logging and error messages.  Listeners declared by the script are
// added to mw.
func NewFromReader(
	logger zerolog.Logger,
	extHost *extension.Host,
	mw *listener.Middleware,
	r io.Reader,
	path string,
) (*Host, error) {
	logContext := log.With().Str("module", "lua")

	// Pre-parse, and compile script.
	chunk, err := parse.Parse(r, path)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, err
	}

	// Build the pool and confirm LState is retrievable.
	pool := newStatePool(logger, proto)
	h := &Host{extHost: extHost, pool: pool, logContext: logContext}
	ls, err := pool.getState()
	if err != nil {
		return nil, err
	}
	defer pool.putState(ls)

	if err := h.wireFunctions(ls, mw); err != nil {
		h.Close()
		return nil, err
	}

	return h, nil
}

// CreateChannel creates a channel and places it into the named global variable in newly
// created LStates.
func (h *Host) CreateChannel(name string) chan lua.LValue {
	return h.pool.createChannel(name)
}

// Close removes the script's store listeners and releases pooled LStates.  Event listeners
// stay registered with the extension host.
func (h *Host) Close() {
	for _, u := range h.unsubscribes {
		u()
	}
	h.unsubscribes = nil
	h.pool.close()
}

// wireFunctions registers extension and store listeners for the functions the script set.
func (h *Host) wireFunctions(ls *lua.LState, mw *listener.Middleware) error {
	lk, err := getListenkit(ls)
	if err != nil {
		return err
	}

	logger := h.logContext.Str("phase", "startup").Logger()
	events := h.extHost.Events
	const listenerName = "lua"

	if lk.After.Action != nil {
		events.AfterActionDispatched.AddListener(listenerName, h.handleAfterAction)
		h.Functions = append(h.Functions, "after.action")
	}
	if lk.After.ListenerFailed != nil {
		events.AfterListenerFailed.AddListener(listenerName, h.handleAfterListenerFailed)
		h.Functions = append(h.Functions, "after.listener_failed")
	}
	if lk.Before.Dispatch != nil {
		events.BeforeActionDispatched.AddListener(listenerName, h.handleBeforeDispatch)
		h.Functions = append(h.Functions, "before.dispatch")
	}

	if len(lk.Listeners) > 0 && mw == nil {
		return errors.New("script declares store listeners but no middleware was provided")
	}
	var errs *multierror.Error
	for i, lf := range lk.Listeners {
		when, ok := phases[strings.ToLower(lf.When)]
		if !ok {
			errs = multierror.Append(errs,
				fmt.Errorf("listener %d (%s): invalid phase %q", i+1, lf.Trigger, lf.When))
			continue
		}
		trigger := listener.OnType(lf.Trigger)
		if strings.Contains(lf.Trigger, "*") {
			trigger = listener.OnMatch(action.Pattern(lf.Trigger))
		}
		unsubscribe, err := mw.AddListener(listener.Registration{
			Trigger: trigger,
			When:    when,
			Effect:  h.listenerEffect(i),
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("listener %d (%s): %w", i+1, lf.Trigger, err))
			continue
		}
		h.unsubscribes = append(h.unsubscribes, unsubscribe)
		h.Listeners = append(h.Listeners, fmt.Sprintf("%s@%s", lf.Trigger, when))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	logger.Debug().Strs("functions", h.Functions).Strs("listeners", h.Listeners).
		Msg("Wired Lua functions")
	return nil
}

// listenerEffect runs the script's index'th listenkit.on function in a pooled LState.
func (h *Host) listenerEffect(index int) listener.Effect {
	return func(ctx context.Context, a action.Action, api *listener.API) error {
		ls, err := h.pool.getState()
		if err != nil {
			return err
		}
		defer h.pool.putState(ls)

		lk, err := getListenkit(ls)
		if err != nil {
			return err
		}
		if index >= len(lk.Listeners) {
			return fmt.Errorf("lua listener %d no longer declared", index+1)
		}

		ls.SetContext(ctx)
		defer ls.RemoveContext()

		return ls.CallByParam(
			lua.P{Fn: lk.Listeners[index].Fn, NRet: 0, Protect: true},
			actionTable(ls, a),
			wrapListenerAPI(ls, &apiHandle{ctx: ctx, api: api}),
		)
	}
}

func (h *Host) handleAfterAction(rec event.ActionRecord) {
	logger, ls, lk, ok := h.prepareFuncCall("after.action")
	if !ok {
		return
	}
	defer h.pool.putState(ls)

	t := actionTable(ls, action.Action{Type: rec.Type, Payload: rec.Payload})
	t.RawSetString("seq", lua.LNumber(rec.Seq))
	t.RawSetString("time", lua.LNumber(rec.Time.Unix()))

	err := ls.CallByParam(lua.P{Fn: lk.After.Action, NRet: 0, Protect: true}, t)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
	}
}

func (h *Host) handleAfterListenerFailed(f event.ListenerFailure) {
	logger, ls, lk, ok := h.prepareFuncCall("after.listener_failed")
	if !ok {
		return
	}
	defer h.pool.putState(ls)

	t := ls.NewTable()
	t.RawSetString("listener_id", lua.LString(f.ListenerID))
	t.RawSetString("raised_by", lua.LString(f.RaisedBy))
	t.RawSetString("phase", lua.LString(f.Phase))
	t.RawSetString("action_type", lua.LString(f.ActionType))
	t.RawSetString("error", lua.LString(f.Error))

	err := ls.CallByParam(lua.P{Fn: lk.After.ListenerFailed, NRet: 0, Protect: true}, t)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
	}
}

// handleBeforeDispatch lets the script accept, reject or rewrite an inbound action.  The Lua
// function returns nil to accept, false or {reject = true, reason = "..."} to reject, or a
// table with a type to replace the action.
func (h *Host) handleBeforeDispatch(in event.InboundAction) *event.Verdict {
	logger, ls, lk, ok := h.prepareFuncCall("before.dispatch")
	if !ok {
		return nil
	}
	defer h.pool.putState(ls)

	t := actionTable(ls, action.Action{Type: in.Type, Payload: in.Payload})
	t.RawSetString("origin", lua.LString(in.Origin))

	err := ls.CallByParam(lua.P{Fn: lk.Before.Dispatch, NRet: 1, Protect: true}, t)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
		return nil
	}

	lval := ls.Get(-1)
	ls.Pop(1)
	logger.Debug().Str("type", in.Type).Str("verdict", lval.String()).Msg("Lua function returned")

	switch v := lval.(type) {
	case lua.LBool:
		if !bool(v) {
			return &event.Verdict{Reject: true, Reason: "rejected by script"}
		}
	case *lua.LTable:
		if lua.LVAsBool(v.RawGetString("reject")) {
			return &event.Verdict{Reject: true, Reason: lua.LVAsString(v.RawGetString("reason"))}
		}
		a, err := actionFromTable(v)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid replacement action from Lua")
			return nil
		}
		return &event.Verdict{Action: &event.InboundAction{
			Type:    a.Type,
			Payload: a.Payload,
			Origin:  in.Origin,
		}}
	}

	return nil
}

// prepareFuncCall returns a logger and an LState from the pool, with the listenkit global
// resolved.  When ok is false the state has already been returned to the pool.
func (h *Host) prepareFuncCall(funcName string) (
	logger zerolog.Logger, ls *lua.LState, lk *Listenkit, ok bool,
) {
	logger = h.logContext.Str("event", funcName).Logger()

	ls, err := h.pool.getState()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get Lua state instance from pool")
		return logger, nil, nil, false
	}

	lk, err = getListenkit(ls)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get listenkit global")
		h.pool.putState(ls)
		return logger, nil, nil, false
	}

	return logger, ls, lk, true
}
