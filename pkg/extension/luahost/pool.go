package luahost

import (
	"net/http"
	"sync"
	"time"

	"github.com/cjoudrey/gluahttp"
	"github.com/cosmotek/loguago"
	json "github.com/inbucket/gopher-json"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// maxIdleStates bounds the LStates kept for reuse; bursts of concurrent listener effects
// create more, which are closed when returned.
const maxIdleStates = 16

// statePool hands out LStates that have already run the compiled script.  Listener effects
// each hold a state for their whole run, so the pool grows with effect concurrency.
type statePool struct {
	sync.Mutex
	funcProto  *lua.FunctionProto         // Compiled lua.
	idle       []*lua.LState              // States ready for reuse, most recent last.
	generation map[*lua.LState]int        // Channel generation each live state was built for.
	current    int                        // Bumped by createChannel.
	channels   map[string]chan lua.LValue // Global interop channels.
	logger     zerolog.Logger             // Logger exported to Lua scripts.
	client     *http.Client               // Client for the Lua http module.
}

func newStatePool(logger zerolog.Logger, funcProto *lua.FunctionProto) *statePool {
	return &statePool{
		funcProto:  funcProto,
		generation: make(map[*lua.LState]int),
		channels:   make(map[string]chan lua.LValue),
		logger:     logger,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// build creates an LState with the native modules, channels and listenkit types, then runs
// the script in it.  Lock must be held.
func (lp *statePool) build() (*lua.LState, error) {
	ls := lua.NewState()
	ls.PreloadModule("http", gluahttp.NewHttpModule(lp.client).Loader)
	ls.PreloadModule("json", json.Loader)
	ls.PreloadModule("logger", loguago.NewLogger(lp.logger).Loader)
	for name, ch := range lp.channels {
		ls.SetGlobal(name, lua.LChannel(ch))
	}
	registerListenkitTypes(ls)
	registerListenerAPIType(ls)

	ls.Push(ls.NewFunctionFromProto(lp.funcProto))
	if err := ls.PCall(0, lua.MultRet, nil); err != nil {
		ls.Close()
		return nil, err
	}
	lp.generation[ls] = lp.current
	return ls, nil
}

// getState returns an idle LState, or builds a new one.
func (lp *statePool) getState() (*lua.LState, error) {
	lp.Lock()
	defer lp.Unlock()

	n := len(lp.idle)
	if n == 0 {
		return lp.build()
	}
	ls := lp.idle[n-1]
	lp.idle = lp.idle[:n-1]
	return ls, nil
}

// putState returns ls for reuse with an empty stack.  States that are closed, predate the
// latest createChannel, or exceed maxIdleStates are discarded.
func (lp *statePool) putState(ls *lua.LState) {
	lp.Lock()
	defer lp.Unlock()

	if ls.IsClosed() {
		delete(lp.generation, ls)
		return
	}
	if lp.generation[ls] != lp.current || len(lp.idle) >= maxIdleStates {
		lp.discard(ls)
		return
	}
	ls.Pop(ls.GetTop())
	lp.idle = append(lp.idle, ls)
}

// createChannel creates a channel that becomes a global variable in LStates built from now on.
// Existing states are closed as they become idle.
func (lp *statePool) createChannel(name string) chan lua.LValue {
	lp.Lock()
	defer lp.Unlock()

	ch := make(chan lua.LValue, 10)
	lp.channels[name] = ch
	lp.current++
	lp.flush()
	return ch
}

// close releases every idle LState.  States still checked out are closed when returned.
func (lp *statePool) close() {
	lp.Lock()
	defer lp.Unlock()

	lp.current++
	lp.flush()
}

// flush closes idle states.  Lock must be held.
func (lp *statePool) flush() {
	for _, ls := range lp.idle {
		lp.discard(ls)
	}
	lp.idle = nil
}

// discard closes ls and forgets it.  Lock must be held.
func (lp *statePool) discard(ls *lua.LState) {
	delete(lp.generation, ls)
	ls.Close()
}
