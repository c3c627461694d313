package rules_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/rules"
	"github.com/listenkit/listenkit/pkg/state"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records the type of every action reaching the reducer.
type journal struct {
	sync.Mutex
	types []string
}

func (j *journal) middleware(api store.API) func(store.DispatchFunc) store.DispatchFunc {
	return func(next store.DispatchFunc) store.DispatchFunc {
		return func(a action.Action) any {
			j.Lock()
			j.types = append(j.types, a.Type)
			j.Unlock()
			return next(a)
		}
	}
}

func (j *journal) seen() []string {
	j.Lock()
	defer j.Unlock()
	return append([]string(nil), j.types...)
}

func setup(t *testing.T, rs []*rules.Rule) (*listener.Middleware, *store.Store, *journal) {
	t.Helper()
	mw, err := listener.New()
	require.NoError(t, err)

	j := &journal{}
	st := store.New(state.Reduce, state.KV{}, mw.Middleware(), j.middleware)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mw.Close(ctx)
	})

	_, err = rules.Register(mw, rs)
	require.NoError(t, err)
	return mw, st, j
}

func kv(st *store.Store) state.KV {
	return st.GetState().(state.KV)
}

func TestLoad(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "count-big-orders", rs[0].Name)
	assert.Equal(t, "confirm-order", rs[1].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := rules.Load("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseReportsEveryProblem(t *testing.T) {
	doc := `
rules:
  - name: no-trigger
    dispatch: [{type: x}]
  - name: bad-expr
    on: x
    if: "payload >"
    dispatch: [{type: y}]
  - on: x
    when: sometimes
    dispatch: [{type: y}]
  - name: stray-otherwise
    on: x
    otherwise: [{type: y}]
  - name: bad-timeout
    on: x
    await: {on: y, timeout: soon}
    dispatch: [{type: z}]
  - name: fine
    on: x
    dispatch: [{type: y}]
`
	_, err := rules.Parse([]byte(doc))
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "rule no-trigger: on is required")
	assert.Contains(t, err.Error(), "rule bad-expr: if:")
	assert.Contains(t, err.Error(), "rule #3:")
	assert.Contains(t, err.Error(), "rule stray-otherwise: otherwise requires await")
	assert.Contains(t, err.Error(), "rule bad-timeout: await: timeout:")
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := rules.Parse([]byte("rules: [unterminated"))
	assert.Error(t, err)
}

func TestConditionGatesDispatch(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)
	_, st, _ := setup(t, rs[:1])

	st.Dispatch(action.Action{Type: "order/placed", Payload: map[string]any{"total": 50}})
	assert.Equal(t, 0, kv(st).Int("big-orders"))

	st.Dispatch(action.Action{Type: "order/placed", Payload: map[string]any{"total": 150}})
	st.Dispatch(action.Action{Type: "order/placed", Payload: map[string]any{"total": 101.5}})
	assert.Equal(t, 2, kv(st).Int("big-orders"))
}

func TestConditionErrorIsFalse(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)
	_, st, j := setup(t, rs[:1])

	st.Dispatch(action.Action{Type: "order/placed", Payload: "not a map"})
	assert.Equal(t, []string{"order/placed"}, j.seen())
}

func TestAwaitReply(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)
	mw, st, _ := setup(t, rs[1:])

	st.Dispatch(action.Action{Type: "order/placed", Payload: map[string]any{"id": 7}})
	assert.Equal(t, 2, mw.ListenerCount())

	st.Dispatch(action.Action{Type: "order/confirmed", Payload: map[string]any{"id": 8, "by": "bob"}})
	st.Dispatch(action.Action{Type: "order/confirmed", Payload: map[string]any{"id": 7, "by": "alice"}})

	require.Eventually(t, func() bool {
		_, ok := kv(st).Get("confirmed-7")
		return ok
	}, time.Second, time.Millisecond)
	v, _ := kv(st).Get("confirmed-7")
	assert.Equal(t, "alice", v)
	assert.Eventually(t, func() bool { return mw.ListenerCount() == 1 }, time.Second, time.Millisecond)
}

func TestAwaitTimeout(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)

	mw, err := listener.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mw.Close(context.Background()) })
	expired := make(chan any, 1)
	st := store.New(state.Reduce, state.KV{}, mw.Middleware())
	_, err = mw.AddListener(listener.Registration{
		Trigger: listener.OnType("order/expired"),
		Effect: func(ctx context.Context, a action.Action, api *listener.API) error {
			expired <- a.Payload
			return nil
		},
	})
	require.NoError(t, err)
	_, err = rules.Register(mw, rs[1:])
	require.NoError(t, err)

	st.Dispatch(action.Action{Type: "order/placed", Payload: map[string]any{"id": 9}})
	select {
	case id := <-expired:
		assert.Equal(t, 9, id)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for order/expired")
	}
	assert.Empty(t, kv(st))
}

func TestRegisterRemoves(t *testing.T) {
	rs, err := rules.Load("testdata/orders.yaml")
	require.NoError(t, err)

	mw, err := listener.New()
	require.NoError(t, err)
	remove, err := rules.Register(mw, rs)
	require.NoError(t, err)
	assert.Equal(t, 2, mw.ListenerCount())

	remove()
	assert.Equal(t, 0, mw.ListenerCount())
}

func TestPhaseAndEscapes(t *testing.T) {
	r, err := rules.Compile(rules.Spec{
		Name: "escape",
		On:   "note/*",
		When: "Before",
		Dispatch: []rules.DispatchSpec{{
			Type:    "kv/set",
			Payload: map[string]any{"key": "note", "value": "==literal"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, listener.BeforeReducer, r.Registration().When)

	_, st, _ := setup(t, []*rules.Rule{r})
	st.Dispatch(action.Action{Type: "note/added"})
	v, ok := kv(st).Get("note")
	assert.True(t, ok)
	assert.Equal(t, "=literal", v)
}

func TestDefaultAwaitTimeout(t *testing.T) {
	doc := `
rules:
  - name: ping
    on: ping
    await:
      on: pong
    dispatch:
      - type: answered
    otherwise:
      - type: unanswered
`
	rs, err := rules.Parse([]byte(doc), rules.WithAwaitTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, st, j := setup(t, rs)

	st.Dispatch(action.Action{Type: "ping"})
	assert.Eventually(t, func() bool {
		seen := j.seen()
		return len(seen) == 2 && seen[1] == "unanswered"
	}, time.Second, time.Millisecond)
}
