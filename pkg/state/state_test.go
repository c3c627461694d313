package state_test

import (
	"testing"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/state"
	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s0 := state.KV{"a": 1}
	s1 := state.Reduce(s0, state.Set.New(state.Entry{Key: "b", Value: "x"})).(state.KV)
	assert.Equal(t, state.KV{"a": 1, "b": "x"}, s1)
	assert.Equal(t, state.KV{"a": 1}, s0, "Original state was mutated")

	s2 := state.Reduce(s1, state.Set.New(map[string]any{"a": 2, "c": true})).(state.KV)
	assert.Equal(t, state.KV{"a": 2, "b": "x", "c": true}, s2)

	s3 := state.Reduce(s2, state.Set.New(map[string]any{"key": "d", "value": 4})).(state.KV)
	assert.Equal(t, state.KV{"a": 2, "b": "x", "c": true, "d": 4}, s3)
}

func TestSetFromNil(t *testing.T) {
	got := state.Reduce(nil, state.Set.New(state.Entry{Key: "k", Value: 1}))
	assert.Equal(t, state.KV{"k": 1}, got)
}

func TestDelete(t *testing.T) {
	s0 := state.KV{"a": 1, "b": 2, "c": 3}
	s1 := state.Reduce(s0, state.Delete.New("a")).(state.KV)
	assert.Equal(t, state.KV{"b": 2, "c": 3}, s1)

	s2 := state.Reduce(s1, state.Delete.New([]any{"b", "c"})).(state.KV)
	assert.Empty(t, s2)
}

func TestDeleteMissingKeepsState(t *testing.T) {
	s0 := state.KV{"a": 1}
	s1 := state.Reduce(s0, state.Delete.New("z")).(state.KV)
	s1["probe"] = true
	assert.Contains(t, s0, "probe", "Expected the same map back")
}

func TestIncr(t *testing.T) {
	tests := []struct {
		name    string
		initial state.KV
		payload any
		want    int64
	}{
		{"missing key", state.KV{}, "n", 1},
		{"int value", state.KV{"n": 4}, "n", 5},
		{"json number", state.KV{"n": float64(4)}, "n", 5},
		{"string number", state.KV{"n": "7"}, "n", 8},
		{"entry amount", state.KV{"n": 1}, state.Entry{Key: "n", Value: -3}, -2},
		{"map amount", state.KV{"n": 1}, map[string]any{"key": "n", "by": float64(10)}, 11},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := state.Reduce(tc.initial, state.Incr.New(tc.payload)).(state.KV)
			assert.Equal(t, tc.want, got["n"])
		})
	}
}

func TestMalformedLeavesState(t *testing.T) {
	s0 := state.KV{"n": "not a number"}
	tests := []action.Action{
		state.Incr.New("n"),
		state.Incr.New(map[string]any{"by": 1}),
		state.Set.New(42),
		state.Delete.New(struct{}{}),
	}
	for _, a := range tests {
		assert.Equal(t, s0, state.Reduce(s0, a), a.String())
	}
}

func TestResetAndUnknown(t *testing.T) {
	s0 := state.KV{"a": 1}
	assert.Equal(t, state.KV{"a": 1}, state.Reduce(s0, action.Action{Type: "other"}))
	assert.Equal(t, state.KV{}, state.Reduce(s0, state.Reset.New(nil)))
}

func TestAccessors(t *testing.T) {
	kv := state.KV{"b": "2", "a": 1}
	assert.Equal(t, []string{"a", "b"}, kv.Keys())
	assert.Equal(t, 2, kv.Int("b"))
	assert.Equal(t, 0, kv.Int("missing"))
	v, ok := kv.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
