package action_test

import (
	"testing"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/stretchr/testify/assert"
)

func TestCreator(t *testing.T) {
	inc := action.NewCreator("counter/increment")

	a := inc.New(2)
	assert.Equal(t, "counter/increment", a.Type)
	assert.Equal(t, 2, a.Payload)
	assert.True(t, inc.Match(a))
	assert.False(t, inc.Match(action.Action{Type: "counter/decrement"}))
	assert.Equal(t, "counter/increment", inc.Type())
}

func TestIsAnyOf(t *testing.T) {
	cancel := action.NewCreator("poll/cancel")
	remove := action.NewCreator("poll/remove")
	m := action.IsAnyOf(cancel, remove)

	assert.True(t, m(cancel.New(nil)))
	assert.True(t, m(remove.New(nil)))
	assert.False(t, m(action.Action{Type: "poll/start"}))
	assert.False(t, action.IsAnyOf()(cancel.New(nil)))
}

func TestIsAllOf(t *testing.T) {
	isTodo := action.Pattern("todo/*")
	isError := action.Matcher(func(a action.Action) bool { return a.Error })
	m := action.IsAllOf(isTodo, isError)

	assert.True(t, m(action.Action{Type: "todo/add", Error: true}))
	assert.False(t, m(action.Action{Type: "todo/add"}))
	assert.False(t, m(action.Action{Type: "kv/set", Error: true}))
	assert.True(t, action.IsAllOf()(action.Action{Type: "anything"}))
}

func TestPattern(t *testing.T) {
	testCases := []struct {
		pattern, typ string
		want         bool
	}{
		{"*", "kv/set", true},
		{"*", "", true},
		{"kv/*", "kv/set", true},
		{"kv/*", "kv", false},
		{"kv/*", "kvx/set", false},
		{"kv/set", "kv/set", true},
		{"kv/set", "kv/setx", false},
	}
	for _, tc := range testCases {
		t.Run(tc.pattern+" "+tc.typ, func(t *testing.T) {
			got := action.Pattern(tc.pattern)(action.Action{Type: tc.typ})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "kv/reset", action.Action{Type: "kv/reset"}.String())
	assert.Equal(t, "kv/incr(hits)", action.Action{Type: "kv/incr", Payload: "hits"}.String())
}
