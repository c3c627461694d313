package extension_test

import (
	"sync"
	"testing"
	"time"

	"github.com/listenkit/listenkit/pkg/extension"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncBrokerEmitCallsMultipleListeners(t *testing.T) {
	broker := &extension.AsyncEventBroker[string]{}

	first := broker.AsyncTestListener("first", 1)
	second := broker.AsyncTestListener("second", 1)

	want := "hi"
	broker.Emit(&want)

	for _, wait := range []func() (*string, error){first, second} {
		got, err := wait()
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	}
	assert.Equal(t, 0, broker.Len(), "Test listeners should remove themselves")
}

func TestAsyncBrokerPreservesOrderPerListener(t *testing.T) {
	broker := &extension.AsyncEventBroker[int]{}
	const n = 200
	next := broker.AsyncTestListener("ordered", n)

	for i := 0; i < n; i++ {
		i := i
		broker.Emit(&i)
	}
	for want := 0; want < n; want++ {
		got, err := next()
		require.NoError(t, err)
		require.Equal(t, want, *got)
	}
}

func TestAsyncBrokerSlowListenerDoesNotBlock(t *testing.T) {
	broker := &extension.AsyncEventBroker[string]{}
	release := make(chan struct{})
	broker.AddListener("slow", func(string) { <-release })
	fast := broker.AsyncTestListener("fast", 2)
	defer close(release)

	a, b := "a", "b"
	broker.Emit(&a)
	broker.Emit(&b)

	got, err := fast()
	require.NoError(t, err)
	assert.Equal(t, "a", *got)
	got, err = fast()
	require.NoError(t, err)
	assert.Equal(t, "b", *got)
}

func TestAsyncBrokerAddingDuplicateNameReplacesPrevious(t *testing.T) {
	broker := &extension.AsyncEventBroker[string]{}

	first := broker.AsyncTestListener("dup", 1)
	second := broker.AsyncTestListener("dup", 1)

	want := "hi"
	broker.Emit(&want)

	firstGot, err := first()
	require.Error(t, err)
	assert.Nil(t, firstGot)

	secondGot, err := second()
	require.NoError(t, err)
	assert.Equal(t, want, *secondGot)
}

func TestAsyncBrokerRemoveListenerDropsQueued(t *testing.T) {
	broker := &extension.AsyncEventBroker[int]{}
	var mu sync.Mutex
	var got []int
	started := make(chan struct{})
	release := make(chan struct{})
	broker.AddListener("blocked", func(i int) {
		if i == 0 {
			close(started)
			<-release
		}
		mu.Lock()
		got = append(got, i)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		i := i
		broker.Emit(&i)
	}
	<-started
	broker.RemoveListener("blocked")
	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0}, got, "Queued events should be dropped after removal")
}

func TestAsyncBrokerSurvivesPanickingListener(t *testing.T) {
	broker := &extension.AsyncEventBroker[string]{}

	broker.AddListener("bad", func(string) { panic("oops") })
	good := broker.AsyncTestListener("good", 2)

	a, b := "a", "b"
	broker.Emit(&a)
	broker.Emit(&b)

	for _, want := range []string{"a", "b"} {
		got, err := good()
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	}
}
