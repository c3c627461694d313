package listener_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/listenkit/listenkit/pkg/store"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Value int
}

var (
	inc = action.NewCreator("inc")
	dec = action.NewCreator("dec")
)

// counterReducer returns a new state for inc/dec and the same pointer otherwise.
func counterReducer(state any, a action.Action) any {
	s := state.(*counterState)
	switch {
	case inc.Match(a):
		return &counterState{Value: s.Value + 1}
	case dec.Match(a):
		return &counterState{Value: s.Value - 1}
	}
	return s
}

// errorRecorder collects errors passed to an ErrorHandler.
type errorRecorder struct {
	sync.Mutex
	errs  []error
	infos []listener.ErrorInfo
}

func (r *errorRecorder) handle(err error, info listener.ErrorInfo) {
	r.Lock()
	defer r.Unlock()
	r.errs = append(r.errs, err)
	r.infos = append(r.infos, info)
}

func (r *errorRecorder) count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.errs)
}

func (r *errorRecorder) get(i int) (error, listener.ErrorInfo) {
	r.Lock()
	defer r.Unlock()
	return r.errs[i], r.infos[i]
}

// setup creates a listener middleware wired into a counter store.
func setup(t *testing.T, opts ...listener.Option) (*listener.Middleware, *store.Store, *errorRecorder) {
	t.Helper()
	rec := &errorRecorder{}
	opts = append([]listener.Option{listener.WithErrorHandler(rec.handle)}, opts...)
	mw, err := listener.New(opts...)
	require.NoError(t, err)
	st := store.New(counterReducer, &counterState{}, mw.Middleware())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mw.Close(ctx)
	})
	return mw, st, rec
}

// receive waits for a value on ch or fails the test.
func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for value")
	}
	var zero T
	return zero
}

func timeoutContext(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
