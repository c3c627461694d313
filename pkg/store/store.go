// Package store implements a minimal action store: a single state value, a reducer that
// produces the next state for each dispatched action, a middleware chain wrapped around the
// reducer, and change subscribers.
package store

import (
	"sync"

	"github.com/listenkit/listenkit/pkg/action"
)

// Reducer computes the next state.  It must not mutate state; return a new value instead.
type Reducer func(state any, a action.Action) any

// DispatchFunc sends an action down the (remaining) middleware chain.
type DispatchFunc func(a action.Action) any

// API is the subset of the store handed to middleware.
type API interface {
	Dispatch(a action.Action) any
	GetState() any
}

// Middleware wraps the dispatch pipeline.  It is called once with the store API when the
// store is constructed, and the returned function is called once with the next dispatcher.
type Middleware func(api API) func(next DispatchFunc) DispatchFunc

type subscriber struct {
	fn func()
}

// Store holds application state.  It is safe for concurrent use; reducer calls are
// serialized.
type Store struct {
	mu          sync.RWMutex // Guards state.
	reduceMu    sync.Mutex   // Serializes reducer application.
	state       any
	reducer     Reducer
	dispatch    DispatchFunc
	subMu       sync.Mutex
	subscribers []*subscriber // Copy-on-write, ordered by registration.
}

// New creates a store with the given reducer and initial state, applying middleware in
// order: the first middleware sees each action first.
func New(reducer Reducer, initial any, middleware ...Middleware) *Store {
	if reducer == nil {
		reducer = func(state any, _ action.Action) any { return state }
	}
	s := &Store{state: initial, reducer: reducer}

	dispatch := DispatchFunc(s.reduce)
	for i := len(middleware) - 1; i >= 0; i-- {
		dispatch = middleware[i](s)(dispatch)
	}
	s.dispatch = dispatch

	return s
}

// Dispatch sends the action through the middleware chain and returns whatever the chain
// returns; without middleware that is the action itself.
func (s *Store) Dispatch(a action.Action) any {
	return s.dispatch(a)
}

// GetState returns the current state.
func (s *Store) GetState() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Subscribe registers fn to be called after every reducer run.  The returned func removes
// the registration and may be called more than once.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	sub := &subscriber{fn: fn}

	s.subMu.Lock()
	s.subscribers = append(s.subscribers[:len(s.subscribers):len(s.subscribers)], sub)
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		subs := make([]*subscriber, 0, len(s.subscribers))
		for _, q := range s.subscribers {
			if q != sub {
				subs = append(subs, q)
			}
		}
		s.subscribers = subs
	}
}

// reduce is the innermost dispatcher.
func (s *Store) reduce(a action.Action) any {
	s.reduceMu.Lock()
	s.mu.RLock()
	prev := s.state
	s.mu.RUnlock()
	next := s.reducer(prev, a)
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.reduceMu.Unlock()

	s.subMu.Lock()
	subs := s.subscribers
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn()
	}

	return a
}
