package extension

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// namedList is an ordered list of uniquely named listener funcs.
type namedList[F any] struct {
	mu    sync.RWMutex
	names []string
	funcs []F
}

// add appends fn under name, replacing and returning any listener previously using name.
func (nl *namedList[F]) add(name string, fn F) (replaced F, ok bool) {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	replaced, ok = nl.lockedRemove(name)
	nl.names = append(nl.names, name)
	nl.funcs = append(nl.funcs, fn)
	return replaced, ok
}

func (nl *namedList[F]) remove(name string) (F, bool) {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	return nl.lockedRemove(name)
}

func (nl *namedList[F]) lockedRemove(name string) (removed F, ok bool) {
	i := slices.Index(nl.names, name)
	if i < 0 {
		return removed, false
	}
	removed = nl.funcs[i]
	nl.names = slices.Delete(nl.names, i, i+1)
	nl.funcs = slices.Delete(nl.funcs, i, i+1)
	return removed, true
}

func (nl *namedList[F]) len() int {
	nl.mu.RLock()
	defer nl.mu.RUnlock()

	return len(nl.names)
}

// each calls fn for every listener in order while holding the read lock, stopping early when
// fn returns false.
func (nl *namedList[F]) each(fn func(name string, f F) bool) {
	nl.mu.RLock()
	defer nl.mu.RUnlock()

	for i, f := range nl.funcs {
		if !fn(nl.names[i], f) {
			return
		}
	}
}

// EventBroker maintains an ordered list of named listeners for a single kind of event.  It is
// used for before-events, where listeners may influence what happens next.
type EventBroker[E any, R any] struct {
	listeners namedList[func(E) *R]
}

// Emit sends the provided event to each registered listener in order, until one returns a
// non-nil result.  That result will be returned to the caller.  A panicking listener is
// logged and skipped.
func (eb *EventBroker[E, R]) Emit(event *E) (result *R) {
	eb.listeners.each(func(name string, l func(E) *R) bool {
		// Each listener gets its own copy of the event.
		result = guard(name, l, *event)
		return result == nil
	})
	return result
}

// AddListener registers the named listener, replacing one with a duplicate name if present.
// Listeners should be added in order of priority, most significant first.
func (eb *EventBroker[E, R]) AddListener(name string, listener func(E) *R) {
	eb.listeners.add(name, listener)
}

// RemoveListener unregisters the named listener.
func (eb *EventBroker[E, R]) RemoveListener(name string) {
	eb.listeners.remove(name)
}

// Len returns the number of listeners.
func (eb *EventBroker[E, R]) Len() int {
	return eb.listeners.len()
}

func guard[E any, R any](name string, l func(E) *R, event E) (result *R) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "extension").Str("listener", name).
				Interface("panic", r).Msg("Event listener panicked")
			result = nil
		}
	}()

	return l(event)
}
