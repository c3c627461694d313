package listener

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// entry is a single registered listener.
type entry struct {
	id          string
	typ         string // Empty unless registered by type or action creator.
	predicate   Predicate
	effect      Effect
	effectID    uintptr
	trigger     triggerKey
	when        Phase
	since       atomic.Uint64 // Dispatch sequence at registration; later dispatches only.
	removed     atomic.Bool
	unsubscribe Unsubscribe
}

// registry holds listeners in registration order.
type registry struct {
	sync.RWMutex
	entries  []*entry
	onChange func(n int) // Called with the new size after every change.
}

func newRegistry(onChange func(int)) *registry {
	return &registry{onChange: onChange}
}

// funcIdentity returns the address of the closure behind fn.  Copies of one func value
// share it; closures that capture variables get a new address each time they are created.
// A literal capturing nothing compiles to one static value, so it shares an address across
// every evaluation.
func funcIdentity[F any](fn F) uintptr {
	return *(*uintptr)(unsafe.Pointer(&fn))
}

func effectIdentity(fn Effect) uintptr {
	return funcIdentity(fn)
}

// add inserts e, unless a listener with the same effect and trigger exists, in which case
// that listener is returned instead.
func (r *registry) add(e *entry) *entry {
	r.Lock()
	if existing := r.lockedFind(func(o *entry) bool {
		return o.effectID == e.effectID && o.trigger == e.trigger
	}); existing != nil {
		r.Unlock()
		return existing
	}
	e.removed.Store(false)
	r.entries = append(r.entries, e)
	n := len(r.entries)
	r.Unlock()

	r.onChange(n)
	return e
}

// find returns the first entry accepted by fn.
func (r *registry) find(fn func(*entry) bool) *entry {
	r.RLock()
	defer r.RUnlock()

	return r.lockedFind(fn)
}

func (r *registry) lockedFind(fn func(*entry) bool) *entry {
	for _, e := range r.entries {
		if fn(e) {
			return e
		}
	}
	return nil
}

// remove deletes e, reporting whether it was registered.
func (r *registry) remove(e *entry) bool {
	r.Lock()
	removed := false
	for i, o := range r.entries {
		if o == e {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			removed = true
			break
		}
	}
	n := len(r.entries)
	r.Unlock()

	if !removed {
		return false
	}
	e.removed.Store(true)
	r.onChange(n)
	return true
}

// removeMatching deletes the listener registered for typ with the given effect.
func (r *registry) removeMatching(typ string, effect Effect) bool {
	id := effectIdentity(effect)
	e := r.find(func(o *entry) bool { return o.typ == typ && o.effectID == id })
	if e == nil {
		return false
	}
	return r.remove(e)
}

// clear deletes every listener.
func (r *registry) clear() {
	r.Lock()
	entries := r.entries
	r.entries = nil
	r.Unlock()

	for _, e := range entries {
		e.removed.Store(true)
	}
	r.onChange(0)
}

// snapshot returns the current listeners; the slice is not shared with the registry.
func (r *registry) snapshot() []*entry {
	r.RLock()
	defer r.RUnlock()

	return append([]*entry(nil), r.entries...)
}

func (r *registry) len() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.entries)
}
