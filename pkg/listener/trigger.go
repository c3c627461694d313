package listener

import (
	"fmt"
	"unsafe"

	"github.com/listenkit/listenkit/pkg/action"
)

// Phase selects when a listener runs relative to the reducer.
type Phase string

const (
	BeforeReducer Phase = "beforeReducer"
	AfterReducer  Phase = "afterReducer"
	Both          Phase = "both"
)

// normalize applies the default phase.
func (p Phase) normalize() Phase {
	if p == "" {
		return AfterReducer
	}
	return p
}

// includes reports whether a listener registered for p runs during the current phase.
func (p Phase) includes(current Phase) bool {
	return p == Both || p == current
}

// Predicate decides whether a listener's effect runs.  current is the state at the time of
// evaluation, previous is the state before the dispatch began.
type Predicate func(a action.Action, current, previous any) bool

// Matches adapts an action matcher to a Predicate.
func Matches(m action.Matchable) Predicate {
	return func(a action.Action, _, _ any) bool {
		return m.Match(a)
	}
}

// Thunk adapts a function that inspects nothing but captured state to a Predicate.
func Thunk(fn func() bool) Predicate {
	return func(action.Action, any, any) bool {
		return fn()
	}
}

// TypedMatcher is an action creator: a matcher that also knows its action type.
type TypedMatcher interface {
	action.Matchable
	Type() string
}

type triggerKind int

const (
	kindNone triggerKind = iota
	kindType
	kindCreator
	kindMatcher
	kindPredicate
)

// Trigger selects the actions a listener reacts to.  Build one with OnType, OnAction,
// OnMatch or OnPredicate.
type Trigger struct {
	kind      triggerKind
	typ       string
	creator   TypedMatcher
	matcher   action.Matchable
	predicate Predicate
}

// OnType triggers on actions with exactly the given type.
func OnType(typ string) Trigger {
	return Trigger{kind: kindType, typ: typ}
}

// OnAction triggers on actions matched by an action creator.
func OnAction(creator TypedMatcher) Trigger {
	return Trigger{kind: kindCreator, creator: creator}
}

// OnMatch triggers on actions accepted by m.
func OnMatch(m action.Matchable) Trigger {
	return Trigger{kind: kindMatcher, matcher: m}
}

// OnPredicate triggers when p returns true.
func OnPredicate(p Predicate) Trigger {
	return Trigger{kind: kindPredicate, predicate: p}
}

// compile returns the uniform predicate for t, and the action type when one is known.
func (t Trigger) compile() (Predicate, string, error) {
	switch t.kind {
	case kindType:
		typ := t.typ
		return func(a action.Action, _, _ any) bool { return a.Type == typ }, typ, nil
	case kindCreator:
		if t.creator == nil {
			return nil, "", ErrMissingTrigger
		}
		return Matches(t.creator), t.creator.Type(), nil
	case kindMatcher:
		if t.matcher == nil {
			return nil, "", ErrMissingTrigger
		}
		return Matches(t.matcher), "", nil
	}
	if t.predicate == nil {
		return nil, "", ErrMissingTrigger
	}
	return t.predicate, "", nil
}

// triggerKey identifies a trigger for duplicate detection: by action type when there is one,
// otherwise by the identity of the matcher or predicate.
type triggerKey struct {
	typ string
	ref uintptr
}

func (t Trigger) key() triggerKey {
	switch t.kind {
	case kindType, kindCreator:
		return triggerKey{typ: t.actionType()}
	case kindMatcher:
		// Data word of the interface value.
		return triggerKey{ref: (*[2]uintptr)(unsafe.Pointer(&t.matcher))[1]}
	}
	return triggerKey{ref: funcIdentity(t.predicate)}
}

// actionType returns the type used to identify listeners for removal.
func (t Trigger) actionType() string {
	switch t.kind {
	case kindType:
		return t.typ
	case kindCreator:
		if t.creator != nil {
			return t.creator.Type()
		}
	}
	return ""
}

func (t Trigger) String() string {
	switch t.kind {
	case kindType:
		return fmt.Sprintf("type(%s)", t.typ)
	case kindCreator:
		return fmt.Sprintf("action(%s)", t.actionType())
	case kindMatcher:
		return "matcher"
	case kindPredicate:
		return "predicate"
	}
	return "none"
}
