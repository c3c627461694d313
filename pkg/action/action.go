// Package action defines the values that flow through a store's dispatch pipeline, along with
// action creators and matcher combinators used to select them.
package action

import (
	"fmt"
	"strings"
)

// Action is a plain description of something that happened.  Type identifies the action,
// everything else is optional.
type Action struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Error   bool   `json:"error,omitempty"`
}

// String formats the action for log output.
func (a Action) String() string {
	if a.Payload == nil {
		return a.Type
	}
	return fmt.Sprintf("%s(%v)", a.Type, a.Payload)
}

// Matchable is implemented by anything that can decide whether an action is of interest.
type Matchable interface {
	Match(a Action) bool
}

// Matcher is a standalone function implementing Matchable.
type Matcher func(a Action) bool

// Match calls m.
func (m Matcher) Match(a Action) bool {
	return m(a)
}

// Creator builds actions of a single type and matches them.
type Creator struct {
	typ string
}

// NewCreator returns a Creator for the named type.
func NewCreator(typ string) Creator {
	return Creator{typ: typ}
}

// Type returns the action type produced by this creator.
func (c Creator) Type() string {
	return c.typ
}

// New builds an action carrying payload.
func (c Creator) New(payload any) Action {
	return Action{Type: c.typ, Payload: payload}
}

// Match reports whether a was produced by this creator.
func (c Creator) Match(a Action) bool {
	return a.Type == c.typ
}

func (c Creator) String() string {
	return c.typ
}

// OfType matches actions with exactly the given type.
func OfType(typ string) Matcher {
	return func(a Action) bool {
		return a.Type == typ
	}
}

// IsAnyOf matches when at least one of the provided matchers matches.
func IsAnyOf(ms ...Matchable) Matcher {
	return func(a Action) bool {
		for _, m := range ms {
			if m.Match(a) {
				return true
			}
		}
		return false
	}
}

// IsAllOf matches when every provided matcher matches.  It matches everything when called
// without arguments.
func IsAllOf(ms ...Matchable) Matcher {
	return func(a Action) bool {
		for _, m := range ms {
			if !m.Match(a) {
				return false
			}
		}
		return true
	}
}

// Pattern matches action types against a pattern:
//   - "*" matches everything
//   - "todo/*" matches any type starting with "todo/"
//   - "todo/add" matches exactly "todo/add"
func Pattern(pattern string) Matcher {
	switch {
	case pattern == "*":
		return func(Action) bool { return true }
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "*")
		return func(a Action) bool {
			return strings.HasPrefix(a.Type, prefix)
		}
	default:
		return OfType(pattern)
	}
}
