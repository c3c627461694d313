// Package event defines the values passed to extension event listeners.
package event

import "time"

// ActionRecord describes an action after the reducer has run.
type ActionRecord struct {
	Seq     uint64
	Type    string
	Payload any
	Time    time.Time
}

// InboundAction is an action submitted from outside the process, before it is dispatched.
type InboundAction struct {
	Type    string
	Payload any
	Origin  string // Remote address or other source description.
}

// Verdict is returned by BeforeActionDispatched listeners to accept, reject or rewrite an
// inbound action.
type Verdict struct {
	Reject bool
	Reason string
	Action *InboundAction // Replacement action, if non-nil.
}

// ListenerFailure describes an error raised by a listener's predicate or effect.
type ListenerFailure struct {
	ListenerID string
	RaisedBy   string
	Phase      string
	ActionType string
	Error      string
}
