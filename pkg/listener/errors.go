package listener

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/listenkit/listenkit/pkg/action"
)

var (
	// ErrMissingEffect is returned when a registration has no effect.
	ErrMissingEffect = errors.New("listener: effect must be a non-nil function")

	// ErrMissingTrigger is returned when a registration has no usable trigger.
	ErrMissingTrigger = errors.New(
		"listener: registration requires a type, action creator, matcher or predicate")

	// ErrNilErrorHandler is returned by New when WithErrorHandler is given nil.
	ErrNilErrorHandler = errors.New("listener: error handler must be a non-nil function")

	// ErrInvalidPayload is returned when a control action carries the wrong payload type.
	ErrInvalidPayload = errors.New("listener: invalid control action payload")

	// ErrClosed is returned when adding a listener to a closed middleware.
	ErrClosed = errors.New("listener: middleware is closed")

	// ErrShutdownTimeout is returned by Close when effects are still running at the deadline.
	ErrShutdownTimeout = errors.New("listener: shutdown timed out waiting for effects")
)

// RaisedBy names the part of a listener that failed.
type RaisedBy string

const (
	RaisedByPredicate RaisedBy = "predicate"
	RaisedByEffect    RaisedBy = "effect"
)

// ErrorInfo describes where a listener error came from.
type ErrorInfo struct {
	RaisedBy   RaisedBy
	ListenerID string
	Phase      Phase
	Action     action.Action
}

// ErrorHandler receives errors raised by predicates and effects.
type ErrorHandler func(err error, info ErrorInfo)

// FaultHandler receives failures of the ErrorHandler itself.  It is called on its own
// goroutine, outside of any dispatch.
type FaultHandler func(err error)

// PanicError holds a value recovered from a panicking predicate, effect or handler.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
