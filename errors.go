package pipeline

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error cases in the barrier-subsystem taxonomy
// (spec §7). Interrupted is not included here: it is an expected terminal
// state communicated by returning a zero value and ok=false, not by an error.
type Kind string

const (
	// KindAlreadyInvoked: Barrier.Invoke called a second time on the same barrier.
	KindAlreadyInvoked Kind = "already_invoked"

	// KindDuplicateRegistration: the same barrier was registered twice with a controller.
	KindDuplicateRegistration Kind = "duplicate_registration"

	// KindUnknownBarrier: a barrier arrived or was interrupted without having been registered, and the controller is not interrupted.
	KindUnknownBarrier Kind = "unknown_barrier"

	// KindDoubleBlock: the same barrier arrived twice.
	KindDoubleBlock Kind = "double_block"

	// KindCapacityExceeded: registering a barrier would push registeredCount beyond capacity.
	KindCapacityExceeded Kind = "capacity_exceeded"

	// KindCapacityBelowRegistered: setCapacity was asked for a capacity below the current registeredCount.
	KindCapacityBelowRegistered Kind = "capacity_below_registered"

	// KindBadAggregatorOutput: the aggregate action returned a list of the wrong length.
	KindBadAggregatorOutput Kind = "bad_aggregator_output"

	// KindInternalInvariant: absentees were observed without a prior failure signal, or an arrived barrier's input went missing.
	KindInternalInvariant Kind = "internal_invariant"
)

// Error reports one of the barrier-subsystem error kinds, with a message
// and, where applicable, a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, ErrKind(KindX)) style matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrKind builds a sentinel usable with errors.Is to test only the Kind of
// an *Error, ignoring message and cause.
func ErrKind(kind Kind) error { return &Error{Kind: kind} }

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
