package rdisq

import "fmt"

// EncodedError is the wire shape of a captured handler error. It round-trips
// through the codec so a caller's Wait sees an error conveying the same kind
// and message the handler produced, per the exception-fidelity guarantee.
type EncodedError struct {
	Kind    string `cbor:"kind"`
	Message string `cbor:"message"`
}

func (e *EncodedError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewEncodedError captures err for transport. Returns nil if err is nil.
func NewEncodedError(err error) *EncodedError {
	if err == nil {
		return nil
	}
	if he, ok := err.(*HandlerError); ok {
		return &EncodedError{Kind: he.Kind, Message: he.Message}
	}
	return &EncodedError{Kind: fmt.Sprintf("%T", err), Message: err.Error()}
}

// HandlerError is what a caller sees after Wait when the remote handler
// returned an error. Kind preserves the originating error's type name so
// callers can still branch on "the same kind of error" without sharing Go
// types across processes.
type HandlerError struct {
	Kind    string
	Message string
}

func (e *HandlerError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// DecodeError turns a wire EncodedError back into a caller-facing error.
func DecodeError(e *EncodedError) error {
	if e == nil {
		return nil
	}
	return &HandlerError{Kind: e.Kind, Message: e.Message}
}

// TimeoutError is returned by Request.Wait when no response arrived within
// the requested window.
type TimeoutError struct {
	TaskID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rdisq: timeout waiting for response to task %s", e.TaskID)
}

// PartialTimeoutError is returned by MultiRequest.Wait when not every target
// replied in time.
type PartialTimeoutError struct {
	Got, Expected int
}

func (e *PartialTimeoutError) Error() string {
	return fmt.Sprintf("rdisq: partial timeout, got %d of %d replies", e.Got, e.Expected)
}

// NoSuitableReceiverError is returned when no fresh receiver matches a
// request's target filter at send time.
type NoSuitableReceiverError struct{}

func (e *NoSuitableReceiverError) Error() string {
	return "rdisq: no suitable receiver found for request"
}

// InvalidArgumentError covers malformed caller input: both a filter and a
// target set supplied, ill-shaped tags, a handler registered twice, etc.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "rdisq: invalid argument: " + e.Reason
}

// MissingHandlerInstanceError is raised by the handler registry when a bound
// handler needs an instance and none was supplied or found among siblings.
type MissingHandlerInstanceError struct {
	ClassID string
}

func (e *MissingHandlerInstanceError) Error() string {
	return "rdisq: no handler instance available for " + e.ClassID
}

// InvalidHandlerInstanceError is raised by the handler registry when the
// supplied instance doesn't match the handler's owning type, or a free
// handler was given an instance at all.
type InvalidHandlerInstanceError struct {
	ClassID string
	Reason  string
}

func (e *InvalidHandlerInstanceError) Error() string {
	return fmt.Sprintf("rdisq: invalid handler instance for %s: %s", e.ClassID, e.Reason)
}

// InternalInvariantViolationError signals that a popped task id didn't match
// the request payload stored under its request key. Fatal for the current
// task only; the receiver loop logs it and keeps polling.
type InternalInvariantViolationError struct {
	Expected, Got string
}

func (e *InternalInvariantViolationError) Error() string {
	return fmt.Sprintf("rdisq: invariant violation: expected task id %s, got %s", e.Expected, e.Got)
}
