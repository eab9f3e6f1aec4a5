package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrClosed is returned by stores written to after Close.
var ErrClosed = errors.New("store: closed")

type Class int

const (
	ClassUnknown Class = iota
	ClassTransient
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// TransientError marks a failure a later attempt may not hit: timeouts,
// overloaded or unavailable nodes.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return e.Cause.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return &TransientError{Cause: cause}
}

// PermanentError marks a failure retrying cannot fix: malformed keys,
// exceeded quotas, authorization failures.
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	return e.Cause.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

func Permanent(cause error) error {
	if cause == nil {
		return nil
	}
	return &PermanentError{Cause: cause}
}

// PartialError reports a write where only some records were acknowledged.
// Unacked holds indexes into the submitted slice; Cause is classified as
// usual to decide whether the remainder is retried.
type PartialError struct {
	Unacked []int
	Cause   error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial write, %d record(s) unacknowledged: %v", len(e.Unacked), e.Cause)
}

func (e *PartialError) Unwrap() error {
	return e.Cause
}

func NewPartialError(unacked []int, cause error) error {
	return &PartialError{Unacked: unacked, Cause: cause}
}

func AsPartialError(err error) (*PartialError, bool) {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}

// Classify maps an error to its retry class. Explicit wrappers win; of the
// rest, deadline and network timeouts are transient and everything else is
// permanent. Cancellation is permanent since the caller asked to stop. A
// partial write with no cause is transient.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	if partial, ok := AsPartialError(err); ok && partial.Cause == nil {
		return ClassTransient
	}

	var te *TransientError
	var pe *PermanentError
	switch {
	case errors.As(err, &pe):
		return ClassPermanent
	case errors.As(err, &te):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}

	return ClassPermanent
}
