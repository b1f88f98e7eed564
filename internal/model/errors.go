package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can tell terminal domain failures
// from retryable internal ones.
type ErrorKind string

const (
	KindUnauthenticated           ErrorKind = "UNAUTHENTICATED"
	KindInvalidArgument           ErrorKind = "INVALID_ARGUMENT"
	KindNotFound                  ErrorKind = "NOT_FOUND"
	KindAlreadyExists             ErrorKind = "ALREADY_EXISTS"
	KindAlreadyRegisteredByCaller ErrorKind = "ALREADY_REGISTERED_BY_CALLER"
	KindAlreadyRegisteredByOther  ErrorKind = "ALREADY_REGISTERED_BY_OTHER"
	KindPermissionDenied          ErrorKind = "PERMISSION_DENIED"
	KindDataCorruption            ErrorKind = "DATA_CORRUPTION"
	KindFailedPrecondition        ErrorKind = "FAILED_PRECONDITION"
	KindInternal                  ErrorKind = "INTERNAL"
)

// Error is a classified domain error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, model.ErrNotFound) works
// for any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated           = &Error{Kind: KindUnauthenticated}
	ErrInvalidArgument           = &Error{Kind: KindInvalidArgument}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrAlreadyExists             = &Error{Kind: KindAlreadyExists}
	ErrAlreadyRegisteredByCaller = &Error{Kind: KindAlreadyRegisteredByCaller}
	ErrAlreadyRegisteredByOther  = &Error{Kind: KindAlreadyRegisteredByOther}
	ErrPermissionDenied          = &Error{Kind: KindPermissionDenied}
	ErrDataCorruption            = &Error{Kind: KindDataCorruption}
	ErrFailedPrecondition        = &Error{Kind: KindFailedPrecondition}
	ErrInternal                  = &Error{Kind: KindInternal}
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsAlreadyExists reports whether err is any of the AlreadyExists sub-cases.
func IsAlreadyExists(err error) bool {
	switch KindOf(err) {
	case KindAlreadyExists, KindAlreadyRegisteredByCaller, KindAlreadyRegisteredByOther:
		return true
	}
	return false
}

// IsRetryable reports whether the caller may retry. Only Internal failures
// (store conflicts, transport errors, timeouts) are retryable.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}
