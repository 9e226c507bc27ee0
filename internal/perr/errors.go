// Package perr defines the abstract error kinds surfaced by the proxy's
// call-handling paths. Per-call errors never become protocol-level
// failures; callers at the dispatch boundary flatten them into a single
// text content item whose text begins "Error:".
package perr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the abstract error categories.
type Kind string

const (
	KindConfig             Kind = "ConfigError"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUpstreamTimeout     Kind = "UpstreamTimeout"
	KindUpstreamFailure     Kind = "UpstreamFailure"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindCacheMiss           Kind = "CacheMiss"
	KindPattern             Kind = "PatternError"
	KindUnknownServer       Kind = "UnknownServer"
)

// Error wraps a Kind and a human message, optionally wrapping a cause.
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

// Is supports errors.Is comparisons against a bare Kind sentinel created
// via New(kind, "").
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// OfKind reports whether err is a *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// AsText renders err as the text content the protocol boundary returns,
// always beginning with "Error:".
func AsText(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return "Error: " + pe.Message
	}
	return "Error: " + err.Error()
}
