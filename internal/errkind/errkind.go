// Package errkind classifies failures into the small set of kinds callers
// can act on, and carries a human-readable reason alongside the cause.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a class of failure.
type Kind string

const (
	InvalidArguments  Kind = "InvalidArguments"
	ConnectionError   Kind = "ConnectionError"
	Authentication    Kind = "AuthenticationError"
	NotFound          Kind = "NotFoundError"
	AccessDenied      Kind = "AccessDeniedError"
	Stall             Kind = "StallError"
	SizeLimitExceeded Kind = "SizeLimitExceeded"
	IO                Kind = "IOError"
	Unknown           Kind = "UnknownError"
)

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "mount", "read"
	Path   string // remote or local path involved, may be empty
	Reason string // user-facing text; Error() falls back to the cause
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Path != "" {
			b.WriteString(" ")
			b.WriteString(e.Path)
		}
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// WithReason creates a classified error with a user-facing reason.
func WithReason(kind Kind, op, path, reason string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Reason: reason, Err: err}
}

// Invalid reports a missing or malformed argument.
func Invalid(format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: InvalidArguments, Reason: msg, Err: errors.New(msg)}
}

// Of returns the kind of err. Unclassified errors are matched against
// well-known message fragments and otherwise reported as Unknown.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if IsDiskFullError(err) {
		return IO
	}
	if IsNetworkError(err) {
		return ConnectionError
	}
	return Unknown
}

// Reason returns the user-facing text for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// IsDiskFullError checks if an error is likely caused by running out of disk space.
//
// Checks for common error strings across different operating systems:
//   - Linux/Unix: "no space left on device", "enospc"
//   - Windows: "out of disk space", "insufficient disk space"
//   - Quota: "disk quota exceeded"
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(strings.ToLower(err.Error()),
		"no space left on device",
		"disk full",
		"out of disk space",
		"insufficient disk space",
		"not enough space",
		"enospc",
		"disk quota exceeded",
	)
}

// IsNetworkError checks if an error message looks network-related.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(strings.ToLower(err.Error()),
		"connection",
		"network",
		"broken pipe",
		"no route to host",
	)
}

func containsAny(s string, indicators ...string) bool {
	for _, indicator := range indicators {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}
