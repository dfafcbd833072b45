package xfer

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies every error a driver operation can return, per spec §7.
type Kind int

const (
	// OK is the zero value: no error.
	OK Kind = iota
	// Fatal stops the current operation and the enclosing transfer file;
	// the caller should surface it and not retry.
	Fatal
	// Retryable is transient: the scheduler should disconnect the
	// affected Request and may reconnect and retry.
	Retryable
	// LogicalFailure is a per-file failure reported to the caller while
	// the Request remains open (HTTP 404, SFTP NoSuchFile, FTP 550, ...).
	LogicalFailure
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case Fatal:
		return "Fatal"
	case Retryable:
		return "Retryable"
	case LogicalFailure:
		return "LogicalFailure"
	default:
		return "Unknown"
	}
}

// Error is the single error type that ever leaves a driver. It carries
// the classification and the last protocol response string for
// diagnostics, but never a protocol-specific error value (§7: "No
// cross-protocol error values leak upward").
type Error struct {
	Kind     Kind
	Op       string // operation name: "connect", "list_files", ...
	Response string // last protocol response line, if any
	cause    error
}

func (e *Error) Error() string {
	if e.Response != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Response)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified Error, wrapping cause with pkg/errors so
// a stack trace is available in debug logs without losing the kind.
func NewError(kind Kind, op string, response string, cause error) *Error {
	if cause != nil {
		cause = errors.Wrap(cause, op)
	}
	return &Error{Kind: kind, Op: op, Response: response, cause: cause}
}

// IsFatal reports whether err is (or wraps) a Fatal Error.
func IsFatal(err error) bool { return kindOf(err) == Fatal }

// IsRetryable reports whether err is (or wraps) a Retryable Error.
func IsRetryable(err error) bool { return kindOf(err) == Retryable }

// IsLogicalFailure reports whether err is (or wraps) a LogicalFailure.
func IsLogicalFailure(err error) bool { return kindOf(err) == LogicalFailure }

func kindOf(err error) Kind {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	return OK
}
