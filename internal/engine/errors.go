package engine

import (
	"errors"
	"fmt"

	"github.com/dreamware/minisnowflake/internal/worker"
)

// Kind is the error taxonomy from spec §7.
type Kind string

const (
	KindParseError     Kind = "ParseError"
	KindNotFound       Kind = "NotFound"
	KindAlreadyExists  Kind = "AlreadyExists"
	KindSchemaMismatch Kind = "SchemaMismatch"
	KindTaskFailed     Kind = "TaskFailed"
	KindNoWorkers      Kind = "NoWorkers"
	KindTimeout        Kind = "Timeout"
	KindCancelled      Kind = "Cancelled"
	KindInternal       Kind = "Internal"
)

// Error wraps every failure the engine surfaces with its taxonomy Kind, so
// callers can branch with errors.As instead of string matching, and the
// HTTP layer can map Kind to a status code (spec §6: 4xx for
// ParseError/NotFound/AlreadyExists, 5xx otherwise).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsRetryable reports whether an error observed while running a single
// task should trigger a retry rather than immediately failing the query
// (spec §4.5 failure semantics: network errors, worker NotReady, and a
// single task's deadline exceeded are retryable; everything else,
// including an acquire call that has already exhausted acquire_timeout, is
// not).
func IsRetryable(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return true // unrecognized transport error: treat as transient
	}
	if e.Kind == KindTimeout {
		return true
	}
	// A TaskFailed whose underlying cause is a transport failure (dial
	// error, connection reset, truncated response) is retryable the same
	// way a timeout is: the worker never ran the task, so a different
	// worker or a fresh attempt may still succeed. A TaskFailed whose cause
	// is the worker having run the task and reported failure is not.
	return e.Kind == KindTaskFailed && errors.Is(e.Err, worker.ErrConnection)
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
