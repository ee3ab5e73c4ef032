// Package failure defines the tagged error kinds shared by the pipeline
// components.
//
// Components return *Error values so the driver can apply a policy per kind
// (retry, count, skip) instead of a single catch-all.
package failure

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure.
type Kind string

const (
	// KindInvalidInput rejects a value before it is persisted (empty prompt text).
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindTransientService is a rate limit or temporary outage of the text
	// service. Retried with a fixed delay, bounded.
	KindTransientService Kind = "TRANSIENT_SERVICE"

	// KindFatalService is any other text service error. Aborts the attempt.
	KindFatalService Kind = "FATAL_SERVICE"

	// KindEmptyResult means the service answered without usable content.
	// Not retried.
	KindEmptyResult Kind = "EMPTY_RESULT"

	// KindToolUnavailable means the image tool or its runtime is missing.
	KindToolUnavailable Kind = "TOOL_UNAVAILABLE"

	// KindToolFailed means the image tool exited with a non-zero status.
	KindToolFailed Kind = "TOOL_FAILED"

	// KindNoArtifactProduced means the tool reported success but no new file
	// appeared in the output directory.
	KindNoArtifactProduced Kind = "NO_ARTIFACT_PRODUCED"

	// KindTimeout means the image tool exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"

	// KindPoolLoad means the example pool could not be loaded or is empty.
	KindPoolLoad Kind = "POOL_LOAD"

	// KindUnavailable means a required collaborator was never initialized.
	KindUnavailable Kind = "UNAVAILABLE"
)

// Error is a pipeline failure tagged with its Kind.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Op names the operation that failed, e.g. "generate" or "dispatch".
	Op string

	// Message is a human-readable description.
	Message string

	// Attempts is the number of attempts made, when retries apply.
	Attempts int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempts=%d)", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap tags err with a kind.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Is(err, KindTransientService)
}
