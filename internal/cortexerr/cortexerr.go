// Package cortexerr defines the typed error taxonomy shared by every
// control-plane subsystem, and the exit-code mapping the CLI uses to
// translate a returned error into a process result.
package cortexerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories a subsystem may return.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindValidationFailure  Kind = "validation_failure"
	KindPolicyDenied       Kind = "policy_denied"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindTransient          Kind = "transient"
	KindFatalInvariant     Kind = "fatal_invariant"
)

// Error wraps an underlying cause with a Kind and a short machine-readable
// context string. CLI entrypoints print Kind and Context on one line.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, context string, err error) *Error {
	return &Error{Kind: k, Context: context, Err: err}
}

func InvalidInput(context string, err error) *Error {
	return newErr(KindInvalidInput, context, err)
}

func ValidationFailure(context string, err error) *Error {
	return newErr(KindValidationFailure, context, err)
}

func PolicyDenied(context string, err error) *Error {
	return newErr(KindPolicyDenied, context, err)
}

func NotFound(context string, err error) *Error {
	return newErr(KindNotFound, context, err)
}

func PreconditionFailed(context string, err error) *Error {
	return newErr(KindPreconditionFailed, context, err)
}

func Transient(context string, err error) *Error {
	return newErr(KindTransient, context, err)
}

func FatalInvariant(context string, err error) *Error {
	return newErr(KindFatalInvariant, context, err)
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// ExitCode maps an error to the CLI exit code per spec: 0 success, 1
// validation/logic failure, 99 bootstrap failure. A nil error is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindFatalInvariant:
			return 99
		default:
			return 1
		}
	}
	return 99
}
