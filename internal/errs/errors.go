// Package errs provides the unified error type used across all of sqlgate.
//
// Every subsystem (config, validator, database drivers, gateway) wraps its
// native errors into *errs.Error before returning them to callers. Callers
// use KindOf or the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsConfigNotFound(err) {
//	    http.Error(w, "unknown config", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, MySQL, SQLite, MinIO) map their native errors to
// one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindConfigNotFound            // no registry entry under that name
	ErrKindConfigParse               // malformed registry source or entry
	ErrKindEnvVarUnresolved          // ${VAR} referenced but not set
	ErrKindConnectionFailed          // cannot reach or authenticate to the backend
	ErrKindEmptyQuery                // nothing left after comments are stripped
	ErrKindWriteRejected             // a write/DDL keyword was found
	ErrKindMultiStatement            // more than one statement in a request
	ErrKindStatementRejected         // not a SELECT/WITH, or a side-effecting function
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindQueryFailed               // engine reported an execution error
	ErrKindInvalidInput              // bad arguments from the caller
	ErrKindNotFound                  // no object, no bucket
	ErrKindPermissionDenied          // access denied by the backend
	ErrKindSerializationFallback     // value rendered through the generic fallback
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfigNotFound:
		return "config_not_found"
	case ErrKindConfigParse:
		return "config_parse_error"
	case ErrKindEnvVarUnresolved:
		return "env_var_unresolved"
	case ErrKindConnectionFailed:
		return "connection_error"
	case ErrKindEmptyQuery:
		return "empty_query"
	case ErrKindWriteRejected:
		return "write_operation_rejected"
	case ErrKindMultiStatement:
		return "multi_statement_rejected"
	case ErrKindStatementRejected:
		return "statement_rejected"
	case ErrKindTimeout:
		return "query_timeout"
	case ErrKindQueryFailed:
		return "execution_error"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindSerializationFallback:
		return "serialization_fallback"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all sqlgate subsystems.
// Drivers produce it; callers inspect it via KindOf and the Is* predicates.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, MessageOf(e.Cause))
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsConfigNotFound reports whether err names a config entry that does not exist.
func IsConfigNotFound(err error) bool {
	return KindOf(err) == ErrKindConfigNotFound
}

// IsConfigParse reports whether err came from a malformed registry source.
func IsConfigParse(err error) bool {
	return KindOf(err) == ErrKindConfigParse
}

// IsEnvVarUnresolved reports whether err is an unset ${VAR} reference.
func IsEnvVarUnresolved(err error) bool {
	return KindOf(err) == ErrKindEnvVarUnresolved
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is an engine execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsRejected reports whether err is any of the validator's rejection kinds.
func IsRejected(err error) bool {
	switch KindOf(err) {
	case ErrKindEmptyQuery, ErrKindWriteRejected, ErrKindMultiStatement, ErrKindStatementRejected:
		return true
	}
	return false
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsNotFound reports whether err represents a missing object or bucket.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// MessageOf returns the Message of the first *Error in the chain joined
// with its causes, without kind tags, or err.Error() for foreign errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + MessageOf(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
