package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// Codes classify failures for the propagation policy: EUNAVAILABLE aborts a
// whole run, EPAYMENT is recorded as a failed installment and retried, the
// rest isolate to the customer being processed.
const (
	ECONFLICT    = "conflict"    // duplicate or already-processed work
	EINTERNAL    = "internal"    // unexpected failure (hide details)
	EINVALID     = "invalid"     // malformed or inconsistent data
	ENOTFOUND    = "not_found"   // missing record
	EPAYMENT     = "payment"     // order placement declined or failed
	EUNAVAILABLE = "unavailable" // ledger or collaborator unreachable
)

// Error is an application error with a code and message. It implements the
// error interface and supports wrapping.
type Error struct {
	// Code is a machine-readable error code (e.g., EINVALID, ENOTFOUND).
	Code string

	// Message is a human-readable error message.
	Message string

	// Op is the operation where the error occurred (e.g.,
	// "processor.run"). For logging, not shown to users.
	Op string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for non-domain errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}

	return ""
}

// Errorf creates a new domain error with a formatted message.
// Example: domain.Errorf(domain.EINVALID, "consolidator.build", "line item %s has no address", id)
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a domain code and operation,
// preserving the underlying error for errors.Is checks. Returns nil if err
// is nil.
func WrapError(err error, code, op, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsCode returns true if err has the given error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
