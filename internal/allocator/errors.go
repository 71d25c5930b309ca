package allocator

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the allocator.  Absence of a viable plan
// is deliberately NOT an error (quotes carry a reason string
// instead); these codes cover genuine faults and rejected
// confirmations.
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeBookingNotFound         = "BOOKING_NOT_FOUND"
	CodeServiceNotFound         = "SERVICE_NOT_FOUND"
	CodeServiceOverrun          = "SERVICE_OVERRUN"
	CodeHoldNotFound            = "HOLD_NOT_FOUND"
	CodeHoldMetadataIncomplete  = "HOLD_METADATA_INCOMPLETE"
	CodeHoldEmpty               = "HOLD_EMPTY"
	CodeHoldBookingMismatch     = "HOLD_BOOKING_MISMATCH"
	CodePolicyChanged           = "POLICY_CHANGED"
	CodeRPCValidation           = "RPC_VALIDATION"
	CodeAssignmentConflict      = "ASSIGNMENT_CONFLICT"
	CodeAssignmentValidation    = "ASSIGNMENT_VALIDATION"
	CodeAssignmentRepository    = "ASSIGNMENT_REPOSITORY_ERROR"
	CodeStateReconciliationFail = "STATE_RECONCILIATION_FAILED"
)

// Error is a coded allocator error.  Details carries structured
// context (missing metadata paths, drift diffs) for callers that
// want more than the message.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// newError builds a coded error without a cause.
func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// wrapError builds a coded error around an underlying cause.
func wrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// withDetails attaches structured context and returns the error
// for chaining.
func (e *Error) withDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the allocator error code from err, or "" when
// err is not a coded error.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries the
// given allocator error code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
