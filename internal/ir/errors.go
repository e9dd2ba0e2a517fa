package ir

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode categorizes client-facing errors.
type ErrorCode string

const (
	// Request shape
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeMissingEvent   ErrorCode = "MISSING_EVENT"
	ErrCodeNoEvents       ErrorCode = "NO_EVENTS"
	ErrCodeInvalidFormat  ErrorCode = "INVALID_EVENT_FORMAT"
	ErrCodeInvalidID      ErrorCode = "INVALID_ID"

	// Schema
	ErrCodeUnknownCategory ErrorCode = "UNKNOWN_CATEGORY"
	ErrCodeUnknownEvent    ErrorCode = "UNKNOWN_EVENT"
	ErrCodeUnknownField    ErrorCode = "UNKNOWN_FIELD"
	ErrCodeMissingField    ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrCodeTypeMismatch    ErrorCode = "TYPE_MISMATCH"

	// Query
	ErrCodeInvalidOperator    ErrorCode = "INVALID_OPERATOR"
	ErrCodeInvalidOperand     ErrorCode = "INVALID_OPERAND"
	ErrCodeGroupNotTimestamp  ErrorCode = "GROUP_FIELD_NOT_TIMESTAMP"
	ErrCodeInvalidGranularity ErrorCode = "INVALID_GROUP_SIZE"

	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a client-facing error. Its message is safe to return verbatim.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Status maps the error code to an HTTP status.
func (e *Error) Status() int {
	if e.Code == ErrCodeNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
