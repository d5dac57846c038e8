package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Submission error codes
const (
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrOverloaded     ErrorCode = "OVERLOADED"
	ErrNetwork        ErrorCode = "NETWORK"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrBadResponse    ErrorCode = "BAD_RESPONSE"
)

// Operation / download error codes
const (
	ErrTimedOut         ErrorCode = "TIMED_OUT"
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrDownloadFailed   ErrorCode = "DOWNLOAD_FAILED"
	ErrCancelled        ErrorCode = "CANCELLED"
)

// Account / run error codes
const (
	ErrAllTokensInvalid     ErrorCode = "ALL_TOKENS_INVALID"
	ErrAllAccountsExhausted ErrorCode = "ALL_ACCOUNTS_EXHAUSTED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Attempts   int       `json:"attempts,omitempty"`
	AccountID  string    `json:"account_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.HTTPStatus != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.HTTPStatus)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAttempts records how many attempts were made before the error became terminal.
func (e *Error) WithAttempts(attempts int) *Error {
	e.Attempts = attempts
	return e
}

// WithAccount tags the error with the owning account.
func (e *Error) WithAccount(accountID string) *Error {
	e.AccountID = accountID
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the error code from an error chain.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
