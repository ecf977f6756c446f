package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// As is errors.As from the standard library, re-exported so callers that
// import this package as "errors" need no alias.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// IsCode reports whether err, or any error it wraps, is an AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// --- Common Error Constructors ---

// InvalidDemand creates the error signalled for Request(n) with n <= 0.
func InvalidDemand(n int64) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidDemand,
		Message: fmt.Sprintf("request amount must be positive (got %d)", n),
		Details: map[string]any{"requested": n},
	}
}

// CallbackFailed wraps a value recovered from, or an error returned by, a
// consumer callback.
func CallbackFailed(callback string, recovered any) *AppError {
	e := &AppError{
		Code:    ErrCodeCallbackFailed,
		Message: fmt.Sprintf("%s callback failed", callback),
		Details: map[string]any{"callback": callback},
	}
	if err, ok := recovered.(error); ok {
		e.Cause = err
	} else {
		e.Cause = fmt.Errorf("panic: %v", recovered)
	}
	return e
}

// Upstream wraps a failure produced by a source.
func Upstream(source string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeUpstreamFailed,
		Message: fmt.Sprintf("source %s failed", source),
		Details: map[string]any{"source": source},
		Cause:   cause,
	}
}

// Cancelled creates an error for a consumer whose context ended.
func Cancelled(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeCancelled,
		Message: "stream consumption cancelled",
		Cause:   cause,
	}
}

// Validation creates a new AppError for values that failed validation.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// InvalidConfig creates an error for configuration that failed validation.
func InvalidConfig(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidConfig, Message: message}
}

// LimitExceeded creates the error for a request refused by the named limiter.
func LimitExceeded(limiter, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeLimitExceeded,
		Message: reason,
		Details: map[string]any{"limiter": limiter},
	}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "an unexpected error occurred",
		Cause:   cause,
	}
}
