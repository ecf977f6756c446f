package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Protocol errors
const (
	// ErrCodeInvalidDemand indicates Request was called with a non-positive amount.
	ErrCodeInvalidDemand ErrorCode = "INVALID_DEMAND"
	// ErrCodeCancelled indicates a consumer stopped because its context ended.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Signal errors
const (
	// ErrCodeCallbackFailed indicates a consumer callback panicked or failed.
	ErrCodeCallbackFailed ErrorCode = "CALLBACK_FAILED"
	// ErrCodeUpstreamFailed indicates a source failed while producing.
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates a value failed validation.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInvalidConfig indicates configuration failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Admission errors
const (
	// ErrCodeLimitExceeded indicates a concurrency or rate limit refused the request.
	ErrCodeLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)
