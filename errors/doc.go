// Package errors provides the structured error type used across pushflow.
//
// Every failure the stream engine surfaces through an onError channel is an
// *AppError carrying a machine-readable ErrorCode, so consumers can tell a
// protocol violation (INVALID_DEMAND) from a consumer bug (CALLBACK_FAILED)
// or a source failure (UPSTREAM_FAILED) without string matching:
//
//	if errors.IsCode(err, errors.ErrCodeInvalidDemand) {
//	    // fix the caller, the stream itself is still usable
//	}
package errors
