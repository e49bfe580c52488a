package errors

import (
	"fmt"
	"net/http"
)

// Error code constants used across the notification pipeline.
// Errors carry code + message; handlers render them as a JSON envelope and
// internal detail stays in the logs.

// Pipeline error codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeRecipientResolution = "RECIPIENT_RESOLUTION"
	CodeTokenValidation     = "TOKEN_VALIDATION"
	CodeDeliveryFailure     = "DELIVERY_FAILURE"
	CodeTimeout             = "TIMEOUT"
	CodeAPIError            = "API_ERROR"
)

// Auth error codes.
const (
	CodeAuthFailed   = "AUTH_FAILED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeUserMismatch = "USER_MISMATCH"
)

// Request error codes.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnsafeInput       = "UNSAFE_INPUT"
	CodePushTokenNotFound = "PUSH_TOKEN_NOT_FOUND"
	CodeRetryNotFound     = "RETRY_NOT_FOUND"
	CodeJobAlreadyRunning = "JOB_ALREADY_RUNNING"
)

// Convenience constructors using predefined codes.

// ErrValidationf creates a non-retryable 400 for malformed caller input.
func ErrValidationf(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrResolution wraps a recipient-resolution failure. Resolution errors feed
// the fallback path and are accumulated on the result, never raised to callers.
func ErrResolution(err error, message string) *AppError {
	return &AppError{
		Code:       CodeRecipientResolution,
		Message:    message,
		HTTPStatus: http.StatusOK,
		Retryable:  true,
		Err:        err,
	}
}

// ErrTokenValidation creates a token-format error; the offending token gets
// marked invalid by the store gateway.
func ErrTokenValidation(message string) *AppError {
	return &AppError{
		Code:       CodeTokenValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ErrDelivery wraps a gateway/send error. Always retryable.
func ErrDelivery(err error, message string) *AppError {
	return &AppError{
		Code:       CodeDeliveryFailure,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Err:        err,
	}
}

// ErrTimeout marks a stage deadline exceeded. Treated as a resolution error.
func ErrTimeout(stage string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    stage + " stage deadline exceeded",
		HTTPStatus: http.StatusGatewayTimeout,
		Retryable:  true,
	}
}

// ErrAPI wraps an unexpected failure. Always retryable and logged with context.
func ErrAPI(err error) *AppError {
	return &AppError{
		Code:       CodeAPIError,
		Message:    "unexpected internal error",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
		Err:        err,
	}
}
