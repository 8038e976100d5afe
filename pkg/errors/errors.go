package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeForbidden   ErrorType = "forbidden"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New builds an Error of the given type.
func New(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// FromStatus maps a non-2xx HTTP status code to a typed error.
func FromStatus(statusCode int, message string) *Error {
	var errorType ErrorType
	switch {
	case statusCode == http.StatusNotFound:
		errorType = ErrorTypeNotFound
	case statusCode == http.StatusForbidden:
		errorType = ErrorTypeForbidden
	case statusCode == http.StatusUnauthorized:
		errorType = ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		errorType = ErrorTypeRateLimit
	case statusCode >= 500:
		errorType = ErrorTypeServerError
	default:
		errorType = ErrorTypeUnknown
	}
	return &Error{Type: errorType, Message: message, Code: statusCode}
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsSkippable reports whether err means the remote resource is absent or
// hidden. Such errors are mapped to "nothing to do" instead of a failure.
func IsSkippable(err error) bool {
	if err == nil {
		return false
	}
	switch TypeOf(err) {
	case ErrorTypeNotFound, ErrorTypeForbidden:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeForbidden, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
