package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"
	ErrorTypeInference       ErrorType = "inference"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeInternal        ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ClientMessage is the text returned to API callers. Input errors include their cause so
// the caller can fix the request; server-side causes stay in the logs.
func (e *AppError) ClientMessage() string {
	if e.Cause != nil && (e.Type == ErrorTypeValidation || e.Type == ErrorTypePayloadTooLarge) {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func NewValidationError(message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, message, http.StatusBadRequest, cause)
}

func NewPayloadTooLargeError(message string, cause error) *AppError {
	return newAppError(ErrorTypePayloadTooLarge, message, http.StatusRequestEntityTooLarge, cause)
}

// NewInferenceError reports a failure inside the model run, including input shape mismatches.
func NewInferenceError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInference, message, http.StatusInternalServerError, cause)
}

func NewTimeoutError(message string, cause error) *AppError {
	return newAppError(ErrorTypeTimeout, message, http.StatusGatewayTimeout, cause)
}

func NewUnavailableError(message string, cause error) *AppError {
	return newAppError(ErrorTypeUnavailable, message, http.StatusServiceUnavailable, cause)
}

func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, message, http.StatusInternalServerError, cause)
}

func newAppError(errorType ErrorType, message string, status int, cause error) *AppError {
	return &AppError{
		Type:       errorType,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// IsType checks if err wraps an AppError of the given type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}
