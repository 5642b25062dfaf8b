package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Predefined error codes.
//
// The first four are the per-turn analysis taxonomy: invalid inputs are
// rejected before any computation and never retried; an unavailable adapter
// is fatal for the call (the fallback is an explicit configuration choice,
// never a silent substitute); an adapter failure fails the turn without
// internal retries or anchor mutation; insufficient null samples excludes a
// single candidate, not the turn.
const (
	CodeInvalidInput            = "INVALID_INPUT"
	CodeAdapterUnavailable      = "ADAPTER_UNAVAILABLE"
	CodeAdapterFailure          = "ADAPTER_FAILURE"
	CodeInsufficientNullSamples = "INSUFFICIENT_NULL_SAMPLES"

	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeStorageError    = "STORAGE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
)

// Common error constructors
func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func AdapterUnavailable(message string) *AppError {
	return New(CodeAdapterUnavailable, message)
}

func AdapterFailure(op string, cause error) *AppError {
	return &AppError{
		Code:    CodeAdapterFailure,
		Message: fmt.Sprintf("adapter %s failed", op),
		Cause:   cause,
	}
}

func InsufficientNullSamples(candidateID int64) *AppError {
	return New(CodeInsufficientNullSamples,
		fmt.Sprintf("candidate %d has fewer than 2 alternatives for a null distribution", candidateID))
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func StorageError(message string, cause error) *AppError {
	return &AppError{Code: CodeStorageError, Message: message, Cause: cause}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
