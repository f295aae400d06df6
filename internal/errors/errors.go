package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError. Codes double as metric labels, so keep them short.
type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInvalidTransition marks a status change the legality table rejects.
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	// ErrCodeConflict marks a lost guarded update, a unique violation, or a counter reset
	// refused mid-run.
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForeignKey marks a unit mapping that points at a missing job.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
)

// AppError carries a Code through wrapping so callers can branch on it with the Is* helpers.
// Field names the offending input for validation and unique-violation errors.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
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

// newf leaves format untouched when there are no args, so literal % signs survive.
func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

func NotFound(message string) *AppError {
	return newf(ErrCodeNotFound, "%s", message)
}

func InvalidTransitionf(format string, args ...any) *AppError {
	return newf(ErrCodeInvalidTransition, format, args...)
}

func Conflict(message string) *AppError {
	return newf(ErrCodeConflict, "%s", message)
}

func Conflictf(format string, args ...any) *AppError {
	return newf(ErrCodeConflict, format, args...)
}

func Validation(message string) *AppError {
	return newf(ErrCodeValidation, "%s", message)
}

func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField is a validation error tied to one request field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap attaches code to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool          { return GetCode(err) == ErrCodeNotFound }
func IsInvalidTransition(err error) bool { return GetCode(err) == ErrCodeInvalidTransition }
func IsConflict(err error) bool          { return GetCode(err) == ErrCodeConflict }
func IsValidation(err error) bool        { return GetCode(err) == ErrCodeValidation }
