package errors

import (
	"errors"
	"fmt"
)

var (
	ErrTransientDependency = NewError("TRANSIENT_DEPENDENCY_FAILURE", "dependency call failed")
	ErrValidation          = NewError("VALIDATION_FAILURE", "validation failed")
	ErrBreakerRejection    = NewError("BREAKER_REJECTION", "circuit breaker rejected call")
	ErrFatalLocal          = NewError("FATAL_LOCAL_FAILURE", "fatal local failure")
	ErrInternal            = NewError("INTERNAL_ERROR", "internal error")
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinel comparisons survive WithCause/WithDetail copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	switch e.Code {
	case ErrValidation.Code, ErrFatalLocal.Code:
		return false
	}
	return true
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	return e.WithDetail("message", message)
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsTransient(err error) bool {
	return code(err) == ErrTransientDependency.Code
}

func IsValidation(err error) bool {
	return code(err) == ErrValidation.Code
}

func IsRejection(err error) bool {
	return code(err) == ErrBreakerRejection.Code
}

func IsFatalLocal(err error) bool {
	return code(err) == ErrFatalLocal.Code
}

// IsRetryable reports whether err may succeed on another attempt.
// Errors outside the taxonomy are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}
	return true
}

// Classify returns a short label suitable for metrics and dead-letter records.
func Classify(err error) string {
	switch code(err) {
	case ErrValidation.Code:
		return "validation"
	case ErrBreakerRejection.Code:
		return "breaker_rejection"
	case ErrTransientDependency.Code:
		return "transient"
	case ErrFatalLocal.Code:
		return "fatal_local"
	case "":
		if err == nil {
			return ""
		}
		return "unknown"
	default:
		return "internal"
	}
}
