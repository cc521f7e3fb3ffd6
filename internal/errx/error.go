package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是对外可见的错误分类，贯穿 QueryResult、审计记录与 HTTP 响应。
type Kind string

const (
	KindClassificationAmbiguous Kind = "CLASSIFICATION_AMBIGUOUS"
	KindSchemaViolation         Kind = "SCHEMA_VIOLATION"
	KindOperationNotFound       Kind = "OPERATION_NOT_FOUND"
	KindNotFound                Kind = "NOT_FOUND"
	KindValidation              Kind = "VALIDATION_ERROR"
	KindConnection              Kind = "DATABASE_CONNECTION_ERROR"
	KindDatabaseOperation       Kind = "DATABASE_OPERATION_ERROR"
	KindTranslation             Kind = "TRANSLATION_SERVICE_ERROR"
	KindLLMService              Kind = "LLM_SERVICE_ERROR"
	KindInternal                Kind = "INTERNAL_ERROR"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind    Kind
	Err     error
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error, or is an AppError of the same kind.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) && t != nil && t.Err == nil {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates an AppError with the status derived from kind.
func New(kind Kind, err error, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Err:     err,
		Status:  StatusFor(kind),
		Message: message,
	}
}

// Newf is New without an underlying cause.
func Newf(kind Kind, format string, args ...any) *AppError {
	return New(kind, nil, fmt.Sprintf(format, args...))
}

// Wrap returns nil for a nil err, otherwise an AppError of the given kind.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return New(kind, err, message)
}

// WrapRedis wraps a Redis error with a consistent status code and message.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind:    KindInternal,
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: RedisErrorMessage,
	}
}

// KindOf returns the kind of the first AppError in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the safe message of the first AppError in the chain.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return SystemErrorMessage
}

func StatusFor(kind Kind) int {
	switch kind {
	case KindSchemaViolation, KindValidation, KindClassificationAmbiguous:
		return http.StatusBadRequest
	case KindOperationNotFound, KindNotFound:
		return http.StatusNotFound
	case KindConnection, KindLLMService, KindTranslation:
		return http.StatusServiceUnavailable
	case KindDatabaseOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
