package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation      = "E100"
	CodeStorage         = "E200"
	CodeUpstream        = "E300"
	CodeState           = "E400"
	CodeRateLimit       = "E500"
	CodeAuth            = "E600"
	CodeUnauthenticated = "E601"
	CodeInternal        = "E900"
)

const defaultUserMessage = "Ocurrió un error. Intentá de nuevo más tarde"

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	RetryAfter  int // seconds, rate limit errors only
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// As extracts the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Datos inválidos. %s", msg),
		Severity:    SeverityLow,
	}
}

func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStorage,
		Message:     fmt.Sprintf("Storage error: %s", underlyingMsg),
		UserMessage: "Problema temporal, intentá más tarde",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewUpstreamError(service string, cause error) *AppError {
	return &AppError{
		Code:        CodeUpstream,
		Message:     fmt.Sprintf("Upstream error: %s", service),
		UserMessage: "El nodo no está disponible en este momento",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "La operación no es posible en el estado actual",
		Severity:    SeverityMedium,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Demasiadas solicitudes. Probá de nuevo en %d segundos", retryAfter),
		Severity:    SeverityLow,
		RetryAfter:  retryAfter,
	}
}

// NewAuthError reports rejected credentials. It is retryable: the user may simply try again.
func NewAuthError() *AppError {
	return &AppError{
		Code:        CodeAuth,
		Message:     "invalid credentials",
		UserMessage: "Usuario o contraseña incorrectos",
		Severity:    SeverityLow,
		Retryable:   true,
	}
}

func NewUnauthenticatedError() *AppError {
	return &AppError{
		Code:        CodeUnauthenticated,
		Message:     "session is not authenticated",
		UserMessage: "Iniciá sesión para continuar",
		Severity:    SeverityLow,
	}
}

func NewInternalError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeInternal,
		Message:     fmt.Sprintf("Internal error: %s", underlyingMsg),
		UserMessage: defaultUserMessage,
		Severity:    SeverityCritical,
		cause:       cause,
	}
}
