package quizgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable machine-readable code carried in API error bodies.
type ErrorCode string

const (
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeMissingField    ErrorCode = "MISSING_FIELD"
	CodeLLM             ErrorCode = "LLM_ERROR"
	CodeLLMTimeout      ErrorCode = "LLM_TIMEOUT"
	CodeLLMRateLimit    ErrorCode = "LLM_RATE_LIMIT"
	CodeLLMParsing      ErrorCode = "LLM_PARSING_ERROR"
	CodeLLMModel        ErrorCode = "LLM_MODEL_ERROR"
	CodeSession         ErrorCode = "SESSION_ERROR"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimit    ErrorCode = "SESSION_LIMIT_EXCEEDED"
	CodeSessionExpired  ErrorCode = "SESSION_EXPIRED"
	CodeGuard           ErrorCode = "GUARD_ERROR"
	CodeGuardBlocked    ErrorCode = "GUARD_BLOCKED"
	CodeGuardConfig     ErrorCode = "GUARD_CONFIG_ERROR"
)

// Error is the typed error every subsystem surfaces to the HTTP layer.
// Cause is preserved for errors.Is/As chains but never serialized.
type Error struct {
	Code    ErrorCode
	Status  int
	Type    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code ErrorCode, status int, typ, message string) *Error {
	return &Error{Code: code, Status: status, Type: typ, Message: message}
}

// WithDetails attaches a details map and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause attaches a wrapped cause and returns the same error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func ErrInternal(message string) *Error {
	return newError(CodeInternal, http.StatusInternalServerError, "InternalError", message)
}

func ErrValidation(message string, details map[string]any) *Error {
	return newError(CodeValidation, http.StatusUnprocessableEntity, "ValidationError", message).WithDetails(details)
}

func ErrInvalidInput(message string) *Error {
	return newError(CodeInvalidInput, http.StatusBadRequest, "InvalidInputError", message)
}

func ErrMissingField(field string) *Error {
	return newError(CodeMissingField, http.StatusBadRequest, "MissingFieldError",
		fmt.Sprintf("Field '%s' required", field)).WithDetails(map[string]any{"field": field})
}

func ErrLLM(message string) *Error {
	return newError(CodeLLM, http.StatusBadGateway, "LLMError", message)
}

func ErrLLMTimeout(message string) *Error {
	return newError(CodeLLMTimeout, http.StatusGatewayTimeout, "LLMTimeoutError", message)
}

func ErrLLMRateLimit(message string) *Error {
	return newError(CodeLLMRateLimit, http.StatusTooManyRequests, "LLMRateLimitError", message)
}

func ErrLLMParsing(message string) *Error {
	return newError(CodeLLMParsing, http.StatusBadGateway, "LLMParsingError", message)
}

func ErrLLMModel(message string) *Error {
	return newError(CodeLLMModel, http.StatusBadGateway, "LLMModelError", message)
}

func ErrSession(message string) *Error {
	return newError(CodeSession, http.StatusBadRequest, "SessionError", message)
}

func ErrSessionNotFound(sessionID string) *Error {
	return newError(CodeSessionNotFound, http.StatusNotFound, "SessionNotFoundError",
		fmt.Sprintf("Session '%s' not found", sessionID)).WithDetails(map[string]any{"session_id": sessionID})
}

func ErrSessionLimit(maxSessions int) *Error {
	return newError(CodeSessionLimit, http.StatusTooManyRequests, "SessionLimitExceededError",
		fmt.Sprintf("Session limit of %d reached", maxSessions)).WithDetails(map[string]any{"max_sessions": maxSessions})
}

func ErrSessionExpired(sessionID string) *Error {
	return newError(CodeSessionExpired, http.StatusGone, "SessionExpiredError",
		fmt.Sprintf("Session '%s' expired", sessionID)).WithDetails(map[string]any{"session_id": sessionID})
}

func ErrGuard(message string) *Error {
	return newError(CodeGuard, http.StatusBadRequest, "GuardError", message)
}

func ErrGuardBlocked(score, threshold float64) *Error {
	return newError(CodeGuardBlocked, http.StatusBadRequest, "GuardBlockedError",
		fmt.Sprintf("Input blocked by injection guard (score=%.2f, threshold=%.2f)", score, threshold)).
		WithDetails(map[string]any{"score": score, "threshold": threshold})
}

func ErrGuardConfig(message string) *Error {
	return newError(CodeGuardConfig, http.StatusInternalServerError, "GuardConfigError", message)
}

// FromError normalizes any error into the typed taxonomy. Typed errors pass
// through, deadline expiry maps to LLM_TIMEOUT, everything else becomes an
// internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLLMTimeout("LLM request timed out").WithCause(err)
	}
	return ErrInternal(err.Error()).WithCause(err)
}
