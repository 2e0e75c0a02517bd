package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth / session errors
	CodeUserIDMissing    = "AUTH_USER_ID_MISSING"
	CodeSessionIDMissing = "AUTH_SESSION_ID_MISSING"
	CodeSessionInvalid   = "AUTH_SESSION_INVALID"
	CodeUserMismatch     = "AUTH_USER_MISMATCH"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeMissingField     = "MISSING_FIELD"

	// Resource errors
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"

	// Store errors
	CodeStoreError = "STORE_ERROR"
	CodeCacheError = "CACHE_ERROR"

	// Remote mail provider errors
	CodeRemoteTransient = "REMOTE_TRANSIENT"
	CodeRemotePermanent = "REMOTE_PERMANENT"

	// Job errors
	CodeJobNotFound          = "JOB_NOT_FOUND"
	CodeJobInvalidTransition = "JOB_INVALID_TRANSITION"

	// Analysis errors
	CodeAnalyzerTimeout = "ANALYZER_TIMEOUT"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth / session errors
func UserIDMissing() *AppError {
	return &AppError{
		Code:    CodeUserIDMissing,
		Message: "user_id is required in user context",
		Status:  http.StatusUnauthorized,
	}
}

func SessionIDMissing() *AppError {
	return &AppError{
		Code:    CodeSessionIDMissing,
		Message: "session_id is required in user context",
		Status:  http.StatusUnauthorized,
	}
}

func SessionInvalid(reason string) *AppError {
	if reason == "" {
		reason = "session is invalid or expired"
	}
	return &AppError{
		Code:    CodeSessionInvalid,
		Message: reason,
		Status:  http.StatusUnauthorized,
	}
}

func UserMismatch(sessionUser, requestUser string) *AppError {
	return &AppError{
		Code:    CodeUserMismatch,
		Message: "session does not belong to the requesting user",
		Status:  http.StatusForbidden,
		Details: map[string]any{"session_user": sessionUser, "request_user": requestUser},
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
		Status:  http.StatusConflict,
	}
}

// Store errors
func StoreError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeStoreError,
		Message: fmt.Sprintf("store error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func CacheError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeCacheError,
		Message: fmt.Sprintf("cache error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Remote mail provider errors
func RemoteTransient(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeRemoteTransient,
		Message: fmt.Sprintf("remote mail call failed: %s", operation),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func RemotePermanent(message string, err error) *AppError {
	return &AppError{
		Code:    CodeRemotePermanent,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

// Job errors
func JobNotFound(jobID string) *AppError {
	return &AppError{
		Code:    CodeJobNotFound,
		Message: fmt.Sprintf("job %s not found", jobID),
		Status:  http.StatusNotFound,
	}
}

func JobInvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    CodeJobInvalidTransition,
		Message: fmt.Sprintf("invalid job status transition: %s -> %s", from, to),
		Status:  http.StatusConflict,
		Details: map[string]any{"from": from, "to": to},
	}
}

// Analysis errors
func AnalyzerTimeout(analyzer string) *AppError {
	return &AppError{
		Code:    CodeAnalyzerTimeout,
		Message: fmt.Sprintf("analyzer timed out: %s", analyzer),
		Status:  http.StatusGatewayTimeout,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// Common error instances
var (
	ErrNotFound    = NotFound("resource")
	ErrBadRequest  = BadRequest("bad request")
	ErrInternal    = Internal("")
	ErrRateLimited = New("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
)

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// Code extracts the error code, or CodeInternalError for foreign errors.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
