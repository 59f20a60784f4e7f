package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies a class of failure in the check pipeline.
type ErrorCode string

const (
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"

	// Policy rejections. Always checked before any upstream call.
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeLockedOut      ErrorCode = "LOCKED_OUT"
	ErrCodeQuotaExhausted ErrorCode = "QUOTA_EXHAUSTED"
	ErrCodeNotRegistered  ErrorCode = "NOT_REGISTERED"

	// Upstream outcomes.
	ErrCodeCookieExpired  ErrorCode = "COOKIE_EXPIRED"
	ErrCodeNoData         ErrorCode = "NO_DATA"
	ErrCodeUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamStatus ErrorCode = "UPSTREAM_STATUS"

	// Local infrastructure.
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeCache    ErrorCode = "CACHE_ERROR"
	ErrCodeTelegram ErrorCode = "TELEGRAM_API_ERROR"

	// QR login flow.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExpired  ErrorCode = "SESSION_EXPIRED"
	ErrCodeSessionState    ErrorCode = "SESSION_BAD_STATE"
)

// AppError is the typed error carried across the service boundaries.
type AppError struct {
	Code      ErrorCode         `json:"code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    int64             `json:"user_id,omitempty"`
	Cause     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsPolicy reports whether the error is a local policy rejection rather than an
// upstream or infrastructure failure.
func (e *AppError) IsPolicy() bool {
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeLockedOut, ErrCodeQuotaExhausted, ErrCodeNotRegistered:
		return true
	}
	return false
}

func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// AsAppError converts err to *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil {
		appErr, _ = err.(*AppError)
	}
	return appErr, appErr != nil
}

func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, fmt.Sprintf("Database operation failed: %s", operation)).
		WithContext("operation", operation)
}

func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCache, fmt.Sprintf("Cache operation failed: %s", operation)).
		WithContext("operation", operation)
}

func NewTelegramAPIError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeTelegram, fmt.Sprintf("Telegram API operation failed: %s", operation)).
		WithContext("operation", operation)
}
