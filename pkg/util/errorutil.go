package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the client, the CLI and the development backend.
const (
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountExists         = "ACCOUNT_EXISTS"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeAuthenticationExpired = "AUTHENTICATION_EXPIRED"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeCacheInconsistency    = "CACHE_INCONSISTENCY"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeNotFound              = "NOT_FOUND"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
)

// DetailTokenRefreshed is set on AUTHENTICATION_EXPIRED errors when the
// credential was refreshed and the operation may be retried by the caller.
const DetailTokenRefreshed = "token_refreshed"

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewInvalidCredentials carries the server's reason for rejecting a login.
func NewInvalidCredentials(message string) error {
	if message == "" {
		message = "invalid credentials"
	}
	return NewDomainError(CodeInvalidCredentials, message, http.StatusUnauthorized, nil)
}

func NewAccountExists(message string) error {
	if message == "" {
		message = "account already exists"
	}
	return NewDomainError(CodeAccountExists, message, http.StatusConflict, nil)
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewAuthenticationExpired reports an expired credential. refreshed tells the
// caller whether a new credential is already stored.
func NewAuthenticationExpired(message string, refreshed bool) error {
	if message == "" {
		message = "authentication expired"
	}
	return NewDomainError(CodeAuthenticationExpired, message, http.StatusUnauthorized,
		map[string]any{DetailTokenRefreshed: refreshed})
}

func NewNetworkUnavailable(err error) error {
	return &DomainError{
		Code:       CodeNetworkUnavailable,
		Message:    "network unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewCacheInconsistency exists for completeness; the cache layer prevents the
// condition by always writing server payloads.
func NewCacheInconsistency(message string) error {
	return NewDomainError(CodeCacheInconsistency, message, http.StatusInternalServerError, nil)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err (or anything it wraps) is a DomainError with code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// TokenRefreshed reports whether an AUTHENTICATION_EXPIRED error was followed by
// a successful credential refresh.
func TokenRefreshed(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != CodeAuthenticationExpired {
		return false
	}
	refreshed, _ := domainErr.Details[DetailTokenRefreshed].(bool)
	return refreshed
}
