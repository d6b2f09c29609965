// Package apierr maps internal failures onto the stable error
// taxonomy exposed by the HTTP API and owns the cleanup of per-request
// temp resources before an error response is written.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tech-arch1tect/clipstream/services/session"
	"github.com/tech-arch1tect/clipstream/services/storage"
	"github.com/tech-arch1tect/clipstream/services/token"
	"github.com/tech-arch1tect/clipstream/services/user"
)

type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeMissingFields      Code = "MISSING_FIELDS"
	CodeDuplicateIdentity  Code = "DUPLICATE_IDENTITY"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeRefreshReuse       Code = "REFRESH_REUSED_OR_REVOKED"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeUploadFailed       Code = "UPLOAD_FAILED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Status  int
	Code    Code
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func InvalidCredentials() *Error {
	return New(http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials")
}

func MissingFields(message string) *Error {
	return New(http.StatusBadRequest, CodeMissingFields, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func ValidationFailed(fields ...FieldError) *Error {
	e := New(http.StatusBadRequest, CodeValidationFailed, "Validation failed")
	e.Fields = fields
	return e
}

// Classify translates service-layer errors into the external
// taxonomy. Anything it does not recognise comes back as a generic
// internal error so details never leak by accident.
func Classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		return InvalidCredentials()
	case errors.Is(err, user.ErrMissingIdentifier):
		return MissingFields("Please provide either email or username")
	case errors.Is(err, user.ErrDuplicateUsername):
		return &Error{
			Status:  http.StatusConflict,
			Code:    CodeDuplicateIdentity,
			Message: "User with this username already exists",
			Fields:  []FieldError{{Field: "username", Message: "username must be unique"}},
		}
	case errors.Is(err, user.ErrDuplicateEmail):
		return &Error{
			Status:  http.StatusConflict,
			Code:    CodeDuplicateIdentity,
			Message: "User with this email already exists",
			Fields:  []FieldError{{Field: "email", Message: "email must be unique"}},
		}
	case errors.Is(err, user.ErrPasswordTooShort):
		return &Error{
			Status:  http.StatusBadRequest,
			Code:    CodeValidationFailed,
			Message: "Validation failed",
			Fields:  []FieldError{{Field: "password", Message: err.Error()}},
		}
	case errors.Is(err, user.ErrUserNotFound):
		return New(http.StatusNotFound, CodeNotFound, "User not found")
	case errors.Is(err, session.ErrSessionNotFound):
		return New(http.StatusUnauthorized, CodeRefreshReuse, "Refresh token is expired or used")
	case errors.Is(err, token.ErrExpiredToken):
		return New(http.StatusUnauthorized, CodeTokenExpired, "Token expired")
	case errors.Is(err, token.ErrMalformedToken),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrWrongKind),
		errors.Is(err, token.ErrInvalidToken):
		return New(http.StatusUnauthorized, CodeInvalidToken, "Invalid token")
	case errors.Is(err, storage.ErrUploadFailed):
		return New(http.StatusInternalServerError, CodeUploadFailed, "Upload failed")
	default:
		return New(http.StatusInternalServerError, CodeInternal, "Internal server error. Please try again later.")
	}
}
