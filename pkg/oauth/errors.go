package oauth

import (
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable error identifier returned in the
// "error" field of OAuth error responses. The first five values follow
// RFC 6749 section 5.2.
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidRedirectURI      ErrorCode = "invalid_redirect_uri"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrNotFound                ErrorCode = "not_found"
	ErrConfiguration           ErrorCode = "configuration_error"
	ErrUpstream                ErrorCode = "upstream_error"
)

// Error is an OAuth protocol error carrying the wire-format code and a
// human-readable description.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

// NewError creates an OAuth error with the given code and description.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus maps the error code to the status the HTTP surface responds
// with. Protocol violations are 400s; only missing configuration and
// upstream faults surface as 500s.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConfiguration, ErrUpstream:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
