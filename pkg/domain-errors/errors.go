// Package domainerrors defines the closed error taxonomy carried across
// service boundaries. Services return these instead of raw store or network
// errors so transport layers can translate them into HTTP statuses in one
// place and callers can branch on the code rather than on message text.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of a domain error.
type Code string

const (
	// CodeValidation covers malformed roster rows, invalid roles and
	// invalid domain strings. Rejected before any write.
	CodeValidation Code = "validation"
	// CodeNotFound covers absent organizations, users and domains.
	CodeNotFound Code = "not_found"
	// CodeForbidden covers requesters that are not authorized verified
	// members of the organization they are editing.
	CodeForbidden Code = "forbidden"
	// CodeConflict covers a domain already held verified by another
	// organization, and optimistic-concurrency version mismatches.
	CodeConflict Code = "conflict"
	// CodeRateLimited covers verification attempts inside the per-domain
	// cooldown window.
	CodeRateLimited Code = "rate_limited"
	// CodePersistence covers transaction and bulk-write failures. Always
	// fatal for the request; the enclosing transaction is rolled back.
	CodePersistence Code = "persistence"
	// CodeTimeout covers cancelled or deadline-exceeded requests.
	CodeTimeout Code = "timeout"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a closed code and a user-presentable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err is (or wraps) a domain error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// non-domain errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-presentable message from err. Non-domain
// errors get a generic message so internals never leak to clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "an internal server error occurred"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
