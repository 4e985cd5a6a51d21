// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrReference    = errors.New("referenced record does not exist")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// InternalMessage is the only text a client ever sees for unexpected failures.
const InternalMessage = "An error occurred while executing the query."

// Error is a client-facing error: Kind selects the status code and Message is
// returned verbatim. Problems lists every field violation for validation errors.
type Error struct {
	Kind     error
	Message  string
	Problems []string
}

func (e *Error) Error() string {
	if e.Message == "" && e.Kind != nil {
		return e.Kind.Error()
	}
	return e.Message
}

// Is lets errors.Is match the sentinel kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NotFound builds a 404 error.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Message: msg} }

// Conflict builds a 409 error.
func Conflict(msg string) error { return &Error{Kind: ErrConflict, Message: msg} }

// Duplicate builds a 409 error for uniqueness violations.
func Duplicate(msg string) error { return &Error{Kind: ErrDuplicate, Message: msg} }

// Unauthorized builds a 401 error.
func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Message: msg} }

// Forbidden builds a 403 error.
func Forbidden(msg string) error { return &Error{Kind: ErrForbidden, Message: msg} }

// Validation builds a 400 error carrying every problem found.
func Validation(msg string, problems ...string) error {
	return &Error{Kind: ErrValidation, Message: msg, Problems: problems}
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrReference):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor returns the client-facing message for err.
func MessageFor(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	switch {
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error()
	case errors.Is(err, ErrReference):
		return ErrReference.Error()
	case errors.Is(err, ErrUnauthorized):
		return "Invalid credentials"
	case errors.Is(err, ErrForbidden):
		return ErrForbidden.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConflict):
		return ErrDuplicate.Error()
	default:
		return InternalMessage
	}
}

// ProblemsFor returns the per-field problems attached to err, if any.
func ProblemsFor(err error) []string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Problems
	}
	var withProblems interface{ ValidationProblems() []string }
	if errors.As(err, &withProblems) {
		return withProblems.ValidationProblems()
	}
	return nil
}
