// Package errors defines the CDMI error taxonomy used throughout Stoxy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// CDMIError represents a Stoxy error with a machine-readable code, a
// human-readable message and the HTTP status code it maps to at the
// request-handler boundary.
type CDMIError struct {
	// Code is the taxonomy name (e.g., "NotFound", "NameConflict").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return.
	HTTPStatus int
}

// Error implements the error interface for CDMIError.
func (e *CDMIError) Error() string {
	return e.Message
}

// Is reports whether target is a CDMIError with the same code, so copies made
// by WithMessage still match their sentinel.
func (e *CDMIError) Is(target error) bool {
	t, ok := target.(*CDMIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the CDMIError with a different message.
func (e *CDMIError) WithMessage(format string, args ...any) *CDMIError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Pre-defined errors for the taxonomy.
var (
	// ErrMalformedURI is returned when a backend URI lacks the scheme delimiter.
	ErrMalformedURI = &CDMIError{
		Code:       "MalformedURI",
		Message:    "The backend URI is malformed",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrUnknownBackend is returned when no store is registered for a scheme.
	ErrUnknownBackend = &CDMIError{
		Code:       "UnknownBackend",
		Message:    "No backend store is registered for the scheme",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrCredentialsRequired is returned by remote stores called without credentials.
	ErrCredentialsRequired = &CDMIError{
		Code:       "CredentialsRequired",
		Message:    "The backend store requires credentials",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrNotFound is returned for missing content or missing hierarchy nodes.
	ErrNotFound = &CDMIError{
		Code:       "NotFound",
		Message:    "Not found",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrNameConflict is returned when a parent already holds a child by that name.
	ErrNameConflict = &CDMIError{
		Code:       "NameConflict",
		Message:    "An entity with this name already exists in the container",
		HTTPStatus: http.StatusConflict,
	}

	// ErrContainerNotEmpty is returned when deleting a container with children.
	ErrContainerNotEmpty = &CDMIError{
		Code:       "ContainerNotEmpty",
		Message:    "Attempt to delete a non-empty container",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrStaleReference is returned for operations on a deleted entity reference.
	ErrStaleReference = &CDMIError{
		Code:       "StaleReference",
		Message:    "The entity reference is no longer attached to the hierarchy",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrValidationFailed is returned when an entity does not satisfy its schema.
	ErrValidationFailed = &CDMIError{
		Code:       "ValidationFailed",
		Message:    "Validation failed",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrForbidden is returned when the principal lacks a permission. CDMI
	// masks it as not-found.
	ErrForbidden = &CDMIError{
		Code:       "Forbidden",
		Message:    "Not found",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrBadRequest is returned for malformed requests.
	ErrBadRequest = &CDMIError{
		Code:       "BadRequest",
		Message:    "Bad request",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrMethodNotAllowed is returned for verbs a node does not support.
	ErrMethodNotAllowed = &CDMIError{
		Code:       "MethodNotAllowed",
		Message:    "The specified method is not allowed against this resource",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	// ErrInternal is returned for unexpected internal failures.
	ErrInternal = &CDMIError{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// ValidationError carries per-field validation messages. It unwraps to
// ErrValidationFailed.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// Add records a message for the field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Err returns e if any field failed, or nil.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StatusOf maps any error to the HTTP status the handler should respond with.
// Unknown errors map to 500.
func StatusOf(err error) int {
	var cdmiErr *CDMIError
	if errors.As(err, &cdmiErr) {
		return cdmiErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeOf returns the taxonomy code of err, or the Go type name for errors
// outside the taxonomy.
func CodeOf(err error) string {
	var cdmiErr *CDMIError
	if errors.As(err, &cdmiErr) {
		return cdmiErr.Code
	}
	return fmt.Sprintf("%T", err)
}
