// Package apperr defines the error taxonomy shared by every pipeline stage.
// Handlers map these to HTTP status codes; services wrap them with context
// via fmt.Errorf("...: %w", ...).
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound is returned when an entity lookup yields nothing.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned when an upload matches an existing document
	// by (user, hash). The existing document travels with the error.
	ErrConflict = errors.New("document already exists")

	// ErrUnsupportedLanguage is returned when a target language code is not
	// present in the language collection.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrLanguageNotDetected is returned when detection yields nothing and
	// no fallback language exists.
	ErrLanguageNotDetected = errors.New("language could not be detected")

	// ErrUpstreamUnavailable marks a connectivity failure to an external
	// service, so callers can present retry-later instead of a generic error.
	ErrUpstreamUnavailable = errors.New("upstream service unreachable")

	// ErrUpstreamRejected marks an external service that was reachable but
	// returned an error status.
	ErrUpstreamRejected = errors.New("upstream service rejected request")

	// ErrTimeout is returned when the translation poll loop exceeds its budget.
	ErrTimeout = errors.New("operation timed out")

	// ErrValidation is returned for missing or malformed request fields.
	ErrValidation = errors.New("validation failed")
)

// ConflictError carries the already-stored document back to the caller so the
// handler can return it instead of an error body.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string { return "document already exists: " + e.ExistingID }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// HTTPStatus maps a pipeline error to the status code the cmd handlers write.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnsupportedLanguage),
		errors.Is(err, ErrLanguageNotDetected),
		errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstreamRejected):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
