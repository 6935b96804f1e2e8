package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError covers missing or malformed input: coordinates, comment
// text, webhook fields.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// UnauthorizedError covers a bad or missing service key as well as
// unauthenticated citizens.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// NotFoundError is returned both when an alert does not exist and when it
// exists but belongs to another citizen, so existence is never leaked.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string { return e.Reason }

// UnsupportedMediaError is returned when a file's MIME type matches no
// processing strategy.
type UnsupportedMediaError struct {
	MimeType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media type: %s", e.MimeType)
}

// UnrecognizedAssetKindError is returned when a proof URL matches none of
// the known storage folders.
type UnrecognizedAssetKindError struct {
	URL string
}

func (e *UnrecognizedAssetKindError) Error() string {
	return fmt.Sprintf("unrecognized asset kind in url: %s", e.URL)
}

// ProcessingError covers encode or transcode failures on the primary asset.
// Video thumbnail failures are not processing errors; those degrade instead.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) error {
	return &UnauthorizedError{Reason: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &NotFoundError{Reason: fmt.Sprintf(format, args...)}
}

func Processing(reason string, err error) error {
	return &ProcessingError{Reason: reason, Err: err}
}

// HTTPStatus maps an error to the response status for the handler boundary.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation  *ValidationError
		unauth      *UnauthorizedError
		notFound    *NotFoundError
		unsupported *UnsupportedMediaError
		unrecog     *UnrecognizedAssetKindError
		processing  *ProcessingError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &unsupported),
		errors.As(err, &unrecog), errors.As(err, &processing):
		return http.StatusBadRequest
	case errors.As(err, &unauth):
		return http.StatusUnauthorized
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
