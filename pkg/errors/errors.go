// Package errors defines the sentinel errors shared by the document
// generation service and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrMalformedTable        = errors.New("malformed table")
	ErrUnreadableSpreadsheet = errors.New("unreadable spreadsheet")
	ErrEmptyTable            = errors.New("empty table")
	ErrMissingColumns        = errors.New("missing columns")
	ErrDuplicateIdentifier   = errors.New("duplicate identifier")
	ErrRenderFailure         = errors.New("render failure")
	ErrArchiveFailure        = errors.New("archive failure")

	ErrInvalidInput    = errors.New("invalid input")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInternal        = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsInputError reports whether err is a problem the caller can fix by
// correcting the uploaded file.
func IsInputError(err error) bool {
	switch {
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrMalformedTable),
		errors.Is(err, ErrUnreadableSpreadsheet),
		errors.Is(err, ErrEmptyTable),
		errors.Is(err, ErrMissingColumns),
		errors.Is(err, ErrDuplicateIdentifier),
		errors.Is(err, ErrInvalidInput):
		return true
	}
	return false
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

var kinds = []struct {
	sentinel error
	name     string
}{
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrMalformedTable, "malformed_table"},
	{ErrUnreadableSpreadsheet, "unreadable_spreadsheet"},
	{ErrEmptyTable, "empty_table"},
	{ErrMissingColumns, "missing_columns"},
	{ErrDuplicateIdentifier, "duplicate_identifier"},
	{ErrRenderFailure, "render_failure"},
	{ErrArchiveFailure, "archive_failure"},
	{ErrPayloadTooLarge, "payload_too_large"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrRateLimited, "rate_limited"},
	{ErrNotFound, "not_found"},
}

// Kind names the sentinel err matches, or "internal". The set of names is
// fixed, so it is safe as a metric label or aggregation key.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}
	return "internal"
}
