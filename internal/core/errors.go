package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ErrUnknownCollection is returned when a request names a collection that is
// not registered.
var ErrUnknownCollection = errors.New("unknown collection")

// RequestValidationError rejects a malformed request before any row is
// processed.
type RequestValidationError struct {
	Problems []string
}

func (e *RequestValidationError) Error() string {
	return "invalid import request: " + strings.Join(e.Problems, "; ")
}

// MappingError is a failure while mapping one row.
type MappingError struct {
	Row int // 1-based
	Err error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("Row %d mapping error: %v", e.Row, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// MissingCompareFieldError is returned in update mode when the record has no
// value for the compare field.
type MissingCompareFieldError struct {
	Field string
}

func (e *MissingCompareFieldError) Error() string {
	return fmt.Sprintf(`missing compare field "%s"`, e.Field)
}

// RecordNotFoundError is returned in update mode when no document matches.
type RecordNotFoundError struct {
	Field string
	Value any
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf(`record with %s="%v" not found`, e.Field, e.Value)
}

// StorePersistError wraps a store failure during create, find or update.
type StorePersistError struct {
	Op  string
	Err error
}

func (e *StorePersistError) Error() string { return e.Err.Error() }

func (e *StorePersistError) Unwrap() error { return e.Err }

// RowError attaches a 1-based row number to a resolution failure.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// FetchStatusError is a non-2xx response from a media URL.
type FetchStatusError struct {
	URL        string
	StatusCode int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// NotImageError is a media response whose content type is not an image.
type NotImageError struct {
	URL         string
	ContentType string
}

func (e *NotImageError) Error() string {
	return fmt.Sprintf("fetch %s: content type %q is not an image", e.URL, e.ContentType)
}

// UnexpectedError is an orchestration failure that aborts the run.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return "unexpected import failure: " + e.Err.Error()
}

func (e *UnexpectedError) Unwrap() error { return e.Err }
