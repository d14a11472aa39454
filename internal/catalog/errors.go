package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable indicates the catalog source could not be read.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
	// ErrCatalogEmpty indicates the catalog source returned no rows.
	ErrCatalogEmpty = errors.New("catalog: empty")
	// ErrInvalidWorkbook indicates an import file that cannot be mapped onto submissions.
	ErrInvalidWorkbook = errors.New("catalog: invalid workbook")
	errMissingDatabase = errors.New("database handle is required")
)

// Error reports a failed catalog operation. It matches its kind sentinel and its
// underlying cause with errors.Is.
type Error struct {
	code  string
	kind  error
	cause error
}

func newError(operation, reason string, kind, cause error) error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), kind: kind, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.code, e.kind, e.cause)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Code returns the dotted error code.
func (e *Error) Code() string {
	return e.code
}
