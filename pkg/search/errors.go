package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for malformed filter values
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrNotFound is returned by stores and lookups for missing records
	ErrNotFound = errors.New("not found")

	// ErrRebuildInProgress is returned when another rebuild holds the lock
	ErrRebuildInProgress = errors.New("index rebuild already in progress")

	// ErrUnknownRecord is returned for a Record variant with no field extractor
	ErrUnknownRecord = errors.New("unknown record type")
)

// RowErrors lists source rows that could not be read. A Sources list call
// returns it together with the rows it did read; RebuildAll indexes those
// and counts each unreadable row as a failure.
type RowErrors struct {
	Table string
	Errs  []error
}

func (e *RowErrors) Error() string {
	return fmt.Sprintf("%d unreadable %s rows: %v", len(e.Errs), e.Table, errors.Join(e.Errs...))
}

func (e *RowErrors) Unwrap() []error {
	return e.Errs
}

func invalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
