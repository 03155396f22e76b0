package savedsearch

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for missing or malformed fields
	ErrValidation = errors.New("invalid saved search")

	// ErrNotFound is returned when the id does not exist or is not visible
	ErrNotFound = errors.New("saved search not found")

	// ErrForbidden is returned when the caller does not own the search
	ErrForbidden = errors.New("saved search belongs to another user")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
