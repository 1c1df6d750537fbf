package matching

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a user or listing that no longer exists. Read
	// paths skip the record and continue; it never fails a whole query.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable marks a backing-store failure. Reads degrade
	// to recomputation where possible; writes propagate it to the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports a malformed input value. It is surfaced to the
// caller verbatim, never silently coerced.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
