package roster

import (
	"errors"
	"strings"
)

// ErrNotFound means no student holds the requested key.
var ErrNotFound = errors.New("student not found")

// ErrDuplicateID means another live student already holds the natural key.
var ErrDuplicateID = errors.New("student id already exists")

// ValidationError reports required fields that were missing or blank after
// trimming.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}
