// Package transfer builds and validates the portable log and config files.
//
// Parsing is all-or-nothing at the file level: a file either yields a fully
// typed value or a *[ValidationError]. Inside a valid log file, individual
// malformed entries and results are dropped rather than failing the import.
package transfer

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *[ValidationError].
var ErrValidation = errors.New("invalid transfer file")

// ValidationError describes why a file was rejected.
type ValidationError struct {
	// Field is the JSON path of the offending field, empty for
	// whole-document problems.
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports whether target is [ErrValidation].
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
