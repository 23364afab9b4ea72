package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a required record is missing.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousMatch indicates a natural key matched more than one record.
	// It also matches ErrNotFound: callers refuse to guess.
	ErrAmbiguousMatch = fmt.Errorf("ambiguous match: %w", ErrNotFound)
	// ErrInvalidState indicates a rejected state transition.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a duplicate or concurrent request.
	ErrConflict = errors.New("conflict")
	// ErrDataIntegrity indicates stored data violates an invariant the operation relies on.
	ErrDataIntegrity = errors.New("data integrity violation")
)
