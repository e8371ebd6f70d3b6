package trcio

import (
	"errors"
	"fmt"
)

// Sentinel errors for loader/serializer failures (SPEC_FULL.md §4.D, §7).
var (
	// ErrMalformed indicates the document did not match the expected
	// element vocabulary.
	ErrMalformed = errors.New("trcio: malformed document")

	// ErrIncludeUnterminated indicates a "trc:include" comment with no
	// matching "trc:include-end".
	ErrIncludeUnterminated = errors.New("trcio: unterminated include marker")

	// ErrLocked indicates the database file's advisory lock could not be
	// acquired within the configured timeout.
	ErrLocked = errors.New("trcio: database file is locked by another writer")
)

// DocumentError wraps a parse failure with the element path at which it
// occurred, so a caller can report a name-keyed element path such as
// "//test[suite/basic]/iter" rather than a bare byte offset.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("trcio: %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }
