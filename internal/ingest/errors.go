package ingest

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Request-level failures. Both are returned before any store write.
var (
	ErrMalformedInput = eris.New("ingest: malformed input")
	ErrInvalidSchema  = eris.New("ingest: invalid schema")
)

// SkipError marks a record or custom field entry that is ignored without
// being treated as a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skip: " + e.Reason
}

func skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err is a SkipError.
func IsSkip(err error) bool {
	var s *SkipError
	return errors.As(err, &s)
}

// StoreError wraps a failed store operation for a single record.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
