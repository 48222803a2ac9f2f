package tle

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedElementSet reports element text that fails structural
	// validation: wrong length, wrong line number, bad checksum, mismatched
	// catalog numbers or an unparseable field.
	ErrMalformedElementSet = errors.New("malformed element set")

	// ErrOutOfRangeElement reports a field that parsed but violates its
	// physical range, e.g. eccentricity >= 1.
	ErrOutOfRangeElement = errors.New("element out of range")
)

// FieldError locates a parse failure within an element set.
type FieldError struct {
	Line   int    // 1 or 2; 0 when the failure spans both lines
	Field  string // field name, e.g. "eccentricity"
	Value  string // raw column text
	Reason string
	Err    error // ErrMalformedElementSet or ErrOutOfRangeElement
}

func (e *FieldError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v: line %d %s %q: %s", e.Err, e.Line, e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

func malformed(line int, field, value, reason string) error {
	return &FieldError{Line: line, Field: field, Value: value, Reason: reason, Err: ErrMalformedElementSet}
}

func outOfRange(line int, field, value, reason string) error {
	return &FieldError{Line: line, Field: field, Value: value, Reason: reason, Err: ErrOutOfRangeElement}
}
