package wordcount

import (
	"errors"
	"fmt"
)

// ErrEmptyIdentifier reports a user lookup without a usable identifier.
var ErrEmptyIdentifier = errors.New("wordcount: empty identifier")

// TransientFetchError reports a network failure, timeout, or overloaded
// upstream. Callers may retry it.
type TransientFetchError struct {
	Kind  ResourceKind
	Key   string
	Cause error
}

// Error returns a readable transient fetch error.
func (e *TransientFetchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	return fmt.Sprintf("transient fetch %s %q: %v", e.Kind, e.Key, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransientFetchError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// MalformedResponseError reports a response that could not be decoded.
type MalformedResponseError struct {
	Kind  ResourceKind
	Key   string
	Cause error
}

// Error returns a readable malformed response error.
func (e *MalformedResponseError) Error() string {
	if e == nil {
		return "<nil>"
	}

	return fmt.Sprintf("malformed response %s %q: %v", e.Kind, e.Key, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MalformedResponseError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// FieldMissingError reports a well-formed payload lacking a required field.
type FieldMissingError struct {
	Kind  ResourceKind
	Key   string
	Field string
}

// Error returns a readable missing field error.
func (e *FieldMissingError) Error() string {
	if e == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s %q: missing field %s", e.Kind, e.Key, e.Field)
}

// IsTransient reports whether err carries a TransientFetchError.
func IsTransient(err error) bool {
	var transient *TransientFetchError

	return errors.As(err, &transient)
}

// IsMalformed reports whether err carries a MalformedResponseError.
func IsMalformed(err error) bool {
	var malformed *MalformedResponseError

	return errors.As(err, &malformed)
}

// IsFieldMissing reports whether err carries a FieldMissingError.
func IsFieldMissing(err error) bool {
	var missing *FieldMissingError

	return errors.As(err, &missing)
}
