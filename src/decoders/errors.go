package decoders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode matches every decoding failure via errors.Is
	ErrDecode = errors.New("decode error")

	// ErrInvalidFields is returned by ValidateFields
	ErrInvalidFields = errors.New("invalid field selection")
)

// -----------------------------------------------------------------------------

// MissingFieldError reports a required field that was never received.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %s", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrDecode
}

// -----------------------------------------------------------------------------

// MalformedFieldError reports a value that could not be parsed.
type MalformedFieldError struct {
	Field string
	Raw   string
	Err   error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed field %s=%q: %v", e.Field, e.Raw, e.Err)
}

func (e *MalformedFieldError) Unwrap() error {
	return e.Err
}

func (e *MalformedFieldError) Is(target error) bool {
	return target == ErrDecode
}

// -----------------------------------------------------------------------------

// IgnoredFieldsError comes with a usable event: the listed optional fields
// were malformed and decoded as unknown. It does not match ErrDecode.
type IgnoredFieldsError struct {
	Fields []*MalformedFieldError
}

func (e *IgnoredFieldsError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "ignored " + strings.Join(parts, "; ")
}

// Fatal reports whether err means no event could be decoded.
func Fatal(err error) bool {
	var ignored *IgnoredFieldsError
	return err != nil && !errors.As(err, &ignored)
}
