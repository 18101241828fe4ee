package models

import "encoding/json"

// -----------------------------------------------------------------------------

// MFieldState separates "never received" from "received but blank".
type MFieldState int

const (
	FieldUnknown MFieldState = iota
	FieldBlank
	FieldSet
)

func (s MFieldState) String() string {
	switch s {
	case FieldBlank:
		return "blank"
	case FieldSet:
		return "set"
	}
	return "unknown"
}

// -----------------------------------------------------------------------------

// MField is an optional typed value.
type MField[T any] struct {
	State MFieldState
	Value T
}

// Known returns a field holding v.
func Known[T any](v T) MField[T] {
	return MField[T]{State: FieldSet, Value: v}
}

// Blank returns a field the server sent without a value.
func Blank[T any]() MField[T] {
	return MField[T]{State: FieldBlank}
}

// IsSet reports whether the field carries a value.
func (f MField[T]) IsSet() bool { return f.State == FieldSet }

// Get returns the value and whether it is set.
func (f MField[T]) Get() (T, bool) { return f.Value, f.State == FieldSet }

// Or returns the value when set and fallback otherwise.
func (f MField[T]) Or(fallback T) T {
	if f.State == FieldSet {
		return f.Value
	}
	return fallback
}

// MarshalJSON renders unknown and blank fields as null.
func (f MField[T]) MarshalJSON() ([]byte, error) {
	if f.State != FieldSet {
		return []byte("null"), nil
	}
	return marshalValue(f.Value)
}

// UnmarshalJSON reads null as an unknown field.
func (f *MField[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = MField[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Known(v)
	return nil
}
