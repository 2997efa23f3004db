// Package kit provides small generic value types shared across the domain.
package kit

import "encoding/json"

// Opt is an optional value that distinguishes "not supplied" from
// "supplied as the zero value". Partial-update requests use it so that
// only fields the caller actually sent reach the update statement.
type Opt[T any] struct {
	Value T
	Valid bool
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Valid: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it was supplied.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// UnmarshalJSON marks the field as supplied whenever the key is present
// in the payload, including an explicit null (which decodes to the zero
// value and means "clear").
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Valid = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON encodes the held value; absent fields encode as null and
// rely on omitzero at the struct tag level to disappear entirely.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// IsZero reports absence, wiring Opt into encoding/json's omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.Valid
}
