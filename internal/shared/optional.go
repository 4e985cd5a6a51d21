package shared

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Optional distinguishes a field that was supplied from one that was left out.
// A supplied JSON null is present with IsNull reporting true, which lets patch
// payloads clear nullable columns while absent fields stay untouched.
type Optional[T any] struct {
	value   T
	present bool
	null    bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Null returns a present Optional that carries an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{present: true, null: true}
}

// Present reports whether the field was supplied.
func (o Optional[T]) Present() bool { return o.present }

// IsNull reports whether the field was supplied as an explicit null.
func (o Optional[T]) IsNull() bool { return o.present && o.null }

// Get returns the value and whether it holds a non-null value.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present && !o.null
}

// OrElse returns the value, or fallback when absent or null.
func (o Optional[T]) OrElse(fallback T) T {
	if v, ok := o.Get(); ok {
		return v
	}
	return fallback
}

// IsZero makes `omitzero` drop absent fields when marshalling.
func (o Optional[T]) IsZero() bool { return !o.present }

// UnmarshalJSON marks the field present.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.null = true
		var zero T
		o.value = zero
		return nil
	}
	o.null = false
	return json.Unmarshal(data, &o.value)
}

// MarshalJSON writes the value, or null when absent or null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.present || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// PresentText returns the trimmed string when o holds a non-blank value.
// Blank strings count as absent, matching how forms submit untouched inputs.
func PresentText(o Optional[string]) (string, bool) {
	v, ok := o.Get()
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// NumericText is a string field that older clients send as a JSON number,
// such as a phone number typed into a numeric input.
type NumericText string

// UnmarshalJSON accepts a JSON string or number.
func (t *NumericText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = NumericText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = NumericText(n.String())
	return nil
}

// TextOf converts an optional NumericText into an optional string.
func TextOf(o Optional[NumericText]) Optional[string] {
	switch {
	case !o.Present():
		return None[string]()
	case o.IsNull():
		return Null[string]()
	}
	v, _ := o.Get()
	return Some(string(v))
}
