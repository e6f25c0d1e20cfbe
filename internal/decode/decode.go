// Package decode implements a strict decoder for the untyped JSON values
// (map[string]any, []any) Twitch sends over GQL and the event socket. Unlike
// encoding/json struct tags, it reports the exact property path of the first
// offending value, keeps every variant error when a union fails, and
// distinguishes a missing property from an invalid one.
package decode

import (
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// A Decoder turns one untyped JSON value into a T. Decoders compose: List,
// MapOf and Union build bigger decoders out of smaller ones, and domain
// packages define their own Decoder values on top of these.
type Decoder[T any] func(v any) (T, error)

// Any accepts every value unchanged.
func Any(v any) (any, error) { return v, nil }

// Null accepts only JSON null.
func Null(v any) (any, error) {
	if v != nil {
		return nil, &WrongTypeError{Expected: "null", Value: v}
	}
	return nil, nil
}

// Bool accepts a JSON boolean.
func Bool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &WrongTypeError{Expected: "bool", Value: v}
	}
	return b, nil
}

// String accepts a JSON string.
func String(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &WrongTypeError{Expected: "string", Value: v}
	}
	return s, nil
}

// Int accepts a JSON number with no fractional part. A boolean is never an
// int, and a float with decimals does not truncate.
func Int(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	}
	return 0, &WrongTypeError{Expected: "int", Value: v}
}

// Float accepts any JSON number. Integers promote to float.
func Float(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	}
	return 0, &WrongTypeError{Expected: "float", Value: v}
}

// Object accepts a JSON object.
func Object(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &WrongTypeError{Expected: "object", Value: v}
	}
	return m, nil
}

// Array accepts a JSON array.
func Array(v any) ([]any, error) {
	a, ok := v.([]any)
	if !ok {
		return nil, &WrongTypeError{Expected: "array", Value: v}
	}
	return a, nil
}

// Time accepts an ISO-8601 timestamp string with optional fractional seconds
// and a Z or numeric offset, e.g. "2024-05-13T21:25:27.179Z". The result is
// normalized to UTC.
func Time(v any) (time.Time, error) {
	s, err := String(v)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &InvalidValueError{Value: v}
	}
	return t.UTC(), nil
}

// List decodes a JSON array whose elements all decode with elem. The index
// of the first failing element is chained onto its error.
func List[T any](elem Decoder[T]) Decoder[[]T] {
	return func(v any) ([]T, error) {
		arr, err := Array(v)
		if err != nil {
			return nil, err
		}
		out := make([]T, len(arr))
		for i, item := range arr {
			dec, err := elem(item)
			if err != nil {
				return nil, Chain(err, i)
			}
			out[i] = dec
		}
		return out, nil
	}
}

// MapOf decodes a JSON object whose values all decode with elem.
func MapOf[T any](elem Decoder[T]) Decoder[map[string]T] {
	return func(v any) (map[string]T, error) {
		obj, err := Object(v)
		if err != nil {
			return nil, err
		}
		out := make(map[string]T, len(obj))
		for key, item := range obj {
			dec, err := elem(item)
			if err != nil {
				return nil, Chain(err, key)
			}
			out[key] = dec
		}
		return out, nil
	}
}

// Union tries each variant in order and returns the first success. When all
// fail the variant errors are aggregated into a single UnionParseError.
func Union[T any](name string, variants ...Decoder[T]) Decoder[T] {
	return func(v any) (T, error) {
		var zero T
		errs := make([]error, 0, len(variants))
		for _, variant := range variants {
			out, err := variant(v)
			if err == nil {
				return out, nil
			}
			errs = append(errs, err)
		}
		return zero, &UnionParseError{Expected: name, Errors: errs}
	}
}

// Property decodes the value under key with dec. A missing key is a
// MissingPropertyError; use OptionalProperty when absence is legal.
func Property[T any](data any, key string, dec Decoder[T]) (T, error) {
	var zero T
	obj, err := Object(data)
	if err != nil {
		return zero, err
	}
	item, ok := obj[key]
	if !ok {
		return zero, &MissingPropertyError{
			propertyPath: propertyPath{segments: []any{key}},
			Expected:     typeName[T](),
		}
	}
	out, err := dec(item)
	if err != nil {
		return zero, Chain(err, key)
	}
	return out, nil
}

// Index decodes the array element at position i with dec.
func Index[T any](data any, i int, dec Decoder[T]) (T, error) {
	var zero T
	arr, err := Array(data)
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= len(arr) {
		return zero, &MissingPropertyError{
			propertyPath: propertyPath{segments: []any{i}},
			Expected:     typeName[T](),
		}
	}
	out, err := dec(arr[i])
	if err != nil {
		return zero, Chain(err, i)
	}
	return out, nil
}

// Optional is the result of looking up a property that may legally be absent
// from its object. Absence (JSON undefined) is distinct from null.
type Optional[T any] struct {
	value   T
	defined bool
}

// Defined wraps a present value.
func Defined[T any](v T) Optional[T] {
	return Optional[T]{value: v, defined: true}
}

// Defined reports whether the property existed.
func (o Optional[T]) Defined() bool { return o.defined }

// Value returns the decoded value, or the zero value when undefined.
func (o Optional[T]) Value() T { return o.value }

// Or returns the decoded value, or fallback when undefined.
func (o Optional[T]) Or(fallback T) T {
	if o.defined {
		return o.value
	}
	return fallback
}

// OptionalProperty decodes the value under key with dec, reporting absence
// through the returned Optional instead of an error. A property that is
// present but fails to decode is still an error.
func OptionalProperty[T any](data any, key string, dec Decoder[T]) (Optional[T], error) {
	obj, err := Object(data)
	if err != nil {
		return Optional[T]{}, err
	}
	item, ok := obj[key]
	if !ok {
		return Optional[T]{}, nil
	}
	out, err := dec(item)
	if err != nil {
		return Optional[T]{}, Chain(err, key)
	}
	return Optional[T]{value: out, defined: true}, nil
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
