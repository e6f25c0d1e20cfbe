package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecoderError is implemented by every error this package produces. The
// property path is collected leaf-first while a failure unwinds through
// enclosing containers, and rendered root-first by Error(), so a deep
// failure reads like ["data"]["event"]["outcomes"][0]["id"].
type DecoderError interface {
	error
	// PropertyPath returns the segments from the root value to the failing
	// element, root-first. Segments are string keys or int indexes.
	PropertyPath() []any
	chain(segment any)
}

type propertyPath struct {
	segments []any // leaf-first
}

func (p *propertyPath) chain(segment any) {
	p.segments = append(p.segments, segment)
}

func (p *propertyPath) PropertyPath() []any {
	out := make([]any, len(p.segments))
	for i, seg := range p.segments {
		out[len(p.segments)-1-i] = seg
	}
	return out
}

func (p *propertyPath) describePath() string {
	if len(p.segments) == 0 {
		return "the root value"
	}
	var b strings.Builder
	for i := len(p.segments) - 1; i >= 0; i-- {
		if key, ok := p.segments[i].(string); ok {
			fmt.Fprintf(&b, "[%q]", key)
		} else {
			fmt.Fprintf(&b, "[%v]", p.segments[i])
		}
	}
	return b.String()
}

// Chain records that a failing value was reached through the given key or
// index of an enclosing container. Errors from outside this package pass
// through untouched.
func Chain(err error, segment any) error {
	var de DecoderError
	if errors.As(err, &de) {
		de.chain(segment)
	}
	return err
}

// WrongTypeError reports a value whose JSON type does not match what the
// decoder expected.
type WrongTypeError struct {
	propertyPath
	Expected string
	Value    any
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("property %v of type %s at %s has the wrong type, expected %s",
		e.Value, jsonTypeName(e.Value), e.describePath(), e.Expected)
}

// MissingPropertyError reports an object key or array index that is absent
// from the data. Absence is distinct from a present-but-invalid value.
type MissingPropertyError struct {
	propertyPath
	Expected string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("unable to find %s property located at %s", e.Expected, e.describePath())
}

// UnionParseError reports that every variant of a union decoder failed. The
// per-variant errors are retained whole.
type UnionParseError struct {
	propertyPath
	Expected string
	Errors   []error
}

func (e *UnionParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot decode property at %s as %s, all variants failed:", e.describePath(), e.Expected)
	for _, err := range e.Errors {
		b.WriteString("\n\t")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *UnionParseError) Unwrap() []error { return e.Errors }

// InvalidValueError reports a value of the right JSON type whose content is
// outside the decoder's domain, e.g. an unknown enum string or a timestamp
// that does not parse.
type InvalidValueError struct {
	propertyPath
	Value any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for property at %s: type: %s, value: %v",
		e.describePath(), jsonTypeName(e.Value), e.Value)
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64, int, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
