package decode

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestPrimitives(t *testing.T) {
	t.Run("int accepts integral numbers", func(t *testing.T) {
		for _, raw := range []string{"0", "1", "-1", "100", "1234", "-1234", "456832234568", "-32762347697689"} {
			got, err := Int(mustJSON(t, raw))
			require.NoError(t, err, raw)
			assert.Equal(t, mustJSON(t, raw), float64(got), raw)
		}
	})

	t.Run("int rejects everything else", func(t *testing.T) {
		for _, v := range []any{nil, false, true, "", "test value", "12", 12.5, map[string]any{}, []any{1}} {
			_, err := Int(v)
			require.Error(t, err)
			var wrong *WrongTypeError
			assert.ErrorAs(t, err, &wrong)
		}
	})

	t.Run("float promotes ints", func(t *testing.T) {
		got, err := Float(7)
		require.NoError(t, err)
		assert.Equal(t, 7.0, got)

		got, err = Float(mustJSON(t, "12.75"))
		require.NoError(t, err)
		assert.Equal(t, 12.75, got)
	})

	t.Run("string passes odd content through", func(t *testing.T) {
		for _, s := range []string{"", "some value", "437683947", "       ", "multiline\nstring", "zero width ​ and combining ́", "emojis \U0001F600 and \U0001F970"} {
			got, err := String(s)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
		_, err := String(437683947)
		assert.Error(t, err)
	})

	t.Run("bool is strict both ways", func(t *testing.T) {
		got, err := Bool(true)
		require.NoError(t, err)
		assert.True(t, got)
		for _, v := range []any{0, 1, "true", nil} {
			_, err := Bool(v)
			assert.Error(t, err)
		}
	})

	t.Run("null", func(t *testing.T) {
		_, err := Null(nil)
		require.NoError(t, err)
		for _, v := range []any{"", 0, false, map[string]any{}} {
			_, err := Null(v)
			assert.Error(t, err)
		}
	})
}

func TestTime(t *testing.T) {
	got, err := Time("2024-05-13T21:25:27.179Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 21, 25, 27, 179_000_000, time.UTC), got)

	_, err = Time("2024-05-13 21:25:27")
	var invalid *InvalidValueError
	require.ErrorAs(t, err, &invalid)

	_, err = Time(1715635527)
	var wrong *WrongTypeError
	require.ErrorAs(t, err, &wrong)
}

func TestUnion(t *testing.T) {
	nullableString := Union("string or null",
		String,
		func(v any) (string, error) {
			if _, err := Null(v); err != nil {
				return "", err
			}
			return "", nil
		},
	)

	got, err := nullableString("some value")
	require.NoError(t, err)
	assert.Equal(t, "some value", got)

	got, err = nullableString(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = nullableString(1234)
	var union *UnionParseError
	require.ErrorAs(t, err, &union)
	assert.Len(t, union.Errors, 2)
}

func TestListAndMap(t *testing.T) {
	strings, err := List(String)(mustJSON(t, `["some value", "another value", ""]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"some value", "another value", ""}, strings)

	empty, err := List(Any)(mustJSON(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = List(Int)(mustJSON(t, `[1, 2, "three"]`))
	require.Error(t, err)
	var de DecoderError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []any{2}, de.PropertyPath())

	byName, err := MapOf(Int)(mustJSON(t, `{"a": 1, "b": 2}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, byName)

	_, err = MapOf(Int)(mustJSON(t, `{"a": true}`))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []any{"a"}, de.PropertyPath())
}

func TestProperty(t *testing.T) {
	data := mustJSON(t, `{"some_key": "some_value", "first": {"second": "value"}}`)

	got, err := Property(data, "some_key", String)
	require.NoError(t, err)
	assert.Equal(t, "some_value", got)

	inner, err := Property(data, "first", Object)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"second": "value"}, inner)

	t.Run("missing key is distinct from wrong type", func(t *testing.T) {
		_, err := Property(data, "another key", String)
		var missing *MissingPropertyError
		require.ErrorAs(t, err, &missing)

		_, err = Property(data, "some_key", Int)
		var wrong *WrongTypeError
		require.ErrorAs(t, err, &wrong)
	})

	t.Run("non-object parents fail", func(t *testing.T) {
		_, err := Property([]any{"first"}, "key", Any)
		assert.Error(t, err)
	})
}

func TestIndex(t *testing.T) {
	data := mustJSON(t, `["first", "second", "third", 4, 5, "sixth", null]`)

	got, err := Index(data, 2, String)
	require.NoError(t, err)
	assert.Equal(t, "third", got)

	for _, i := range []int{-1, 7} {
		_, err := Index(data, i, Any)
		var missing *MissingPropertyError
		require.ErrorAs(t, err, &missing)
	}

	_, err = Index(data, 2, Int)
	var wrong *WrongTypeError
	require.ErrorAs(t, err, &wrong)
}

func TestOptionalProperty(t *testing.T) {
	data := mustJSON(t, `{"present": 1.5, "wrong": "x"}`)

	opt, err := OptionalProperty(data, "absent", Float)
	require.NoError(t, err)
	assert.False(t, opt.Defined())
	assert.Equal(t, 0.0, opt.Value())
	assert.Equal(t, 9.0, opt.Or(9.0))

	opt, err = OptionalProperty(data, "present", Float)
	require.NoError(t, err)
	assert.True(t, opt.Defined())
	assert.Equal(t, 1.5, opt.Or(9.0))

	_, err = OptionalProperty(data, "wrong", Float)
	assert.Error(t, err, "present but invalid must not look like absent")
}

// wrapped mirrors the kind of single-field envelope Twitch wraps payloads in.
type wrapped struct {
	Value string
}

func decodeWrapped(v any) (wrapped, error) {
	value, err := Property(v, "test key", String)
	if err != nil {
		return wrapped{}, err
	}
	return wrapped{Value: value}, nil
}

type composite struct {
	IntValue      int
	NullableStr   string
	Child         wrapped
	BoolValue     bool
	OptionalFloat Optional[float64]
}

func decodeComposite(v any) (composite, error) {
	var out composite
	var err error
	if out.IntValue, err = Property(v, "int_value", Int); err != nil {
		return out, err
	}
	nullable := Union("string or null", String, func(v any) (string, error) {
		if _, err := Null(v); err != nil {
			return "", err
		}
		return "", nil
	})
	if out.NullableStr, err = Property(v, "nullable_str", nullable); err != nil {
		return out, err
	}
	if out.Child, err = Property(v, "child_object", decodeWrapped); err != nil {
		return out, err
	}
	if out.BoolValue, err = Property(v, "bool_value", Bool); err != nil {
		return out, err
	}
	if out.OptionalFloat, err = OptionalProperty(v, "optional_float", Float); err != nil {
		return out, err
	}
	return out, nil
}

func TestCompositeDecoder(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		got, err := decodeComposite(mustJSON(t, `{
			"int_value": 1234,
			"nullable_str": null,
			"child_object": {"test key": "some value"},
			"bool_value": true,
			"optional_float": 0.5
		}`))
		require.NoError(t, err)
		assert.Equal(t, composite{
			IntValue:      1234,
			NullableStr:   "",
			Child:         wrapped{Value: "some value"},
			BoolValue:     true,
			OptionalFloat: Defined(0.5),
		}, got)
	})

	t.Run("optional field left out", func(t *testing.T) {
		got, err := decodeComposite(mustJSON(t, `{
			"int_value": 1234,
			"nullable_str": "value",
			"child_object": {"test key": "some value"},
			"bool_value": false
		}`))
		require.NoError(t, err)
		assert.Equal(t, "value", got.NullableStr)
		assert.False(t, got.OptionalFloat.Defined())
	})

	t.Run("nested failure reports the full path", func(t *testing.T) {
		_, err := decodeComposite(mustJSON(t, `{
			"int_value": 1234,
			"nullable_str": "some string",
			"child_object": {"test key": true},
			"bool_value": true
		}`))
		require.Error(t, err)
		var de DecoderError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []any{"child_object", "test key"}, de.PropertyPath())
		assert.Contains(t, err.Error(), `["child_object"]["test key"]`)
	})
}

func TestChainLeavesForeignErrorsAlone(t *testing.T) {
	sentinel := errors.New("not a decoder error")
	assert.Same(t, sentinel, Chain(sentinel, "key"))
}

func TestPathRendering(t *testing.T) {
	items := mustJSON(t, `{"outer": [{"inner": "nope"}]}`)
	_, err := Property(items, "outer", List(func(v any) (int, error) {
		return Property(v, "inner", Int)
	}))
	require.Error(t, err)

	var de DecoderError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []any{"outer", 0, "inner"}, de.PropertyPath())
	assert.Contains(t, err.Error(), `["outer"][0]["inner"]`)
}
