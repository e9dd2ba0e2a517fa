package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface representing an event field value.
// Only Null, Number, String, Boolean, Timestamp, Array and Object implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null. It never satisfies a declared field type.
type Null struct{}

func (Null) value() {}

// Number represents a numeric value. JSON numbers decode to Number.
type Number float64

func (Number) value() {}

// IsInteger reports whether the number has no fractional part.
func (n Number) IsInteger() bool {
	f := float64(n)
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// String represents a string value.
type String string

func (String) value() {}

// Boolean represents a boolean value.
type Boolean bool

func (Boolean) value() {}

// Timestamp represents a date value. It is stored as seconds since the epoch.
type Timestamp struct {
	time.Time
}

func (Timestamp) value() {}

// NewTimestamp creates a Timestamp from a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Array represents a list of values. Only used for $in / $nin operands
// and object-typed payloads.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// Decode parses a JSON document into a Value.
// Numbers are read as json.Number first so integer-ness survives decoding.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// DecodeObject parses a JSON object into an Object.
func DecodeObject(data []byte) (Object, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", Describe(v))
	}
	return obj, nil
}

// FromAny converts a decoded Go value into a Value.
// Accepts the output of encoding/json (with or without UseNumber),
// Go numeric types, time.Time and existing Values.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Boolean(val), nil
	case string:
		return String(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint:
		return Number(val), nil
	case uint32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case time.Time:
		return Timestamp{Time: val}, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// Native converts a Value into plain Go values suitable for JSON encoding.
// Timestamps become integer seconds since the epoch.
func Native(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case Number:
		if val.IsInteger() && math.Abs(float64(val)) < 1<<53 {
			return int64(val)
		}
		return float64(val)
	case String:
		return string(val)
	case Boolean:
		return bool(val)
	case Timestamp:
		return val.Unix()
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Native(elem)
		}
		return out
	default:
		return nil
	}
}

// Describe returns a short human-readable name for the value's kind.
func Describe(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Number:
		return "number"
	case String:
		return "string"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}
