package ir

import (
	"fmt"
	"strings"
)

// FieldType is the declared type of an event field.
type FieldType string

const (
	TypeNumber    FieldType = "number"
	TypeString    FieldType = "string"
	TypeBoolean   FieldType = "boolean"
	TypeTimestamp FieldType = "timestamp"
	TypeObject    FieldType = "object"

	// TypeUnknown is only ever produced by classification, never declared.
	TypeUnknown FieldType = "unknown"
)

// ValidFieldTypes defines the types a field may be declared with.
var ValidFieldTypes = map[FieldType]bool{
	TypeNumber:    true,
	TypeString:    true,
	TypeBoolean:   true,
	TypeTimestamp: true,
	TypeObject:    true,
}

// ParseFieldType parses a declared field type.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(s)
	if !ValidFieldTypes[t] {
		return "", fmt.Errorf("invalid field type %q: must be one of number, string, boolean, timestamp, object", s)
	}
	return t, nil
}

// IsNumeric reports whether fields of this type are kept in a sorted index.
func (t FieldType) IsNumeric() bool {
	return t == TypeNumber || t == TypeTimestamp
}

// PossibleTypes classifies a value into the ordered set of field types it
// may satisfy. A positive integer is both a number and a timestamp.
func PossibleTypes(v Value) []FieldType {
	switch val := v.(type) {
	case Number:
		if val > 0 && val.IsInteger() {
			return []FieldType{TypeNumber, TypeTimestamp}
		}
		return []FieldType{TypeNumber}
	case Object, Array:
		return []FieldType{TypeObject}
	case Boolean:
		return []FieldType{TypeBoolean}
	case Timestamp:
		return []FieldType{TypeTimestamp}
	case String:
		return []FieldType{TypeString}
	default:
		return []FieldType{TypeUnknown}
	}
}

// HasType reports whether t is among the possible types of v.
func HasType(v Value, t FieldType) bool {
	for _, pt := range PossibleTypes(v) {
		if pt == t {
			return true
		}
	}
	return false
}

// JoinTypes renders a type set as "number/timestamp".
func JoinTypes(types []FieldType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, "/")
}
