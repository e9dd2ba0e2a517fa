package schema

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/logfire/internal/ir"
)

// Implicit and reserved field names.
const (
	FieldID    = "$id"
	FieldDate  = "$date"
	FieldEvent = "$event"
	FieldCount = "$count"
)

// FieldDef declares one field of an event type.
type FieldDef struct {
	Type     ir.FieldType
	Required bool
}

// EventDef declares an event type. TTL is in seconds; zero disables expiry.
type EventDef struct {
	TTL    int64
	Fields map[string]FieldDef
}

// Registry is the immutable set of declared event types.
type Registry struct {
	events     map[string]EventDef
	categories map[string]bool
	names      []string
}

// New builds a registry from event definitions keyed by dotted name.
// The implicit $id and $date fields are injected into every definition.
func New(defs map[string]EventDef) (*Registry, error) {
	r := &Registry{
		events:     make(map[string]EventDef, len(defs)),
		categories: make(map[string]bool),
	}

	for name, def := range defs {
		category, _, err := ParseEventName(name)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", name, err)
		}
		if def.TTL < 0 {
			return nil, fmt.Errorf("event %q: ttl must not be negative", name)
		}

		fields := make(map[string]FieldDef, len(def.Fields)+2)
		for field, fd := range def.Fields {
			if strings.HasPrefix(field, "$") {
				return nil, fmt.Errorf("event %q: field %q uses the reserved $ prefix", name, field)
			}
			if !ir.ValidFieldTypes[fd.Type] {
				return nil, fmt.Errorf("event %q: field %q has invalid type %q", name, field, fd.Type)
			}
			fields[field] = fd
		}
		fields[FieldID] = FieldDef{Type: ir.TypeNumber}
		fields[FieldDate] = FieldDef{Type: ir.TypeTimestamp}

		r.events[name] = EventDef{TTL: def.TTL, Fields: fields}
		r.categories[category] = true
		r.names = append(r.names, name)
	}

	slices.Sort(r.names)
	return r, nil
}

// ParseEventName splits a raw event name into category and event on the
// first dot.
func ParseEventName(raw string) (category, event string, err error) {
	if raw == "" {
		return "", "", ir.Errorf(ir.ErrCodeMissingEvent, "`event` is missing.")
	}
	category, event, ok := strings.Cut(raw, ".")
	if !ok || category == "" || event == "" {
		return "", "", ir.Errorf(ir.ErrCodeInvalidFormat,
			"Event %q is invalid, expected the format \"category.event\".", raw)
	}
	return category, event, nil
}

// Resolve checks the format, the category and the event of a raw name, in
// that order, and returns the canonical event type name.
func (r *Registry) Resolve(raw string) (string, error) {
	category, _, err := ParseEventName(raw)
	if err != nil {
		return "", err
	}
	if !r.categories[category] {
		return "", ir.Errorf(ir.ErrCodeUnknownCategory, "Category %q does not exist.", category)
	}
	if !r.EventTypeExists(raw) {
		return "", ir.Errorf(ir.ErrCodeUnknownEvent, "Event %q does not exist.", raw)
	}
	return raw, nil
}

// EventTypeExists reports whether name is a declared event type.
func (r *Registry) EventTypeExists(name string) bool {
	_, ok := r.events[name]
	return ok
}

// Fields returns the declared fields of an event type, including $id and
// $date. The returned map is a copy.
func (r *Registry) Fields(name string) (map[string]FieldDef, error) {
	def, ok := r.events[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeUnknownEvent, "Event %q does not exist.", name)
	}
	return maps.Clone(def.Fields), nil
}

// Field returns one field declaration.
func (r *Registry) Field(name, field string) (FieldDef, bool) {
	def, ok := r.events[name]
	if !ok {
		return FieldDef{}, false
	}
	fd, ok := def.Fields[field]
	return fd, ok
}

// HasField reports whether the event type declares field.
func (r *Registry) HasField(name, field string) bool {
	_, ok := r.Field(name, field)
	return ok
}

// Names returns all declared event type names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// TTL returns the time-to-live of an event type in seconds, or 0.
func (r *Registry) TTL(name string) int64 {
	return r.events[name].TTL
}

// NumericFields returns the sorted names of fields kept in a sorted index.
func (r *Registry) NumericFields(name string) []string {
	var out []string
	for field, fd := range r.events[name].Fields {
		if fd.Type.IsNumeric() {
			out = append(out, field)
		}
	}
	slices.Sort(out)
	return out
}

// FieldTypes returns event → field → type for every declared event type.
// Scripts use it to coerce stored strings back to typed values.
func (r *Registry) FieldTypes() map[string]map[string]ir.FieldType {
	out := make(map[string]map[string]ir.FieldType, len(r.events))
	for name := range r.events {
		out[name] = r.EventFieldTypes(name)
	}
	return out
}

// EventFieldTypes returns field → type for one event type, or nil.
func (r *Registry) EventFieldTypes(name string) map[string]ir.FieldType {
	def, ok := r.events[name]
	if !ok {
		return nil
	}
	types := make(map[string]ir.FieldType, len(def.Fields))
	for field, fd := range def.Fields {
		types[field] = fd.Type
	}
	return types
}

// IsNumericType reports whether t is number or timestamp.
func (r *Registry) IsNumericType(t ir.FieldType) bool {
	return t.IsNumeric()
}

// PossibleTypesForValue classifies v into the field types it may satisfy.
func (r *Registry) PossibleTypesForValue(v ir.Value) []ir.FieldType {
	return ir.PossibleTypes(v)
}
