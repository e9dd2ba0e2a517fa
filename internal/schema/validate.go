package schema

import (
	"slices"

	"github.com/roach88/logfire/internal/ir"
)

// ValidateEventData checks data against the declared fields of an event
// type. Unknown fields are rejected before required fields and types are
// checked. Fields are visited in sorted order so the reported error is
// deterministic.
func (r *Registry) ValidateEventData(name string, data ir.Object) error {
	def, ok := r.events[name]
	if !ok {
		return ir.Errorf(ir.ErrCodeUnknownEvent, "Event %q does not exist.", name)
	}

	for _, field := range data.SortedKeys() {
		if _, ok := def.Fields[field]; !ok {
			return unknownField(name, field)
		}
	}

	declared := make([]string, 0, len(def.Fields))
	for field := range def.Fields {
		declared = append(declared, field)
	}
	slices.Sort(declared)

	for _, field := range declared {
		fd := def.Fields[field]
		v, present := data[field]
		if !present {
			if fd.Required {
				return ir.Errorf(ir.ErrCodeMissingField, "Field %q is missing.", field)
			}
			continue
		}
		if err := checkType(field, fd.Type, v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateValueAgainstField checks a single value against the declared type
// of field.
func (r *Registry) ValidateValueAgainstField(name, field string, v ir.Value) error {
	fd, ok := r.Field(name, field)
	if !ok {
		return unknownField(name, field)
	}
	return checkType(field, fd.Type, v)
}

func checkType(field string, want ir.FieldType, v ir.Value) error {
	if ir.HasType(v, want) {
		return nil
	}
	return ir.Errorf(ir.ErrCodeTypeMismatch,
		"Field %q is of type %s, but expected it to be %s.",
		field, ir.JoinTypes(ir.PossibleTypes(v)), want)
}

func unknownField(name, field string) error {
	return ir.Errorf(ir.ErrCodeUnknownField, "Field %q for event %q does not exist.", field, name)
}
