package query

import (
	"fmt"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/script"
)

// Compile translates a plan into the arguments of the query operation.
//
// fieldTypes is narrowed to the plan's events. Object and array literals
// are passed as canonical JSON strings, matching how the create operation
// stores object fields.
func Compile(plan *Plan, prefix string, fieldTypes map[string]map[string]ir.FieldType) (script.QueryArgs, error) {
	args := script.QueryArgs{
		Prefix:     prefix,
		Events:     plan.Events,
		Start:      plan.Start,
		End:        plan.End,
		Select:     plan.Select,
		Count:      plan.Count,
		Group:      plan.Group,
		GroupSize:  string(plan.Granularity),
		FieldTypes: make(map[string]map[string]ir.FieldType, len(plan.Events)),
	}
	for _, event := range plan.Events {
		args.FieldTypes[event] = fieldTypes[event]
	}

	for _, cond := range plan.Where {
		c, err := compileCondition(cond)
		if err != nil {
			return script.QueryArgs{}, fmt.Errorf("compile where %q: %w", cond.field(), err)
		}
		args.Where = append(args.Where, c)
	}
	return args, nil
}

func compileCondition(cond Condition) (script.Condition, error) {
	switch c := cond.(type) {
	case Equals:
		v, err := scriptValue(c.Value)
		return script.Condition{Field: c.Field, Op: "eq", Value: v}, err
	case NotEquals:
		v, err := scriptValue(c.Value)
		return script.Condition{Field: c.Field, Op: "ne", Value: v}, err
	case Compare:
		v, err := scriptValue(c.Value)
		return script.Condition{Field: c.Field, Op: string(c.Op), Value: v}, err
	case In:
		values := make([]any, 0, len(c.Values))
		for _, elem := range c.Values {
			v, err := scriptValue(elem)
			if err != nil {
				return script.Condition{}, err
			}
			values = append(values, v)
		}
		op := "in"
		if c.Negate {
			op = "nin"
		}
		return script.Condition{Field: c.Field, Op: op, Value: values}, nil
	default:
		return script.Condition{}, fmt.Errorf("unknown condition %T", cond)
	}
}

func scriptValue(v ir.Value) (any, error) {
	switch v.(type) {
	case ir.Object, ir.Array:
		b, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return ir.Native(v), nil
	}
}
