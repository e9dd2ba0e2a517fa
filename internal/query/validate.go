package query

import (
	"slices"
	"strings"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
)

// Plan is a validated, normalized query.
type Plan struct {
	Events      []string
	Start       *int64
	End         *int64
	Select      []string
	Count       bool
	Group       string
	Granularity Granularity
	Where       []Condition
}

// Validate checks opts against the registry and normalizes it into a Plan.
//
// Every field referenced by select, group or where must be declared for
// every requested event type. Duplicate event names are dropped; the first
// occurrence keeps its position. Where conditions are ordered by field and
// then operator so equal requests produce equal plans.
func Validate(reg *schema.Registry, opts Options) (*Plan, error) {
	plan := &Plan{Start: opts.Start, End: opts.End}

	if len(opts.Events) == 0 {
		return nil, ir.Errorf(ir.ErrCodeNoEvents, "No events given.")
	}
	for _, raw := range opts.Events {
		name, err := reg.Resolve(raw)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(plan.Events, name) {
			plan.Events = append(plan.Events, name)
		}
	}

	if err := plan.validateSelect(reg, opts.Select); err != nil {
		return nil, err
	}
	if err := plan.validateGroup(reg, opts.Group); err != nil {
		return nil, err
	}
	if err := plan.validateWhere(reg, opts.Where); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Plan) requireField(reg *schema.Registry, field string) error {
	for _, event := range p.Events {
		if !reg.HasField(event, field) {
			return ir.Errorf(ir.ErrCodeUnknownField, "Field %q for event %q does not exist.", field, event)
		}
	}
	return nil
}

func (p *Plan) validateSelect(reg *schema.Registry, fields []string) error {
	if slices.Contains(fields, schema.FieldCount) {
		p.Count = true
		return nil
	}
	for _, field := range fields {
		if err := p.requireField(reg, field); err != nil {
			return err
		}
		if !slices.Contains(p.Select, field) {
			p.Select = append(p.Select, field)
		}
	}
	return nil
}

func (p *Plan) validateGroup(reg *schema.Registry, group string) error {
	switch {
	case group == "":
		return nil
	case group == schema.FieldEvent:
		p.Group = group
		return nil
	}

	open := strings.IndexByte(group, '[')
	if open < 0 {
		if strings.IndexByte(group, ']') >= 0 {
			return ir.Errorf(ir.ErrCodeInvalidGranularity, "Group %q is invalid.", group)
		}
		if err := p.requireField(reg, group); err != nil {
			return err
		}
		p.Group = group
		return nil
	}

	field, size := group[:open], group[open+1:]
	if field == "" || !strings.HasSuffix(size, "]") {
		return ir.Errorf(ir.ErrCodeInvalidGranularity, "Group %q is invalid.", group)
	}
	size = strings.TrimSuffix(size, "]")

	if err := p.requireField(reg, field); err != nil {
		return err
	}
	for _, event := range p.Events {
		if def, _ := reg.Field(event, field); def.Type != ir.TypeTimestamp {
			return ir.Errorf(ir.ErrCodeGroupNotTimestamp,
				"Field %q of event %q must be of type timestamp to be grouped by %s.", field, event, size)
		}
	}
	g, ok := ParseGranularity(size)
	if !ok {
		return ir.Errorf(ir.ErrCodeInvalidGranularity,
			"Group size %q is invalid, expected one of minute, hour, day, week, month, year.", size)
	}

	p.Group = field
	p.Granularity = g
	return nil
}

func (p *Plan) validateWhere(reg *schema.Registry, where map[string]ir.Value) error {
	fields := make([]string, 0, len(where))
	for field := range where {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	for _, field := range fields {
		if err := p.requireField(reg, field); err != nil {
			return err
		}

		value := where[field]
		ops, isOperator, err := operatorObject(field, value)
		if err != nil {
			return err
		}
		if !isOperator {
			if err := p.checkValue(reg, field, value); err != nil {
				return err
			}
			p.Where = append(p.Where, Equals{Field: field, Value: value})
			continue
		}

		for _, key := range ops.SortedKeys() {
			cond, err := p.operator(reg, field, key, ops[key])
			if err != nil {
				return err
			}
			p.Where = append(p.Where, cond)
		}
	}
	return nil
}

func (p *Plan) operator(reg *schema.Registry, field, key string, operand ir.Value) (Condition, error) {
	switch key {
	case "$gt", "$gte", "$lt", "$lte":
		if !ir.HasType(operand, ir.TypeNumber) {
			return nil, ir.Errorf(ir.ErrCodeInvalidOperand,
				"Operator %q for field %q expects a number, got %s.", key, field, ir.Describe(operand))
		}
		return Compare{Field: field, Op: CompareOp(key[1:]), Value: operand}, nil
	case "$in", "$nin":
		values, ok := operand.(ir.Array)
		if !ok {
			return nil, ir.Errorf(ir.ErrCodeInvalidOperand,
				"Operator %q for field %q expects an array, got %s.", key, field, ir.Describe(operand))
		}
		return In{Field: field, Values: values, Negate: key == "$nin"}, nil
	case "$ne":
		if err := p.checkValue(reg, field, operand); err != nil {
			return nil, err
		}
		return NotEquals{Field: field, Value: operand}, nil
	default:
		return nil, ir.Errorf(ir.ErrCodeInvalidOperator, "Operator %q for field %q is not supported.", key, field)
	}
}

func (p *Plan) checkValue(reg *schema.Registry, field string, v ir.Value) error {
	for _, event := range p.Events {
		if err := reg.ValidateValueAgainstField(event, field, v); err != nil {
			return err
		}
	}
	return nil
}

// operatorObject reports whether v is an operator object: a non-empty
// object whose keys all start with "$". An object mixing operator keys with
// plain keys is rejected.
func operatorObject(field string, v ir.Value) (ir.Object, bool, error) {
	obj, ok := v.(ir.Object)
	if !ok || len(obj) == 0 {
		return nil, false, nil
	}
	var operators, plain int
	for key := range obj {
		if strings.HasPrefix(key, "$") {
			operators++
		} else {
			plain++
		}
	}
	switch {
	case plain == 0:
		return obj, true, nil
	case operators == 0:
		return nil, false, nil
	default:
		return nil, false, ir.Errorf(ir.ErrCodeInvalidOperator,
			"Operators for field %q cannot be mixed with plain keys.", field)
	}
}
