package query

import "github.com/roach88/logfire/internal/ir"

// Condition is a validated where-clause predicate.
//
// This is a sealed interface - only types in this package implement it.
//
// Condition types:
//   - Equals: field = literal
//   - NotEquals: field != literal ($ne)
//   - Compare: numeric ordering ($gt, $gte, $lt, $lte)
//   - In: membership ($in, or $nin when Negate is set)
//
// A field missing from an event only satisfies NotEquals and negated In.
type Condition interface {
	conditionNode()
	field() string
}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	OpGreater      CompareOp = "gt"
	OpGreaterEqual CompareOp = "gte"
	OpLess         CompareOp = "lt"
	OpLessEqual    CompareOp = "lte"
)

// Equals matches events whose field equals Value.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) conditionNode()  {}
func (c Equals) field() string { return c.Field }

// NotEquals matches events whose field differs from Value.
type NotEquals struct {
	Field string
	Value ir.Value
}

func (NotEquals) conditionNode()  {}
func (c NotEquals) field() string { return c.Field }

// Compare matches events whose field orders against Value by Op.
// Only numeric values ever match.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.Value
}

func (Compare) conditionNode()  {}
func (c Compare) field() string { return c.Field }

// In matches events whose field equals one of Values, or none of them
// when Negate is set.
type In struct {
	Field  string
	Values ir.Array
	Negate bool
}

func (In) conditionNode()  {}
func (c In) field() string { return c.Field }
