package script

import "github.com/roach88/logfire/internal/ir"

// CreateArgs are the arguments of the create operation.
// Data values must already be script-ready: numbers, strings, booleans or
// canonical JSON strings for object fields.
type CreateArgs struct {
	Prefix     string                  `json:"prefix"`
	Event      string                  `json:"event"`
	Data       map[string]any          `json:"data"`
	Fields     map[string]ir.FieldType `json:"fields"`
	Now        int64                   `json:"now"`
	StampEvent bool                    `json:"stampEvent"`
}

// Condition is one where clause entry handed to the query operation.
// Op is one of eq, ne, gt, gte, lt, lte, in, nin.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// QueryArgs are the arguments of the query operation.
type QueryArgs struct {
	Prefix     string                             `json:"prefix"`
	Events     []string                           `json:"events"`
	Start      *int64                             `json:"start,omitempty"`
	End        *int64                             `json:"end,omitempty"`
	Select     []string                           `json:"select,omitempty"`
	Count      bool                               `json:"count,omitempty"`
	Group      string                             `json:"group,omitempty"`
	GroupSize  string                             `json:"groupSize,omitempty"`
	Where      []Condition                        `json:"where,omitempty"`
	FieldTypes map[string]map[string]ir.FieldType `json:"fieldTypes"`
}

// FlushArgs are the arguments of the flush operation. Events of Event whose
// $date is strictly older than Now-TTL are removed.
type FlushArgs struct {
	Prefix string                  `json:"prefix"`
	Event  string                  `json:"event"`
	TTL    int64                   `json:"ttl"`
	Now    int64                   `json:"now"`
	Fields map[string]ir.FieldType `json:"fields"`
}

// CleanArgs are the arguments of the clean operation.
type CleanArgs struct {
	Prefix string `json:"prefix"`
}
