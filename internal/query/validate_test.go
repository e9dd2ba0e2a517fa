package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
)

func testRegistry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.New(map[string]schema.EventDef{
		"video.success": {
			TTL: 3600,
			Fields: map[string]schema.FieldDef{
				"provider": {Type: ir.TypeString, Required: true},
				"server":   {Type: ir.TypeNumber},
				"seen_at":  {Type: ir.TypeTimestamp},
				"meta":     {Type: ir.TypeObject},
				"cached":   {Type: ir.TypeBoolean},
			},
		},
		"video.failure": {
			Fields: map[string]schema.FieldDef{
				"reason": {Type: ir.TypeString},
				"server": {Type: ir.TypeNumber},
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func TestValidateNormalizesEvents(t *testing.T) {
	plan, err := Validate(testRegistry(t), Options{
		Events: []string{"video.success", "video.failure", "video.success"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"video.success", "video.failure"}, plan.Events)
	assert.False(t, plan.Count)
	assert.Empty(t, plan.Where)
}

func TestValidateSelect(t *testing.T) {
	reg := testRegistry(t)

	plan, err := Validate(reg, Options{Events: []string{"video.success"}, Select: []string{"$count"}})
	require.NoError(t, err)
	assert.True(t, plan.Count)
	assert.Empty(t, plan.Select)

	plan, err = Validate(reg, Options{Events: []string{"video.success"}, Select: []string{"provider", "$date", "provider"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"provider", "$date"}, plan.Select)

	_, err = Validate(reg, Options{Events: []string{"video.success", "video.failure"}, Select: []string{"provider"}})
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodeUnknownField))
	assert.Equal(t, `Field "provider" for event "video.failure" does not exist.`, err.Error())
}

func TestValidateGroup(t *testing.T) {
	reg := testRegistry(t)
	events := []string{"video.success"}

	tests := []struct {
		name  string
		group string
		field string
		size  Granularity
		code  ir.ErrorCode
	}{
		{"by event", "$event", "$event", "", ""},
		{"by field", "provider", "provider", "", ""},
		{"by date minute", "$date[minute]", "$date", Minute, ""},
		{"by timestamp week", "seen_at[week]", "seen_at", Week, ""},
		{"unknown field", "nope", "", "", ir.ErrCodeUnknownField},
		{"unknown sized field", "nope[day]", "", "", ir.ErrCodeUnknownField},
		{"not a timestamp", "server[day]", "", "", ir.ErrCodeGroupNotTimestamp},
		{"bad size", "$date[fortnight]", "", "", ir.ErrCodeInvalidGranularity},
		{"unclosed bracket", "$date[day", "", "", ir.ErrCodeInvalidGranularity},
		{"stray bracket", "$date]", "", "", ir.ErrCodeInvalidGranularity},
		{"empty field", "[day]", "", "", ir.ErrCodeInvalidGranularity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Validate(reg, Options{Events: events, Group: tt.group})
			if tt.code != "" {
				require.Error(t, err)
				assert.True(t, ir.HasCode(err, tt.code), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.field, plan.Group)
			assert.Equal(t, tt.size, plan.Granularity)
		})
	}
}

func TestValidateWhere(t *testing.T) {
	reg := testRegistry(t)

	plan, err := Validate(reg, Options{
		Events: []string{"video.success"},
		Where: map[string]ir.Value{
			"server":   ir.Object{"$lte": ir.Number(9), "$gt": ir.Number(1), "$nin": ir.Array{ir.Number(4)}},
			"provider": ir.String("youtube"),
			"meta":     ir.Object{"kind": ir.String("clip")},
			"cached":   ir.Object{"$ne": ir.Boolean(true)},
			"seen_at":  ir.Object{"$in": ir.Array{}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []Condition{
		NotEquals{Field: "cached", Value: ir.Boolean(true)},
		Equals{Field: "meta", Value: ir.Object{"kind": ir.String("clip")}},
		Equals{Field: "provider", Value: ir.String("youtube")},
		In{Field: "seen_at", Values: ir.Array{}},
		Compare{Field: "server", Op: OpGreater, Value: ir.Number(1)},
		Compare{Field: "server", Op: OpLessEqual, Value: ir.Number(9)},
		In{Field: "server", Values: ir.Array{ir.Number(4)}, Negate: true},
	}, plan.Where)
}

func TestValidateWhereErrors(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name  string
		where map[string]ir.Value
		code  ir.ErrorCode
		msg   string
	}{
		{
			"unknown field",
			map[string]ir.Value{"nope": ir.Number(1)},
			ir.ErrCodeUnknownField,
			`Field "nope" for event "video.success" does not exist.`,
		},
		{
			"literal type mismatch",
			map[string]ir.Value{"provider": ir.Number(1)},
			ir.ErrCodeTypeMismatch,
			"",
		},
		{
			"unknown operator",
			map[string]ir.Value{"server": ir.Object{"$regex": ir.String("x")}},
			ir.ErrCodeInvalidOperator,
			`Operator "$regex" for field "server" is not supported.`,
		},
		{
			"compare needs number",
			map[string]ir.Value{"server": ir.Object{"$gt": ir.String("1")}},
			ir.ErrCodeInvalidOperand,
			`Operator "$gt" for field "server" expects a number, got string.`,
		},
		{
			"in needs array",
			map[string]ir.Value{"server": ir.Object{"$in": ir.Number(1)}},
			ir.ErrCodeInvalidOperand,
			`Operator "$in" for field "server" expects an array, got number.`,
		},
		{
			"ne type mismatch",
			map[string]ir.Value{"cached": ir.Object{"$ne": ir.String("yes")}},
			ir.ErrCodeTypeMismatch,
			"",
		},
		{
			"operator mixed with plain key",
			map[string]ir.Value{"server": ir.Object{"$gt": ir.Number(1), "max": ir.Number(9)}},
			ir.ErrCodeInvalidOperator,
			`Operators for field "server" cannot be mixed with plain keys.`,
		},
		{
			"literal object on number field",
			map[string]ir.Value{"server": ir.Object{"gt": ir.Number(1)}},
			ir.ErrCodeTypeMismatch,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(reg, Options{Events: []string{"video.success"}, Where: tt.where})
			require.Error(t, err)
			assert.True(t, ir.HasCode(err, tt.code), "got %v", err)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
		})
	}
}

func TestValidateEventErrors(t *testing.T) {
	reg := testRegistry(t)

	_, err := Validate(reg, Options{})
	assert.True(t, ir.HasCode(err, ir.ErrCodeNoEvents))

	_, err = Validate(reg, Options{Events: []string{"video"}})
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidFormat))

	_, err = Validate(reg, Options{Events: []string{"audio.success"}})
	assert.True(t, ir.HasCode(err, ir.ErrCodeUnknownCategory))

	_, err = Validate(reg, Options{Events: []string{"video.paused"}})
	assert.True(t, ir.HasCode(err, ir.ErrCodeUnknownEvent))
}
