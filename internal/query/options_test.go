package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logfire/internal/ir"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions([]byte(`{
		"events": "video.success, video.failure",
		"select": ["provider", "server"],
		"start": "1400000000.9",
		"end": 1400003600,
		"group": "$event",
		"where": {"server": {"$gt": 1}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"video.success", "video.failure"}, opts.Events)
	assert.Equal(t, []string{"provider", "server"}, opts.Select)
	require.NotNil(t, opts.Start)
	require.NotNil(t, opts.End)
	assert.Equal(t, int64(1400000000), *opts.Start)
	assert.Equal(t, int64(1400003600), *opts.End)
	assert.Equal(t, "$event", opts.Group)
	assert.Equal(t, ir.Object{"$gt": ir.Number(1)}, opts.Where["server"])
}

func TestParseOptionsEmpty(t *testing.T) {
	opts, err := ParseOptions([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, opts.Events)
	assert.Nil(t, opts.Start)
	assert.Nil(t, opts.End)
	assert.Nil(t, opts.Where)
}

func TestParseOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"not json", `{`, "Query is not a valid JSON object."},
		{"array body", `[1]`, "Query is not a valid JSON object."},
		{"events number", `{"events": 3}`, "`events` must be a string or an array of strings."},
		{"events mixed", `{"events": ["a.b", 1]}`, "`events` must only contain strings."},
		{"start text", `{"start": "soon"}`, "`start` must be a number."},
		{"end bool", `{"end": true}`, "`end` must be a number."},
		{"group number", `{"group": 1}`, "`group` must be a string."},
		{"where array", `{"where": []}`, "`where` must be an object."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidRequest))
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}
