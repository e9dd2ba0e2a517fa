package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
	lftest "github.com/roach88/logfire/internal/testutil"
)

const now = int64(1400000000)

type fixture struct {
	mr      *miniredis.Miniredis
	store   *Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, stamp bool) fixture {
	t.Helper()

	reg, err := schema.New(map[string]schema.EventDef{
		"video.success": {Fields: map[string]schema.FieldDef{
			"provider": {Type: ir.TypeString, Required: true},
			"server":   {Type: ir.TypeNumber},
			"ratio":    {Type: ir.TypeNumber},
			"seen_at":  {Type: ir.TypeTimestamp},
			"cached":   {Type: ir.TypeBoolean},
			"meta":     {Type: ir.TypeObject},
		}},
		"video.failure": {Fields: map[string]schema.FieldDef{
			"reason": {Type: ir.TypeString},
		}},
	})
	require.NoError(t, err)

	mr, client := lftest.NewRedis(t)
	m := metrics.New(prometheus.NewRegistry())
	s := New(client, reg, script.NewExecutor(client, nil, m), Options{
		StampEvent: stamp,
		Clock:      lftest.NewFixedClockUnix(now).Now,
		Metrics:    m,
	})
	return fixture{mr: mr, store: s, metrics: m}
}

func TestCreateGetRoundTrip(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	data := ir.Object{
		"provider": ir.String("youtube"),
		"server":   ir.Number(2),
		"ratio":    ir.Number(0.25),
		"seen_at":  ir.NewTimestamp(time.Unix(1399999000, 0)),
		"cached":   ir.Boolean(true),
		"meta":     ir.Object{"tags": ir.Array{ir.String("a"), ir.String("b")}},
	}

	id, err := f.store.Create(ctx, "video.success", data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rec, err := f.store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, Record{
		"$id":      int64(1),
		"$date":    now,
		"$event":   "video.success",
		"provider": "youtube",
		"server":   int64(2),
		"ratio":    0.25,
		"seen_at":  int64(1399999000),
		"cached":   true,
		"meta":     map[string]any{"tags": []any{"a", "b"}},
	}, rec)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsCreatedTotal.WithLabelValues("video.success")))
}

func TestCreateIDsStrictlyIncrease(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var last int64
	for i := 0; i < 20; i++ {
		event := "video.success"
		data := ir.Object{"provider": ir.String("p")}
		if i%2 == 1 {
			event = "video.failure"
			data = ir.Object{}
		}
		id, err := f.store.Create(ctx, event, data)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestCreateIndexesPresentNumericFieldsOnly(t *testing.T) {
	f := newFixture(t, true)

	id, err := f.store.Create(context.Background(), "video.success", ir.Object{
		"provider": ir.String("p"),
		"server":   ir.Number(7),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	members, err := f.mr.ZMembers("logfire:indexes:video.success:server")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, members)

	score, err := f.mr.ZScore("logfire:indexes:video.success:server", "1")
	require.NoError(t, err)
	assert.Equal(t, 7.0, score)

	assert.False(t, f.mr.Exists("logfire:indexes:video.success:seen_at"))
	assert.False(t, f.mr.Exists("logfire:indexes:video.success:ratio"))
	assert.True(t, f.mr.Exists("logfire:indexes:video.success:$date"))
}

func TestCreateValidationHappensBeforeWrites(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	tests := []struct {
		name  string
		event string
		data  ir.Object
		code  ir.ErrorCode
		msg   string
	}{
		{"missing event", "", ir.Object{}, ir.ErrCodeMissingEvent, ""},
		{"bad format", "video", ir.Object{}, ir.ErrCodeInvalidFormat, ""},
		{"unknown category", "audio.play", ir.Object{}, ir.ErrCodeUnknownCategory, `Category "audio" does not exist.`},
		{"unknown event", "video.pause", ir.Object{}, ir.ErrCodeUnknownEvent, `Event "video.pause" does not exist.`},
		{
			"unknown field", "video.success",
			ir.Object{"provider": ir.String("p"), "unknownField": ir.Number(1)},
			ir.ErrCodeUnknownField, `Field "unknownField" for event "video.success" does not exist.`,
		},
		{"missing required", "video.success", ir.Object{}, ir.ErrCodeMissingField, `Field "provider" is missing.`},
		{
			"type mismatch", "video.success",
			ir.Object{"provider": ir.String("p"), "cached": ir.String("yes")},
			ir.ErrCodeTypeMismatch, `Field "cached" is of type string, but expected it to be boolean.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Create(ctx, tt.event, tt.data)
			require.Error(t, err)
			assert.True(t, ir.HasCode(err, tt.code), "got %v", err)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
		})
	}

	assert.Empty(t, f.mr.Keys(), "no key may be written by a rejected create")
}

func TestCreateIgnoresCallerID(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	id, err := f.store.Create(ctx, "video.failure", ir.Object{"$id": ir.Number(99)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	rec, err := f.store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec["$id"])
}

func TestGetErrors(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.store.Get(ctx, "abc")
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidID))

	_, err = f.store.Get(ctx, "0")
	assert.True(t, ir.HasCode(err, ir.ErrCodeInvalidID))

	_, err = f.store.Get(ctx, "42")
	require.Error(t, err)
	assert.True(t, ir.HasCode(err, ir.ErrCodeNotFound))
	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 404, e.Status())
}

func TestGetResolvesEventTypeWithoutStamp(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.store.Create(ctx, "video.failure", ir.Object{"reason": ir.String("timeout")})
	require.NoError(t, err)
	assert.Empty(t, f.mr.HGet("logfire:events:1", "$event"))

	rec, err := f.store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "video.failure", rec["$event"])
	assert.Equal(t, "timeout", rec["reason"])
	assert.Equal(t, now, rec["$date"])
}

func TestReset(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.store.Create(ctx, "video.success", ir.Object{"provider": ir.String("p")})
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("unrelated", "1"))

	require.NoError(t, f.store.Reset(ctx))
	assert.Equal(t, []string{"unrelated"}, f.mr.Keys())

	// Ids restart after a reset because the counter is gone too.
	id, err := f.store.Create(ctx, "video.success", ir.Object{"provider": ir.String("p")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestCreateKeepsFullNumberPrecision(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.store.Create(ctx, "video.success", ir.Object{
		"provider": ir.String("youtube"),
		"ratio":    ir.Number(0.1 + 0.2),
		"server":   ir.Number(123456789012345),
	})
	require.NoError(t, err)

	// Hash values are written in Go, not with Lua's 14 digit tostring.
	assert.Equal(t, "0.30000000000000004", f.mr.HGet("logfire:events:1", "ratio"))
	assert.Equal(t, "123456789012345", f.mr.HGet("logfire:events:1", "server"))

	score, err := f.mr.ZScore("logfire:indexes:video.success:ratio", "1")
	require.NoError(t, err)
	assert.Equal(t, 0.1+0.2, score)

	rec, err := f.store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0.1+0.2, rec["ratio"])
	assert.Equal(t, int64(123456789012345), rec["server"])
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, int64(5), coerce("5", ir.TypeNumber))
	assert.Equal(t, 1.5, coerce("1.5", ir.TypeNumber))
	assert.Equal(t, int64(1400000000), coerce("1400000000", ir.TypeTimestamp))
	assert.Equal(t, false, coerce("false", ir.TypeBoolean))
	assert.Equal(t, map[string]any{"a": 1.0}, coerce(`{"a":1}`, ir.TypeObject))
	assert.Equal(t, "plain", coerce("plain", ir.TypeString))
	assert.Equal(t, "x", coerce("x", ""))
	assert.Equal(t, "n/a", coerce("n/a", ir.TypeNumber))
}
