package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
)

// EngineOptions configure an Engine.
type EngineOptions struct {
	Prefix   string
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

// Engine validates and runs queries.
//
// Thread-safety: Engine is immutable after construction and safe for
// concurrent use.
type Engine struct {
	registry *schema.Registry
	exec     *script.Executor
	prefix   string
	loc      *time.Location
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// NewEngine creates a query engine.
func NewEngine(reg *schema.Registry, exec *script.Executor, opts EngineOptions) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		registry: reg,
		exec:     exec,
		prefix:   opts.Prefix,
		loc:      opts.Location,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}
}

// Query runs one query and returns its result:
//
//	ungrouped             []any of records
//	ungrouped, $count     int64
//	grouped               map[string]any of group key to records or count
//	grouped by time size  []Bucket
//
// Validation completes before anything is sent to Redis.
func (e *Engine) Query(ctx context.Context, opts Options) (any, error) {
	started := e.clock()

	result, err := e.run(ctx, opts)
	status := metrics.Ok
	if err != nil {
		status = metrics.Fail
		var ierr *ir.Error
		if errors.As(err, &ierr) {
			status = metrics.Invalid
		}
	}
	e.metrics.QueryDone(status, e.clock().Sub(started))
	return result, err
}

func (e *Engine) run(ctx context.Context, opts Options) (any, error) {
	plan, err := Validate(e.registry, opts)
	if err != nil {
		return nil, err
	}

	args, err := Compile(plan, e.prefix, e.registry.FieldTypes())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	raw, err := e.exec.Run(ctx, script.Query, args)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	result, err := decodeResult(raw, plan, newRecordTypes(e.registry, plan.Events))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	e.logger.Debug("query ran", "events", plan.Events, "group", plan.Group, "count", plan.Count)

	if plan.Granularity == "" {
		return result, nil
	}
	groups, _ := result.(map[string]any)
	buckets, err := Rebucket(groups, plan.Granularity, e.loc)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return buckets, nil
}

// decodeResult decodes the script result into the shape the plan asks
// for. Lua encodes an empty table as either [] or {} depending on the
// JSON library, so both are accepted for every shape.
func decodeResult(raw json.RawMessage, plan *Plan, types recordTypes) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	switch {
	case plan.Group != "":
		groups := map[string]any{}
		if m, ok := v.(map[string]any); ok {
			for k, entry := range m {
				groups[k] = decodeEntry(entry, plan.Count, types)
			}
		}
		return groups, nil
	case plan.Count:
		n, ok := normalize(v).(int64)
		if !ok {
			return nil, fmt.Errorf("decode result: expected a count, got %T", v)
		}
		return n, nil
	default:
		return decodeEntry(v, false, types), nil
	}
}

func decodeEntry(v any, count bool, types recordTypes) any {
	if count {
		return normalize(v)
	}
	list, _ := v.([]any)
	out := make([]any, 0, len(list))
	for _, rec := range list {
		m, ok := rec.(map[string]any)
		if !ok {
			out = append(out, map[string]any{})
			continue
		}
		out = append(out, types.coerce(m))
	}
	return out
}

// recordTypes types the stored strings of returned records. A record
// carrying $event uses that event's fields; otherwise the first queried
// event declaring a field decides its type.
type recordTypes struct {
	byEvent map[string]map[string]ir.FieldType
	merged  map[string]ir.FieldType
}

func newRecordTypes(reg *schema.Registry, events []string) recordTypes {
	rt := recordTypes{
		byEvent: make(map[string]map[string]ir.FieldType, len(events)),
		merged:  make(map[string]ir.FieldType),
	}
	for _, event := range events {
		fields := reg.EventFieldTypes(event)
		rt.byEvent[event] = fields
		for field, t := range fields {
			if _, ok := rt.merged[field]; !ok {
				rt.merged[field] = t
			}
		}
	}
	return rt
}

func (rt recordTypes) coerce(rec map[string]any) map[string]any {
	types := rt.merged
	if event, ok := rec[schema.FieldEvent].(string); ok {
		if fields, ok := rt.byEvent[event]; ok {
			types = fields
		}
	}
	for field, v := range rec {
		raw, ok := v.(string)
		if !ok {
			rec[field] = normalize(v)
			continue
		}
		rec[field] = coerceField(raw, types[field])
	}
	return rec
}

// coerceField converts a stored hash value to its declared type. Values
// that do not parse are kept as strings.
func coerceField(raw string, t ir.FieldType) any {
	switch t {
	case ir.TypeNumber, ir.TypeTimestamp:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case ir.TypeBoolean:
		return raw == "true"
	case ir.TypeObject:
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return normalize(v)
		}
	}
	return raw
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
			return int64(f)
		}
		return f
	case map[string]any:
		for k, elem := range val {
			val[k] = normalize(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	default:
		return v
	}
}
