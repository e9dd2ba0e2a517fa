package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/logfire/internal/config"
	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/query"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
	"github.com/roach88/logfire/internal/store"
	"github.com/roach88/logfire/internal/sweeplog"
	"github.com/roach88/logfire/internal/testutil"
	"github.com/roach88/logfire/internal/ttl"
)

// Harness holds the components a scenario runs against.
type Harness struct {
	client   *redis.Client
	registry *schema.Registry
	store    *store.Store
	engine   *query.Engine
	sweeper  *ttl.Sweeper
	sweeps   *lastEntry
	clock    *testutil.FixedClock
	prefix   string
}

// lastEntry keeps the most recent sweep entry.
type lastEntry struct {
	entry sweeplog.Entry
}

func (l *lastEntry) Record(_ context.Context, e sweeplog.Entry) (int64, error) {
	l.entry = e
	return 0, nil
}

// Run executes a scenario against a fresh in-process Redis and returns
// the result. Client-facing errors are part of the trace; anything else,
// such as a failing script, aborts the run.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start redis: %w", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h, err := newHarness(client, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(client *redis.Client, scenario *Scenario) (*Harness, error) {
	cfg := config.Config{Events: scenario.Events, Timezone: scenario.Timezone}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid events: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	prefix := scenario.Prefix
	if prefix == "" {
		prefix = store.DefaultPrefix
	}

	clock := testutil.NewFixedClockUnix(scenario.Clock)
	exec := script.NewExecutor(client, nil, nil)
	sweeps := &lastEntry{}

	return &Harness{
		client:   client,
		registry: reg,
		store: store.New(client, reg, exec, store.Options{
			Prefix:     prefix,
			StampEvent: true,
			Clock:      clock.Now,
		}),
		engine: query.NewEngine(reg, exec, query.EngineOptions{
			Prefix:   prefix,
			Location: loc,
			Clock:    clock.Now,
		}),
		sweeper: ttl.New(reg, exec, ttl.Options{
			Prefix:   prefix,
			Clock:    clock.Now,
			Recorder: sweeps,
		}),
		sweeps: sweeps,
		clock:  clock,
		prefix: prefix,
	}, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	event := TraceEvent{Step: index, Op: step.Op(), Time: h.clock.Now().Unix()}

	var output any
	var err error
	switch event.Op {
	case OpCreate:
		event.Input = map[string]any{"event": step.Create, "data": step.Data}
		output, err = h.create(ctx, step)
	case OpGet:
		event.Input = step.Get
		output, err = h.store.Get(ctx, strconv.FormatInt(step.Get, 10))
	case OpQuery:
		event.Input = step.Query
		output, err = h.query(ctx, step.Query)
	case OpFlush:
		output, err = h.flush(ctx)
	case OpAdvance:
		event.Input = step.Advance
		h.clock.Advance(time.Duration(step.Advance) * time.Second)
	case OpReset:
		err = h.store.Reset(ctx)
	default:
		return fmt.Errorf("no operation")
	}

	var cerr *ir.Error
	switch {
	case errors.As(err, &cerr):
		event.Error = cerr.Message
	case err != nil:
		return err
	}

	if err == nil && output != nil {
		if event.Output, err = normalize(output); err != nil {
			return err
		}
	}
	if event.Input != nil {
		if event.Input, err = normalize(event.Input); err != nil {
			return err
		}
	}
	result.AddTrace(event)

	if step.Expect != nil {
		for _, msg := range checkExpect(event, *step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", index, event.Op, msg))
		}
	} else if event.Error != "" {
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %s", index, event.Op, event.Error))
	}
	return nil
}

func (h *Harness) create(ctx context.Context, step Step) (any, error) {
	data := ir.Object{}
	if step.Data != nil {
		v, err := ir.FromAny(step.Data)
		if err != nil {
			return nil, fmt.Errorf("convert data: %w", err)
		}
		data = v.(ir.Object)
	}
	id, err := h.store.Create(ctx, step.Create, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{schema.FieldID: id}, nil
}

func (h *Harness) query(ctx context.Context, raw map[string]any) (any, error) {
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("convert query: %w", err)
	}
	opts, err := query.OptionsFromObject(v.(ir.Object))
	if err != nil {
		return nil, err
	}
	return h.engine.Query(ctx, opts)
}

func (h *Harness) flush(ctx context.Context) (any, error) {
	h.sweeps.entry = sweeplog.Entry{}
	if _, err := h.sweeper.Flush(ctx); err != nil {
		return nil, err
	}
	removed := h.sweeps.entry.Removed
	if removed == nil {
		removed = map[string]int64{}
	}
	return map[string]any{"removed": removed}, nil
}

// checkExpect compares a traced step with its expect clause.
func checkExpect(event TraceEvent, exp Expect) []string {
	var msgs []string

	if exp.Error != "" {
		if event.Error != exp.Error {
			msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", exp.Error, event.Error))
		}
		return msgs
	}
	if event.Error != "" {
		return append(msgs, "unexpected error: "+event.Error)
	}

	if exp.ID != 0 {
		if got, ok := eventID(event); !ok || got != exp.ID {
			msgs = append(msgs, fmt.Sprintf("expected id %d, got %s", exp.ID, render(event.Output)))
		}
	}
	if exp.Removed != nil {
		out, _ := event.Output.(map[string]any)
		removed, _ := out["removed"].(map[string]any)
		for name, want := range exp.Removed {
			got, _ := removed[name].(float64)
			if int64(got) != want {
				msgs = append(msgs, fmt.Sprintf("expected %d %s removed, got %v", want, name, int64(got)))
			}
		}
	}
	if exp.Result != nil {
		want, err := normalize(exp.Result)
		if err != nil {
			return append(msgs, fmt.Sprintf("invalid expected result: %v", err))
		}
		if !matches(want, event.Output) {
			msgs = append(msgs, fmt.Sprintf("expected result %s, got %s", render(want), render(event.Output)))
		}
	}
	return msgs
}

// normalize maps any JSON-encodable value onto the generic JSON shapes
// (map[string]any, []any, float64, string, bool, nil).
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

func render(v any) string {
	raw, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
