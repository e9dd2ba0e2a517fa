package harness

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/schema"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] @%d %s", event.Step, event.Time, event.Op)
		if event.Input != nil {
			fmt.Fprintf(&buf, " %s", render(event.Input))
		}
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%q", event.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// evaluateAssertions evaluates every assertion and returns the failures.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventCount:
			err = h.assertEventCount(ctx, a, result.Trace)
		case AssertEventExists:
			err = h.assertEventExists(ctx, a, result.Trace)
		case AssertEventAbsent:
			err = h.assertEventAbsent(ctx, a, result.Trace)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func (h *Harness) assertEventCount(ctx context.Context, a Assertion, trace []TraceEvent) error {
	n, err := h.client.SCard(ctx, h.prefix+"set:"+a.Event).Result()
	if err != nil {
		return fmt.Errorf("event_count %s: %w", a.Event, err)
	}
	if int(n) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d stored %s events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d stored", n),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertEventExists(ctx context.Context, a Assertion, trace []TraceEvent) error {
	rec, err := h.store.Get(ctx, strconv.FormatInt(a.ID, 10))
	if err != nil {
		return &AssertionError{
			Type:     AssertEventExists,
			Expected: fmt.Sprintf("event %d stored", a.ID),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if len(a.Fields) == 0 {
		return nil
	}

	want, err := normalize(a.Fields)
	if err != nil {
		return err
	}
	got, err := normalize(rec)
	if err != nil {
		return err
	}
	if !matches(want, got) {
		return &AssertionError{
			Type:     AssertEventExists,
			Expected: fmt.Sprintf("event %d with %s", a.ID, render(want)),
			Actual:   render(got),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertEventAbsent(ctx context.Context, a Assertion, trace []TraceEvent) error {
	_, err := h.store.Get(ctx, strconv.FormatInt(a.ID, 10))
	if ir.HasCode(err, ir.ErrCodeNotFound) {
		return nil
	}
	actual := "event stored"
	if err != nil {
		actual = err.Error()
	}
	return &AssertionError{
		Type:     AssertEventAbsent,
		Expected: fmt.Sprintf("event %d absent", a.ID),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertTraceCount counts the steps of an operation that succeeded.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op && event.Error == "" {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d successful %s step(s)", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// matches reports whether actual satisfies expected. Objects match as
// subsets, recursively; arrays must have the same length and match
// element-wise; scalars must be equal.
func matches(expected, actual any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, want := range exp {
			got, ok := act[key]
			if !ok || !matches(want, got) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matches(exp[i], act[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(expected, actual)
	}
}

// eventID reads the id a create step returned.
func eventID(event TraceEvent) (int64, bool) {
	out, ok := event.Output.(map[string]any)
	if !ok {
		return 0, false
	}
	id, ok := out[schema.FieldID].(float64)
	return int64(id), ok
}
