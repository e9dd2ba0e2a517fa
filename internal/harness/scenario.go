package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/logfire/internal/config"
)

// Scenario is a scripted run against a fresh store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the starting time in epoch seconds.
	Clock int64 `yaml:"clock"`

	// Prefix is the key namespace. Defaults to "logfire:".
	Prefix string `yaml:"prefix,omitempty"`

	// Timezone is used for calendar group sizes. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Events declares the event types, in the configuration file format.
	Events map[string]config.Event `yaml:"events"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step performs exactly one operation.
type Step struct {
	Create string         `yaml:"create,omitempty"`
	Data   map[string]any `yaml:"data,omitempty"`

	Get int64 `yaml:"get,omitempty"`

	Query map[string]any `yaml:"query,omitempty"`

	Flush bool `yaml:"flush,omitempty"`

	// Advance moves the clock forward by this many seconds.
	Advance int64 `yaml:"advance,omitempty"`

	Reset bool `yaml:"reset,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome of a step. Unset fields are not checked.
type Expect struct {
	ID      int64            `yaml:"id,omitempty"`
	Removed map[string]int64 `yaml:"removed,omitempty"`
	Result  any              `yaml:"result,omitempty"`
	Error   string           `yaml:"error,omitempty"`
}

// Op returns the name of the step's operation, or "" when it names none
// or more than one.
func (s Step) Op() string {
	var ops []string
	if s.Create != "" {
		ops = append(ops, OpCreate)
	}
	if s.Get != 0 {
		ops = append(ops, OpGet)
	}
	if s.Query != nil {
		ops = append(ops, OpQuery)
	}
	if s.Flush {
		ops = append(ops, OpFlush)
	}
	if s.Advance != 0 {
		ops = append(ops, OpAdvance)
	}
	if s.Reset {
		ops = append(ops, OpReset)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Assertion checks the final state or the trace.
type Assertion struct {
	// Type is one of event_count, event_exists, event_absent, trace_count.
	Type string `yaml:"type"`

	// Event is the event type (event_count).
	Event string `yaml:"event,omitempty"`

	// ID is the event id (event_exists, event_absent).
	ID int64 `yaml:"id,omitempty"`

	// Fields is a subset of the stored event (event_exists).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Op is the operation counted (trace_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected count (event_count, trace_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertEventCount  = "event_count"
	AssertEventExists = "event_exists"
	AssertEventAbsent = "event_absent"
	AssertTraceCount  = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Clock <= 0 {
		return fmt.Errorf("clock must be a positive epoch time")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events map is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Op() == "" {
			return fmt.Errorf("steps[%d]: exactly one of create, get, query, flush, advance, reset is required", i)
		}
		if step.Advance < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", i)
		}
		if step.Data != nil && step.Create == "" {
			return fmt.Errorf("steps[%d]: data is only valid with create", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
	case AssertEventExists, AssertEventAbsent:
		if a.ID <= 0 {
			return fmt.Errorf("assertions[%d]: id is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
