package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// EventSummary describes one declared event type.
type EventSummary struct {
	Name   string   `json:"name"`
	TTL    int64    `json:"ttl,omitempty"`
	Fields []string `json:"fields"`
}

// ValidationResult is the result of the validate command.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Prefix string         `json:"prefix"`
	Events []EventSummary `json:"events"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "configuration valid: %d event type(s), prefix %q", len(r.Events), r.Prefix)
	for _, ev := range r.Events {
		ttl := "no ttl"
		if ev.TTL > 0 {
			ttl = fmt.Sprintf("ttl %ds", ev.TTL)
		}
		fmt.Fprintf(&b, "\n  %s (%s): %s", ev.Name, ttl, strings.Join(ev.Fields, ", "))
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration file without connecting to Redis",
		Long: `Validate a configuration file against the configuration schema and
list the declared event types. The file is the argument if given,
otherwise --config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.Config = args[0]
			}
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	f.VerboseLog("Validating %s", opts.Config)

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return f.Fail(ExitFailure, "invalid configuration", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return f.Fail(ExitFailure, "invalid event declarations", err)
	}
	if _, err := cfg.Location(); err != nil {
		return f.Fail(ExitFailure, "invalid configuration", err)
	}

	result := ValidationResult{Valid: true, Prefix: cfg.Prefix, Events: []EventSummary{}}
	for _, name := range reg.Names() {
		var fields []string
		for field := range cfg.Events[name].Fields {
			fields = append(fields, field)
		}
		slices.Sort(fields)
		if fields == nil {
			fields = []string{}
		}
		result.Events = append(result.Events, EventSummary{Name: name, TTL: reg.TTL(name), Fields: fields})
	}
	return f.Success(result)
}
