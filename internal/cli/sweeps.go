package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/logfire/internal/sweeplog"
)

// SweepView is the printed form of a sweep log entry.
type SweepView struct {
	ID        int64            `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  string           `json:"duration"`
	Result    string           `json:"result"`
	Error     string           `json:"error,omitempty"`
	Removed   map[string]int64 `json:"removed,omitempty"`
}

// SweepList is the result of the sweeps command.
type SweepList []SweepView

func (l SweepList) String() string {
	if len(l) == 0 {
		return "no sweeps recorded"
	}
	var b strings.Builder
	for i, s := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d  %s  %-7s  %s", s.ID, s.StartedAt.UTC().Format(time.RFC3339), s.Result, s.Duration)
		for _, event := range slices.Sorted(maps.Keys(s.Removed)) {
			fmt.Fprintf(&b, "  %s=%d", event, s.Removed[event])
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "  error: %s", s.Error)
		}
	}
	return b.String()
}

// NewSweepsCommand creates the sweeps command.
func NewSweepsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweeps",
		Short: "Show recent TTL sweeps from the sweep log",
		Long: `List the most recent TTL sweeper runs recorded in the sweep log,
newest first. Requires sweep_log to be set in the configuration.

Example:
  logfire sweeps --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := rootOpts.formatter(cmd)

			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to load config", err)
			}
			if cfg.SweepLog == "" {
				_ = f.Error(ErrCodeConfig, "sweep_log is not configured", nil)
				return NewExitError(ExitCommandError, "sweep_log is not configured")
			}

			journal, err := sweeplog.Open(cfg.SweepLog)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to open sweep log", err)
			}
			defer journal.Close()

			entries, err := journal.Recent(ctx, limit)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to read sweep log", err)
			}

			list := make(SweepList, 0, len(entries))
			for _, e := range entries {
				list = append(list, SweepView{
					ID:        e.ID,
					StartedAt: e.StartedAt,
					Duration:  e.Duration.String(),
					Result:    e.Result,
					Error:     e.Error,
					Removed:   e.Removed,
				})
			}
			return f.Success(list)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sweeps to show")
	return cmd
}
