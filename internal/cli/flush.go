package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/logfire/internal/sweeplog"
	"github.com/roach88/logfire/internal/ttl"
)

// FlushResult is the outcome of a one-off sweep.
type FlushResult struct {
	Result  string           `json:"result"`
	Removed map[string]int64 `json:"removed"`
	Error   string           `json:"error,omitempty"`
}

func (r FlushResult) String() string {
	if len(r.Removed) == 0 {
		return fmt.Sprintf("sweep %s, nothing removed", r.Result)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "sweep %s", r.Result)
	for _, event := range slices.Sorted(maps.Keys(r.Removed)) {
		fmt.Fprintf(&b, "\n  %s: %d removed", event, r.Removed[event])
	}
	return b.String()
}

// entryRecorder keeps the last entry and forwards it to next, if set.
type entryRecorder struct {
	next  ttl.Recorder
	entry sweeplog.Entry
}

func (r *entryRecorder) Record(ctx context.Context, e sweeplog.Entry) (int64, error) {
	r.entry = e
	if r.next == nil {
		return 0, nil
	}
	return r.next.Record(ctx, e)
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Remove expired events once",
		Long: `Run a single TTL sweep and report how many events were removed per
event type. The run is recorded in the sweep log when one is configured.

Example:
  logfire flush --config ./logfire.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(rootOpts, cmd)
		},
	}
	return cmd
}

func runFlush(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	rec := &entryRecorder{}
	if rt.cfg.SweepLog != "" {
		journal, err := sweeplog.Open(rt.cfg.SweepLog)
		if err != nil {
			return f.Fail(ExitCommandError, "failed to open sweep log", err)
		}
		defer journal.Close()
		rec.next = journal
	}

	_, flushErr := rt.sweeper(rec).Flush(ctx)
	result := FlushResult{
		Result:  rec.entry.Result,
		Removed: rec.entry.Removed,
		Error:   rec.entry.Error,
	}
	if result.Removed == nil {
		result.Removed = map[string]int64{}
	}
	if flushErr != nil {
		_ = f.Success(result)
		return WrapExitError(ExitFailure, "sweep failed", flushErr)
	}
	return f.Success(result)
}
