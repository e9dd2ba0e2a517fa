package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/query"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [json]",
		Short: "Run a query against the store",
		Long: `Run a query and print its result.

The query is a JSON object with the same keys as the HTTP API: events,
select, where, group, start and end. It is read from the argument or,
when no argument is given, from standard input.

Examples:
  logfire query '{"events": ["video.success"], "select": ["$count"]}'
  echo '{"events": "video.success", "group": "$date", "select": "$count"}' | logfire query`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runQuery(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	var raw []byte
	if len(args) == 1 {
		raw = []byte(args[0])
	} else {
		var err error
		if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return WrapExitError(ExitCommandError, "failed to read query", err)
		}
	}
	if strings.TrimSpace(string(raw)) == "" {
		_ = f.Error(ErrCodeInput, "no query given", nil)
		return NewExitError(ExitCommandError, "no query given")
	}

	obj, err := ir.DecodeObject(raw)
	if err != nil {
		_ = f.Error(ErrCodeInput, "query is not a valid JSON object", nil)
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	qopts, err := query.OptionsFromObject(obj)
	if err != nil {
		return f.Fail(ExitFailure, "invalid query", err)
	}

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	eng, err := rt.engine()
	if err != nil {
		return f.Fail(ExitCommandError, "invalid time zone", err)
	}
	result, err := eng.Query(ctx, qopts)
	if err != nil {
		return f.Fail(ExitCommandError, "query failed", err)
	}
	return f.Success(result)
}
