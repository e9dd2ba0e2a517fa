package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every key under the configured prefix",
		Long: `Delete every logfire key under the configured prefix, including the id
counter. Intended for development and tests; it enumerates keys and must
not be run against a large production namespace.

Example:
  logfire reset --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if !yes {
				_ = f.Error(ErrCodeInput, "refusing to reset without --yes", nil)
				return NewExitError(ExitCommandError, "refusing to reset without --yes")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := rootOpts.openRuntime(ctx, cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.Reset(ctx); err != nil {
				return f.Fail(ExitCommandError, "reset failed", err)
			}
			return f.Success("store reset: " + rt.store.Prefix())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
