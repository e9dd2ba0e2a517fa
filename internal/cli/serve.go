package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/logfire/internal/server"
	"github.com/roach88/logfire/internal/sweeplog"
	"github.com/roach88/logfire/internal/ttl"
)

// Version is reported by GET / and set at build time.
var Version = "dev"

// DefaultPort is the HTTP port used when --port is not given.
const DefaultPort = 8085

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Host string
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the TTL sweeper",
		Long: `Start the logfire HTTP server.

The server loads event declarations from the configuration file, connects
to Redis and, unless disable_flush is set, starts the TTL sweeper. It
stops gracefully on SIGINT or SIGTERM.

Example:
  logfire serve --config ./logfire.yaml
  logfire serve --port 9000 --log-format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "interface to listen on (default all)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", DefaultPort, "port to listen on")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			rt.logger.Error("error closing redis client", "error", closeErr)
		}
	}()
	rt.registerProcessCollectors()

	eng, err := rt.engine()
	if err != nil {
		return opts.formatter(cmd).Fail(ExitCommandError, "invalid time zone", err)
	}

	if rt.cfg.DisableFlush {
		rt.logger.Info("ttl sweeper disabled")
	} else {
		var rec ttl.Recorder
		if rt.cfg.SweepLog != "" {
			journal, err := sweeplog.Open(rt.cfg.SweepLog)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open sweep log", err)
			}
			defer journal.Close()
			rec = journal
		}
		sweeper := rt.sweeper(rec)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	srv := server.New(rt.store, eng, server.Options{
		Version:   Version,
		Auth:      rt.cfg.Auth,
		RateLimit: rt.cfg.RateLimit.RPS,
		Burst:     rt.cfg.RateLimit.Burst,
		Logger:    rt.logger,
		Gatherer:  rt.promReg,
	})

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	rt.logger.Info("server starting",
		"addr", addr,
		"prefix", rt.cfg.Prefix,
		"events", len(rt.registry.Names()))
	fmt.Fprintf(cmd.OutOrStdout(), "logfire %s listening on %s\n", Version, addr)

	if err := srv.Run(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	return nil
}
