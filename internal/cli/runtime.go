package cli

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/logfire/internal/config"
	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/query"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
	"github.com/roach88/logfire/internal/store"
	"github.com/roach88/logfire/internal/ttl"
)

// runtime is the wired set of components every Redis-backed command uses.
type runtime struct {
	cfg      *config.Config
	registry *schema.Registry
	client   *redis.Client
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	exec     *script.Executor
	store    *store.Store
	logger   *slog.Logger
}

// loadConfig reads --config. A missing file at the default path falls back
// to the built-in defaults; an explicitly named file must exist.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && o.Config == DefaultConfigPath && !cmd.Flags().Changed("config") {
		cfg = config.Default()
		if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, err
}

// openRuntime loads the configuration and connects to Redis.
func (o *RootOptions) openRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	f := o.formatter(cmd)
	logger := o.newLogger(cmd.ErrOrStderr())

	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, f.Fail(ExitCommandError, "failed to load config", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, f.Fail(ExitCommandError, "invalid event declarations", err)
	}

	redisOpts := cfg.RedisOptions()
	f.VerboseLog("Connecting to %s", redisOpts.Addr)
	client, err := store.Open(ctx, redisOpts)
	if err != nil {
		_ = f.Error(ErrCodeRedis, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "redis unavailable", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	exec := script.NewExecutor(client, logger, m)

	return &runtime{
		cfg:      cfg,
		registry: reg,
		client:   client,
		promReg:  promReg,
		metrics:  m,
		exec:     exec,
		store: store.New(client, reg, exec, store.Options{
			Prefix:     cfg.Prefix,
			StampEvent: cfg.StampEvent,
			Logger:     logger,
			Metrics:    m,
		}),
		logger: logger,
	}, nil
}

func (rt *runtime) engine() (*query.Engine, error) {
	loc, err := rt.cfg.Location()
	if err != nil {
		return nil, err
	}
	return query.NewEngine(rt.registry, rt.exec, query.EngineOptions{
		Prefix:   rt.cfg.Prefix,
		Location: loc,
		Logger:   rt.logger,
		Metrics:  rt.metrics,
	}), nil
}

func (rt *runtime) sweeper(rec ttl.Recorder) *ttl.Sweeper {
	return ttl.New(rt.registry, rt.exec, ttl.Options{
		Prefix:   rt.cfg.Prefix,
		Interval: rt.cfg.Interval(),
		Logger:   rt.logger,
		Metrics:  rt.metrics,
		Recorder: rec,
	})
}

// registerProcessCollectors adds Go runtime and process metrics. Only the
// long-running server exposes them.
func (rt *runtime) registerProcessCollectors() {
	rt.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (rt *runtime) Close() error {
	return rt.client.Close()
}
