package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "logfire:"

// Options configure a Store.
type Options struct {
	Prefix     string
	StampEvent bool
	Clock      func() time.Time
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Store creates, reads and resets events.
//
// Thread-safety: Store is safe for concurrent use. It holds no mutable
// state; every write is a single atomic script.
type Store struct {
	client   redis.UniversalClient
	registry *schema.Registry
	exec     *script.Executor
	prefix   string
	stamp    bool
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// New creates a store over an existing client.
func New(client redis.UniversalClient, reg *schema.Registry, exec *script.Executor, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		client:   client,
		registry: reg,
		exec:     exec,
		prefix:   opts.Prefix,
		stamp:    opts.StampEvent,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Prefix returns the key namespace.
func (s *Store) Prefix() string {
	return s.prefix
}

// Reset removes every key under the prefix. It enumerates keys with KEYS
// and must not be used against a populated production namespace.
func (s *Store) Reset(ctx context.Context) error {
	removed, err := s.exec.RunInt(ctx, script.Clean, script.CleanArgs{Prefix: s.prefix})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.logger.Info("store reset", "prefix", s.prefix, "removed", removed)
	return nil
}

// Close closes the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += p
	}
	return k
}
