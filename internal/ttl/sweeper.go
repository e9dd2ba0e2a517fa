package ttl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
	"github.com/roach88/logfire/internal/sweeplog"
)

// DefaultInterval is the time between ticks when none is configured.
const DefaultInterval = 60 * time.Second

// Recorder persists the outcome of a tick. *sweeplog.Log implements it.
type Recorder interface {
	Record(ctx context.Context, e sweeplog.Entry) (int64, error)
}

// Options configure a Sweeper.
type Options struct {
	Prefix   string
	Interval time.Duration

	// Concurrency bounds parallel per-type flushes. Zero means unbounded.
	Concurrency int

	Clock    func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Recorder Recorder
}

// Sweeper periodically flushes expired events.
//
// Thread-safety: Flush, Start and Stop are safe to call from any goroutine.
// At most one flush runs at a time; a tick that arrives while flushing is
// skipped.
type Sweeper struct {
	registry *schema.Registry
	exec     *script.Executor
	opts     Options

	flushing atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates an idle sweeper. Nothing runs until Start or Flush.
func New(reg *schema.Registry, exec *script.Executor, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{registry: reg, exec: exec, opts: opts}
}

// Start runs the timer until ctx is cancelled or Stop is called.
// Calling Start on a running sweeper has no effect; once ctx is cancelled
// the sweeper may be started again.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	s.opts.Logger.Info("sweeper started", "interval", s.opts.Interval)
}

// Stop ends the timer and waits for in-progress ticks to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.opts.Logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	var ticks sync.WaitGroup
	ticker := time.NewTicker(s.opts.Interval)
	defer func() {
		ticker.Stop()
		ticks.Wait()

		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks flush on their own goroutine; one that arrives while
			// another is flushing is skipped. Stop does not interrupt a
			// started tick.
			ticks.Add(1)
			go func() {
				defer ticks.Done()
				if _, err := s.Flush(context.WithoutCancel(ctx)); err != nil {
					s.opts.Logger.Error("sweep failed", "error", err)
				}
			}()
		}
	}
}

// Flush runs one tick now. It returns ran=false without doing anything
// when another tick is still flushing.
//
// Per-type failures do not stop the other types; the first error is
// returned after every flush has finished.
func (s *Sweeper) Flush(ctx context.Context) (bool, error) {
	if !s.flushing.CompareAndSwap(false, true) {
		s.opts.Metrics.FlushRun(metrics.Skipped)
		s.opts.Logger.Info("sweep skipped, previous sweep still flushing")
		s.record(ctx, sweeplog.Entry{StartedAt: s.opts.Clock(), Result: metrics.Skipped})
		return false, nil
	}
	defer s.flushing.Store(false)

	started := s.opts.Clock()
	now := started.Unix()

	var (
		mu      sync.Mutex
		removed = make(map[string]int64)
		g       errgroup.Group
	)
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}

	for _, event := range s.registry.Names() {
		ttl := s.registry.TTL(event)
		if ttl <= 0 {
			continue
		}
		g.Go(func() error {
			n, err := s.exec.RunInt(ctx, script.Flush, script.FlushArgs{
				Prefix: s.opts.Prefix,
				Event:  event,
				TTL:    ttl,
				Now:    now,
				Fields: s.registry.EventFieldTypes(event),
			})
			if err != nil {
				return fmt.Errorf("flush %s: %w", event, err)
			}

			mu.Lock()
			removed[event] = n
			mu.Unlock()

			s.opts.Metrics.FlushRemoved(event, n)
			if n > 0 {
				s.opts.Logger.Info("expired events removed", "event", event, "removed", n, "cutoff", now-ttl)
			}
			return nil
		})
	}
	err := g.Wait()

	entry := sweeplog.Entry{
		StartedAt: started,
		Duration:  s.opts.Clock().Sub(started),
		Result:    metrics.Ok,
		Removed:   removed,
	}
	if err != nil {
		entry.Result = metrics.Fail
		entry.Error = err.Error()
	}
	s.opts.Metrics.FlushRun(entry.Result)
	s.record(ctx, entry)

	return true, err
}

func (s *Sweeper) record(ctx context.Context, e sweeplog.Entry) {
	if s.opts.Recorder == nil {
		return
	}
	if _, err := s.opts.Recorder.Record(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		s.opts.Logger.Warn("failed to record sweep", "error", err)
	}
}
