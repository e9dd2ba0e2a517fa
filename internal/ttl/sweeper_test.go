package ttl

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logfire/internal/ir"
	"github.com/roach88/logfire/internal/metrics"
	"github.com/roach88/logfire/internal/schema"
	"github.com/roach88/logfire/internal/script"
	"github.com/roach88/logfire/internal/store"
	"github.com/roach88/logfire/internal/sweeplog"
	lftest "github.com/roach88/logfire/internal/testutil"
)

const now = int64(1400000000)

type fixture struct {
	mr      *miniredis.Miniredis
	store   *store.Store
	reg     *schema.Registry
	exec    *script.Executor
	metrics *metrics.Metrics
	clock   *lftest.FixedClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg, err := schema.New(map[string]schema.EventDef{
		"video.success": {TTL: 3600, Fields: map[string]schema.FieldDef{
			"server": {Type: ir.TypeNumber},
		}},
		"video.failure": {TTL: 60, Fields: map[string]schema.FieldDef{
			"reason": {Type: ir.TypeString},
		}},
		"audit.login": {Fields: map[string]schema.FieldDef{
			"user": {Type: ir.TypeString},
		}},
	})
	require.NoError(t, err)

	mr, client := lftest.NewRedis(t)
	m := metrics.New(prometheus.NewRegistry())
	exec := script.NewExecutor(client, nil, m)
	clock := lftest.NewFixedClockUnix(now)
	s := store.New(client, reg, exec, store.Options{StampEvent: true, Clock: clock.Now})
	return fixture{mr: mr, store: s, reg: reg, exec: exec, metrics: m, clock: clock}
}

func (f fixture) sweeper(opts Options) *Sweeper {
	opts.Prefix = f.store.Prefix()
	opts.Clock = f.clock.Now
	opts.Metrics = f.metrics
	return New(f.reg, f.exec, opts)
}

func (f fixture) create(t *testing.T, event string, date int64, data ir.Object) int64 {
	t.Helper()
	if data == nil {
		data = ir.Object{}
	}
	data["$date"] = ir.Number(date)
	id, err := f.store.Create(context.Background(), event, data)
	require.NoError(t, err)
	return id
}

type recorder struct {
	mu      sync.Mutex
	entries []sweeplog.Entry
	block   chan struct{}
	entered chan struct{}
}

func (r *recorder) Record(_ context.Context, e sweeplog.Entry) (int64, error) {
	if r.block != nil && e.Result != metrics.Skipped {
		r.entered <- struct{}{}
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return int64(len(r.entries)), nil
}

func (r *recorder) results() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Result
	}
	return out
}

func TestFlushRemovesExpiredEventsPerType(t *testing.T) {
	f := newFixture(t)

	expired := f.create(t, "video.success", now-7200, ir.Object{"server": ir.Number(1)})
	atCutoff := f.create(t, "video.success", now-3600, ir.Object{"server": ir.Number(2)})
	fresh := f.create(t, "video.success", now, ir.Object{"server": ir.Number(3)})
	failure := f.create(t, "video.failure", now-61, nil)
	login := f.create(t, "audit.login", now-1_000_000, nil)

	rec := &recorder{}
	ran, err := f.sweeper(Options{Recorder: rec}).Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	ctx := context.Background()
	for _, id := range []int64{expired, failure} {
		_, err := f.store.Get(ctx, itoa(id))
		assert.True(t, ir.HasCode(err, ir.ErrCodeNotFound), "event %d should be gone", id)
	}
	for _, id := range []int64{atCutoff, fresh, login} {
		_, err := f.store.Get(ctx, itoa(id))
		assert.NoError(t, err, "event %d should be kept", id)
	}

	for _, field := range []string{"$id", "$date", "server"} {
		ids, err := f.mr.ZMembers("logfire:indexes:video.success:" + field)
		require.NoError(t, err)
		assert.NotContains(t, ids, itoa(expired), field)
		assert.Len(t, ids, 2, field)
	}
	members, err := f.mr.Members("logfire:set:video.success")
	require.NoError(t, err)
	assert.NotContains(t, members, itoa(expired))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, metrics.Ok, rec.entries[0].Result)
	assert.Equal(t, map[string]int64{"video.success": 1, "video.failure": 1}, rec.entries[0].Removed)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Ok)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FlushRemovedTotal.WithLabelValues("video.success")))
}

func TestFlushNeverRemovesUnexpired(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 50; i++ {
		f.create(t, "video.success", now-3600+i*60, ir.Object{"server": ir.Number(i)})
	}

	ran, err := f.sweeper(Options{Concurrency: 1}).Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	ids, err := f.mr.ZMembers("logfire:indexes:video.success:$id")
	require.NoError(t, err)
	assert.Len(t, ids, 50)
}

func TestFlushSkipsWhileFlushing(t *testing.T) {
	f := newFixture(t)
	f.create(t, "video.success", now-7200, nil)

	var logs bytes.Buffer
	rec := &recorder{block: make(chan struct{}), entered: make(chan struct{})}
	s := f.sweeper(Options{Recorder: rec, Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Flush(context.Background())
		firstDone <- err
	}()

	// The first tick is still flushing until its entry is recorded.
	<-rec.entered

	ran, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(rec.block)
	require.NoError(t, <-firstDone)

	assert.Equal(t, []string{metrics.Skipped, metrics.Ok}, rec.results())
	assert.Contains(t, logs.String(), "level=INFO msg=\"sweep skipped, previous sweep still flushing\"")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Skipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Ok)))

	// Back to idle.
	ran, err = s.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestFlushFailureIsReported(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	s := f.sweeper(Options{Recorder: rec})

	f.mr.Close()

	ran, err := s.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, ran)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, metrics.Fail, rec.entries[0].Result)
	assert.NotEmpty(t, rec.entries[0].Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Fail)))

	// A failed tick still returns the sweeper to idle.
	assert.False(t, s.flushing.Load())
}

func TestFlushRecordsToSweepLog(t *testing.T) {
	f := newFixture(t)
	f.create(t, "video.failure", now-120, nil)

	log, err := sweeplog.Open(filepath.Join(t.TempDir(), "sweeps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	_, err = f.sweeper(Options{Recorder: log}).Flush(context.Background())
	require.NoError(t, err)

	entries, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, metrics.Ok, entries[0].Result)
	assert.Equal(t, int64(1), entries[0].Removed["video.failure"])
	assert.Equal(t, now, entries[0].StartedAt.Unix())
}

func TestStartTicksUntilStopped(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(Options{Interval: 5 * time.Millisecond})

	s.Start(context.Background())
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Ok)) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Ok))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Ok)))

	s.Stop()
}

// slowRecorder holds every completed tick until release is closed.
type slowRecorder struct {
	mu      sync.Mutex
	results []string
	release chan struct{}
}

func (r *slowRecorder) Record(_ context.Context, e sweeplog.Entry) (int64, error) {
	if e.Result != metrics.Skipped {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, e.Result)
	return int64(len(r.results)), nil
}

func (r *slowRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.results {
		if got == result {
			n++
		}
	}
	return n
}

func TestTicksDuringFlushAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.create(t, "video.success", now-7200, nil)

	rec := &slowRecorder{release: make(chan struct{})}
	s := f.sweeper(Options{Interval: 5 * time.Millisecond, Recorder: rec})
	s.Start(context.Background())

	// The first tick stays flushing until released; later ticks must not queue.
	require.Eventually(t, func() bool {
		return rec.count(metrics.Skipped) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rec.count(metrics.Ok))

	close(rec.release)
	s.Stop()

	assert.GreaterOrEqual(t, rec.count(metrics.Ok), 1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.FlushRunsTotal.WithLabelValues(metrics.Skipped)), 3.0)
	assert.False(t, s.flushing.Load())
}

func TestStartStopsWithContext(t *testing.T) {
	f := newFixture(t)
	s := f.sweeper(Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}

	// A sweeper stopped by its context can be started again.
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	assert.False(t, running)

	s.Start(context.Background())
	s.mu.Lock()
	assert.True(t, s.running)
	assert.NotEqual(t, done, s.done)
	s.mu.Unlock()
	s.Stop()
}

func TestNewDefaults(t *testing.T) {
	s := New(nil, nil, Options{})
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.NotNil(t, s.opts.Clock)
	assert.NotNil(t, s.opts.Logger)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
