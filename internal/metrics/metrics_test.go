package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventCreated("video.success")
	m.EventCreated("video.success")
	m.QueryDone(Ok, 10*time.Millisecond)
	m.FlushRun(Skipped)
	m.FlushRemoved("video.success", 5)
	m.FlushRemoved("video.success", 0)
	m.ScriptError("query")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsCreatedTotal.WithLabelValues("video.success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(Ok)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushRunsTotal.WithLabelValues(Skipped)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FlushRemovedTotal.WithLabelValues("video.success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptErrorsTotal.WithLabelValues("query")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventCreated("a.b")
		m.QueryDone(Fail, time.Second)
		m.FlushRun(Ok)
		m.FlushRemoved("a.b", 3)
		m.ScriptError("create")
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
