package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("mto:resolve-status").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("mto:resolve-status").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mto:resolve-status", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mto:resolve-status", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mto:resolve-status")))
}

func TestAddSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSweep(5, 2, 1)

	require.Equal(t, 5.0, testutil.ToFloat64(m.sweep.WithLabelValues("checked")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.sweep.WithLabelValues("changed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sweep.WithLabelValues("failed")))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("noop").End(nil))
	m.AddSweep(1, 1, 1)
}
