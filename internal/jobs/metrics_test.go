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

	require.NoError(t, m.Track("replenishment:scan").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("replenishment:scan").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("replenishment:scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("replenishment:scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("replenishment:scan")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("replenishment:scan")))
	require.Zero(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("inventory:reconcile")))
}

func TestDriftAndAlertCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddDrift(0)
	m.AddDrift(3)
	m.AlertDelivered("insufficient_stock")

	require.Equal(t, 3.0, testutil.ToFloat64(m.drift))
	require.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("insufficient_stock")))

	var nilMetrics *Metrics
	nilMetrics.AddDrift(1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
