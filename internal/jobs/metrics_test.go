package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("stock:low-scan").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("stock:low-scan").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:low-scan", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("stock:low-scan", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("stock:low-scan")))
}

func TestAddStockAlerts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddStockAlerts("invoice:posted", 3)
	m.AddStockAlerts("invoice:posted", 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.alerts.WithLabelValues("invoice:posted")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddStockAlerts("x", 1)
	assert.NoError(t, m.Track("x").End(nil))
}
