package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.IterationsTotal.Inc()
	m.ToolCallsTotal.WithLabelValues("cluster_health", "success").Inc()
	m.HypothesesCreatedTotal.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IterationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HypothesesCreatedTotal))
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Unregister()

	assert.NotPanics(t, func() {
		New(reg)
	})
}

func TestPhaseTransitionsLabeled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	defer m.Unregister()

	m.PhaseTransitionsTotal.WithLabelValues("TRIAGE", "HYPOTHESIZE").Inc()
	m.PhaseTransitionsTotal.WithLabelValues("TRIAGE", "HYPOTHESIZE").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PhaseTransitionsTotal.WithLabelValues("TRIAGE", "HYPOTHESIZE")))
}
