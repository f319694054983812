// Package metrics holds Prometheus metrics for the investigation engine:
// phase transitions, tool call volume, hypothesis lifecycle, and approval
// outcomes. A single Metrics instance is created per process and wired
// into the components that emit observability signal.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for the investigation engine.
type Metrics struct {
	PhaseTransitionsTotal  *prometheus.CounterVec // labels: from, to
	IterationsTotal        prometheus.Counter
	ToolCallsTotal         *prometheus.CounterVec // labels: tool, outcome
	ToolCallDuration       *prometheus.HistogramVec
	HypothesesCreatedTotal prometheus.Counter
	HypothesesConfirmed    prometheus.Counter
	HypothesesPruned       prometheus.Counter
	CompactionsTotal       prometheus.Counter
	ScratchpadTierChanges  *prometheus.CounterVec // labels: to_tier
	ApprovalsTotal         *prometheus.CounterVec // labels: outcome
	InfraCacheHits         prometheus.Counter
	InfraCacheMisses       prometheus.Counter

	collectors []prometheus.Collector
	registerer prometheus.Registerer
}

// New creates and registers the investigation engine's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	phaseTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invagent_phase_transitions_total",
		Help: "Total number of state machine phase transitions.",
	}, []string{"from", "to"})

	iterations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_iterations_total",
		Help: "Total number of INVESTIGATE/EVALUATE loop iterations across all sessions.",
	})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invagent_tool_calls_total",
		Help: "Total number of tool invocations, by tool and outcome.",
	}, []string{"tool", "outcome"})

	toolCallDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invagent_tool_call_duration_seconds",
		Help:    "Tool call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	hypothesesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_hypotheses_created_total",
		Help: "Total number of hypothesis nodes created.",
	})

	hypothesesConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_hypotheses_confirmed_total",
		Help: "Total number of hypothesis nodes confirmed.",
	})

	hypothesesPruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_hypotheses_pruned_total",
		Help: "Total number of hypothesis nodes pruned.",
	})

	compactions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_compactions_total",
		Help: "Total number of ContextCompactor.compact invocations.",
	})

	tierChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invagent_scratchpad_tier_changes_total",
		Help: "Total number of scratchpad entries transitioned to a storage tier.",
	}, []string{"to_tier"})

	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invagent_approvals_total",
		Help: "Total number of mutation approval outcomes.",
	}, []string{"outcome"})

	infraCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_infra_cache_hits_total",
		Help: "Total number of InfraContextMgr cache hits.",
	})

	infraCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invagent_infra_cache_misses_total",
		Help: "Total number of InfraContextMgr cache misses.",
	})

	collectors := []prometheus.Collector{
		phaseTransitions, iterations, toolCalls, toolCallDuration,
		hypothesesCreated, hypothesesConfirmed, hypothesesPruned,
		compactions, tierChanges, approvals, infraCacheHits, infraCacheMisses,
	}
	reg.MustRegister(collectors...)

	return &Metrics{
		PhaseTransitionsTotal:  phaseTransitions,
		IterationsTotal:        iterations,
		ToolCallsTotal:         toolCalls,
		ToolCallDuration:       toolCallDuration,
		HypothesesCreatedTotal: hypothesesCreated,
		HypothesesConfirmed:    hypothesesConfirmed,
		HypothesesPruned:       hypothesesPruned,
		CompactionsTotal:       compactions,
		ScratchpadTierChanges:  tierChanges,
		ApprovalsTotal:         approvals,
		InfraCacheHits:         infraCacheHits,
		InfraCacheMisses:       infraCacheMisses,
		collectors:             collectors,
		registerer:             reg,
	}
}

// Unregister removes all metrics from the registry. Used by tests that
// construct multiple Metrics instances against the same registry.
func (m *Metrics) Unregister() {
	if m.registerer == nil {
		return
	}
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}
