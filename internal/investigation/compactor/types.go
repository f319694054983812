// Package compactor scores scratchpad results by importance and turns the
// scores into a tiering plan the scratchpad can apply.
package compactor

// Weights are the six scoring axis weights. A valid set sums to 1.0.
type Weights struct {
	Recency             float64
	QueryRelevance      float64
	ErrorSignals        float64
	HypothesisRelevance float64
	ServiceRelevance    float64
	CitedInNotes        float64
}

// DefaultWeights is the "balanced" preset.
var DefaultWeights = Weights{
	Recency:             0.20,
	QueryRelevance:      0.20,
	ErrorSignals:        0.20,
	HypothesisRelevance: 0.15,
	ServiceRelevance:    0.10,
	CitedInNotes:        0.15,
}

// Presets maps the named weight profiles selectable via --compaction-preset.
var Presets = map[string]Weights{
	"balanced": DefaultWeights,
	"incident": {
		Recency:             0.10,
		QueryRelevance:      0.10,
		ErrorSignals:        0.35,
		HypothesisRelevance: 0.30,
		ServiceRelevance:    0.10,
		CitedInNotes:        0.05,
	},
	"research": {
		Recency:             0.30,
		QueryRelevance:      0.35,
		ErrorSignals:        0.10,
		HypothesisRelevance: 0.10,
		ServiceRelevance:    0.05,
		CitedInNotes:        0.10,
	},
}

// EvidenceRef is the minimal shape the compactor needs from
// InvestigationMemory's notes to score hypothesis-relevance and citations.
type EvidenceRef struct {
	ResultID string
	Strength string // "strong", "weak", "none"
}

// Note is the minimal shape the compactor needs from an investigation note
// to score cited-in-notes.
type Note struct {
	ReferencedResultIDs []string
}

// ScoreInput bundles everything needed to score one stored result. Fields
// come from scratchpad.StoredResult, HypothesisEngine's evidence, and
// InvestigationMemory's notes — the compactor package depends on none of
// those packages directly, only on these plain values, so it stays a pure
// scoring library.
type ScoreInput struct {
	ResultID     string
	ToolName     string
	Args         map[string]interface{}
	SerializedResult string
	TimestampUnix int64
	HasErrors    bool
	HealthStatus string // "ok", "degraded", "critical", "unknown"
	Services     []string
}

// Scored pairs a ScoreInput with its computed score and per-axis breakdown.
type Scored struct {
	ResultID    string
	Score       float64
	Breakdown   map[string]float64
	TimestampUnix int64
}

// Plan assigns every scored result to a tier.
type Plan struct {
	Full    []string
	Compact []string
	Cleared []string
}

// PlanMode selects between the two plan-production strategies.
type PlanMode string

const (
	ModeCount  PlanMode = "count"
	ModeBudget PlanMode = "budget"
)

// CountLimits configures count-based plan production.
type CountLimits struct {
	MaxFullResults    int
	MinScoreForFull   float64
	MaxCompactResults int
	MinScoreToKeep    float64
}

// DefaultCountLimits mirrors the scratchpad's default soft cap scale: small
// investigations keep most results full, larger ones compact aggressively.
var DefaultCountLimits = CountLimits{
	MaxFullResults:    8,
	MinScoreForFull:   0.5,
	MaxCompactResults: 20,
	MinScoreToKeep:    0.2,
}

// BudgetLimits configures budget-based plan production. Costs are estimated
// token counts; TokenEstimator supplies the per-result cost.
type BudgetLimits struct {
	MaxTokens int
}
