// Package memory implements the structured findings an investigation
// accumulates as it runs. Unlike the scratchpad, notes here survive context
// compaction in full and are persisted to disk after every write.
package memory

import "time"

// NoteType classifies an investigation note for keyword-based extraction
// and for selective rendering in summaries.
type NoteType string

const (
	NoteSymptom         NoteType = "symptom"
	NoteEvidence        NoteType = "evidence"
	NoteHypothesisUpdate NoteType = "hypothesis_update"
	NoteRootCauseCandidate NoteType = "root_cause_candidate"
	NoteServiceImpact   NoteType = "service_impact"
)

// EvidenceStrength mirrors the hypothesis engine's evidence strengths so
// memory can score and aggregate without importing that package.
type EvidenceStrength string

const (
	EvidenceStrong EvidenceStrength = "strong"
	EvidenceWeak   EvidenceStrength = "weak"
	EvidenceNone   EvidenceStrength = "none"
)

// HypothesisAction is the lifecycle event recorded by addHypothesisUpdate.
type HypothesisAction string

const (
	HypothesisFormed    HypothesisAction = "formed"
	HypothesisPruned    HypothesisAction = "pruned"
	HypothesisConfirmed HypothesisAction = "confirmed"
)

// Note is one structured finding. Fields not relevant to a given NoteType
// are left zero.
type Note struct {
	Type          NoteType         `json:"type"`
	Timestamp     time.Time        `json:"timestamp"`
	Content       string           `json:"content"`
	HypothesisID  string           `json:"hypothesisId,omitempty"`
	Strength      EvidenceStrength `json:"strength,omitempty"`
	Action        HypothesisAction `json:"action,omitempty"`
	Reasoning     string           `json:"reasoning,omitempty"`
	Services      []string         `json:"services,omitempty"`
	SourceResultID string          `json:"sourceResultId,omitempty"`
	Extracted     bool             `json:"extracted,omitempty"`
}

// Lexicon supplies the keyword lists extractFromThinking classifies
// sentences against. Configurable per Open Question resolution: callers may
// tune vocabulary per deployment without code changes.
type Lexicon struct {
	RootCause map[string][]string
	Symptom   map[string][]string
	Evidence  map[string][]string
}

// DefaultLexicon follows an event-reason -> significance-boost keyword
// style, generalized here into classification buckets instead of numeric
// weights.
var DefaultLexicon = Lexicon{
	RootCause: map[string][]string{
		"root_cause": {"root cause", "caused by", "due to", "because of", "the reason", "responsible for"},
	},
	Symptom: map[string][]string{
		"symptom": {"crashloopbackoff", "oomkilled", "error rate", "timeout", "unavailable", "latency spike", "failing", "degraded"},
	},
	Evidence: map[string][]string{
		"evidence": {"confirms", "indicates", "shows that", "suggests", "consistent with", "rules out"},
	},
}

// State is the full persisted shape for one investigation session.
type State struct {
	Version           int       `json:"version"`
	SessionID         string    `json:"sessionId"`
	Notes             []Note    `json:"notes"`
	Iteration         int       `json:"iteration"`
	ProgressSummary   string    `json:"progressSummary"`
	ConfirmedRootCause string   `json:"confirmedRootCause,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
