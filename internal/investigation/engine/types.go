// Package engine implements the phased investigation state machine: the
// orchestrator that wires the scratchpad, hypothesis tree, investigation
// memory, knowledge/infra/service context managers and the tool registry
// into one bounded, research-first investigation loop.
package engine

import (
	"time"

	"github.com/moolen/invagent/internal/investigation/compactor"
	"github.com/moolen/invagent/internal/investigation/hypothesis"
)

// Phase is one state of the investigation state machine.
type Phase string

const (
	PhaseTriage       Phase = "triage"
	PhaseHypothesize  Phase = "hypothesize"
	PhaseInvestigate  Phase = "investigate"
	PhaseEvaluate     Phase = "evaluate"
	PhaseConclude     Phase = "conclude"
	PhaseRemediate    Phase = "remediate"
)

// EventType identifies one entry in the event stream yielded to the caller
// while Run executes.
type EventType string

const (
	EventThinking         EventType = "thinking"
	EventKnowledgeRetrieved EventType = "knowledge_retrieved"
	EventToolStart        EventType = "tool_start"
	EventToolEnd          EventType = "tool_end"
	EventToolError        EventType = "tool_error"
	EventToolLimit        EventType = "tool_limit"
	EventContextCleared   EventType = "context_cleared"
	EventAnswerStart      EventType = "answer_start"
	EventDone             EventType = "done"
	EventCancelled        EventType = "cancelled"
)

// Event is one entry of the event stream. Fields not relevant to Type are
// left zero.
type Event struct {
	Type            EventType              `json:"type"`
	Phase           Phase                  `json:"phase,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Text            string                 `json:"text,omitempty"`
	Tool            string                 `json:"tool,omitempty"`
	Args            map[string]interface{} `json:"args,omitempty"`
	ResultID        string                 `json:"resultId,omitempty"`
	Warning         string                 `json:"warning,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Count           int                    `json:"count,omitempty"`
	Answer          string                 `json:"answer,omitempty"`
	InvestigationID string                 `json:"investigationId,omitempty"`
}

// Emitter receives Events as Run executes. Implementations must not block
// for long; Run does not buffer events.
type Emitter func(Event)

// Outcome classifies how an investigation concluded.
type Outcome string

const (
	OutcomeConfirmed           Outcome = "confirmed"
	OutcomeInsufficientEvidence Outcome = "insufficient_evidence"
	OutcomeCancelled           Outcome = "cancelled"
)

// Result is the final report produced by Run.
type Result struct {
	InvestigationID  string
	Outcome          Outcome
	RootCause        string
	ActiveFrontier   []string
	Iterations       int
	FinalPhase       Phase
}

// Config bounds one investigation run and configures the components
// StateMachine owns exclusively for its lifetime: Scratchpad,
// HypothesisEngine, InvestigationMemory.
type Config struct {
	SessionID  string
	Query      string
	IncidentID string

	ScratchpadLogPath string
	ScratchpadSoftCap int

	MemoryFilePath string

	MaxHypothesisDepth int
	SpecificityCheck   hypothesis.SpecificityCheck

	MaxTriageIterations      int
	MaxIterations            int
	MaxToolCallsPerIteration int
	MaxInvestigateQueries    int

	// TokenThreshold triggers ContextCompactor once Scratchpad.TokenEstimate
	// exceeds it. Zero or a negative value uses the default of 6000.
	TokenThreshold int
	CompactorMode  compactor.PlanMode
	Weights        compactor.Weights
	CountLimits    compactor.CountLimits
	BudgetLimits   compactor.BudgetLimits

	// KnownServices seeds the initial knowledge/service-context query, e.g.
	// services named directly in the incident query.
	KnownServices []string
}

// withDefaults fills zero-valued tunables with their recommended
// defaults.
func (c Config) withDefaults() Config {
	if c.ScratchpadSoftCap <= 0 {
		c.ScratchpadSoftCap = 3
	}
	if c.MaxHypothesisDepth <= 0 {
		c.MaxHypothesisDepth = 3
	}
	if c.MaxTriageIterations <= 0 {
		c.MaxTriageIterations = 2
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 25
	}
	if c.MaxToolCallsPerIteration <= 0 {
		c.MaxToolCallsPerIteration = 5
	}
	if c.MaxInvestigateQueries <= 0 {
		c.MaxInvestigateQueries = 4
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 6000
	}
	if c.CompactorMode == "" {
		c.CompactorMode = compactor.ModeCount
	}
	if c.Weights == (compactor.Weights{}) {
		c.Weights = compactor.DefaultWeights
	}
	if c.CountLimits == (compactor.CountLimits{}) {
		c.CountLimits = compactor.DefaultCountLimits
	}
	return c
}
