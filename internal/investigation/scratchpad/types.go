// Package scratchpad implements the append-only, durable record of an
// investigation's actions paired with an in-memory tiered index. Every tool
// call, thinking excerpt, and phase transition is appended to a JSON-lines
// log that is never mutated; the in-memory index provides fast access and
// tracks which tier (full/compact/cleared) each tool result currently
// occupies.
package scratchpad

import "time"

// EntryType identifies the kind of record appended to the on-disk log.
type EntryType string

const (
	EntryInit            EntryType = "init"
	EntryThinking        EntryType = "thinking"
	EntryToolResult      EntryType = "tool_result"
	EntryPhaseTransition EntryType = "phase_transition"
)

// Entry is one line of the on-disk JSON-lines log. Readers must ignore
// unknown types and unknown fields for forward compatibility.
type Entry struct {
	Type      EntryType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"sessionId,omitempty"`
	ResultID  string                 `json:"resultId,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Result    interface{}            `json:"result,omitempty"`
	DurationMs int64                 `json:"durationMs,omitempty"`
	Text      string                 `json:"text,omitempty"`
	FromPhase string                 `json:"fromPhase,omitempty"`
	ToPhase   string                 `json:"toPhase,omitempty"`
}

// Tier is the context-residency state of a tool result.
type Tier string

const (
	TierFull    Tier = "full"
	TierCompact Tier = "compact"
	TierCleared Tier = "cleared"
)

// HealthStatus is the coarse health read off a tool result.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// CompactSummary is the fixed-shape reduction of a ToolResult, one-to-one
// with it while the result is live or archived.
type CompactSummary struct {
	ResultID     string       `json:"resultId"`
	ShortText    string       `json:"shortText"`
	Services     []string     `json:"services"`
	HealthStatus HealthStatus `json:"healthStatus"`
	HasErrors    bool         `json:"hasErrors"`
}

// StoredResult is the immutable record of one tool call. It is never
// mutated after append; clearing only changes its Tier.
type StoredResult struct {
	ResultID   string                 `json:"resultId"`
	ToolName   string                 `json:"toolName"`
	Args       map[string]interface{} `json:"args"`
	Result     interface{}            `json:"result"`
	DurationMs int64                  `json:"durationMs"`
	Timestamp  time.Time              `json:"timestamp"`
	Summary    CompactSummary         `json:"summary"`
	Tier       Tier                   `json:"tier"`
}

// CanCallResult is the graceful (never-blocking) response from CanCallTool.
type CanCallResult struct {
	Allowed bool
	Warning string
}

// CompactionPlan assigns every still-live result to a tier. Produced by
// ContextCompactor and applied verbatim by ApplyCompactionPlan.
type CompactionPlan struct {
	Full    []string
	Compact []string
	Cleared []string
}

// NotFoundError is returned by GetResultByID when the id never existed.
type NotFoundError struct {
	ResultID string
}

func (e *NotFoundError) Error() string {
	return "scratchpad: no such result id: " + e.ResultID
}
