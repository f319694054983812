// Package hypothesis implements the hypothesis tree: proposal, evidence
// attachment, pruning, confirmation, and the frontier of hypotheses still
// worth investigating.
package hypothesis

import (
	"strconv"
	"time"
)

// Strength mirrors the evidence strengths used throughout the investigation
// engine: strong/weak/none/contradicting.
type Strength string

const (
	StrengthPending      Strength = "pending"
	StrengthNone         Strength = "none"
	StrengthWeak         Strength = "weak"
	StrengthStrong       Strength = "strong"
	StrengthContradicting Strength = "contradicting"
)

// Status is the lifecycle state of a hypothesis node.
type Status string

const (
	StatusActive    Status = "active"
	StatusPruned    Status = "pruned"
	StatusConfirmed Status = "confirmed"
)

// Action is the branch/prune/keep/confirm decision the StateMachine applies
// on EVALUATE.
type Action string

const (
	ActionBranch  Action = "branch"
	ActionConfirm Action = "confirm"
	ActionKeep    Action = "keep"
	ActionPrune   Action = "prune"
)

// Evidence is one piece of support or refutation attached to a node.
type Evidence struct {
	Strength        Strength  `json:"strength"`
	Content         string    `json:"content"`
	SourceResultIDs []string  `json:"sourceResultIds"`
	AttachedAt      time.Time `json:"attachedAt"`
}

// Node is one hypothesis in the tree.
type Node struct {
	ID        string     `json:"id"`
	Statement string     `json:"statement"`
	Category  string     `json:"category"`
	Priority  int        `json:"priority"`
	ParentID  string     `json:"parentId,omitempty"`
	Depth     int        `json:"depth"`
	Status    Status     `json:"status"`
	Evidence  []Evidence `json:"evidence"`
	CreatedAt time.Time  `json:"createdAt"`
	order     int        // monotonic creation order, for deterministic frontier sort
}

// AggregateStrength is the strongest strength among attached evidence, or
// StrengthPending if none has been attached yet. Contradicting evidence
// always wins regardless of what else is attached.
func (n *Node) AggregateStrength() Strength {
	if len(n.Evidence) == 0 {
		return StrengthPending
	}
	best := StrengthNone
	for _, e := range n.Evidence {
		if e.Strength == StrengthContradicting {
			return StrengthContradicting
		}
		if e.Strength == StrengthStrong {
			best = StrengthStrong
		} else if e.Strength == StrengthWeak && best != StrengthStrong {
			best = StrengthWeak
		}
	}
	return best
}

// IllegalStateError is returned when an operation targets a pruned or
// otherwise terminal hypothesis.
type IllegalStateError struct {
	HypothesisID string
	Reason       string
}

func (e *IllegalStateError) Error() string {
	return "hypothesis " + e.HypothesisID + " is in an illegal state: " + e.Reason
}

// NotFoundError is returned when a hypothesisId has never existed.
type NotFoundError struct {
	HypothesisID string
}

func (e *NotFoundError) Error() string {
	return "no such hypothesis id: " + e.HypothesisID
}

// DepthExceededError is returned when propose would exceed the configured
// maximum depth.
type DepthExceededError struct {
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return "hypothesis depth budget exceeded (max depth " + strconv.Itoa(e.MaxDepth) + ")"
}
