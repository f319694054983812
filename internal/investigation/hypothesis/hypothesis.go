package hypothesis

import (
	"sort"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/ids"
)

// confirmThreshold is the evidence strength at or above which a node may be
// confirmed.
const confirmThreshold = StrengthStrong

// SpecificityCheck decides whether a hypothesis statement is specific
// enough to confirm outright, versus branching into sub-hypotheses.
// DefaultSpecificityCheck implements the named-resource heuristic below;
// callers may supply their own.
type SpecificityCheck func(statement string) bool

// Engine owns the hypothesis tree for one investigation.
type Engine struct {
	mu               sync.Mutex
	maxDepth         int
	specificityCheck SpecificityCheck

	nodes        map[string]*Node
	children     map[string][]string // parentId -> childIds
	rootID       string
	confirmedID  string
	nextOrder    int
}

// Config configures a new Engine.
type Config struct {
	MaxDepth         int
	SpecificityCheck SpecificityCheck // nil uses DefaultSpecificityCheck
}

// New creates an empty hypothesis tree.
func New(cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	check := cfg.SpecificityCheck
	if check == nil {
		check = DefaultSpecificityCheck
	}
	return &Engine{
		maxDepth:         cfg.MaxDepth,
		specificityCheck: check,
		nodes:            make(map[string]*Node),
		children:         make(map[string][]string),
	}
}

// Propose creates a new hypothesis node. If parentID is non-empty, the node
// is a child at parent.depth+1. If parentID is empty, the node becomes the
// tree's root at depth 0 — but a tree holds exactly one root, so a second
// call with an empty parentID fails with IllegalStateError rather than
// growing a forest. Callers with more than one candidate top-level
// hypothesis should propose the first with an empty parentID and the rest
// as children of RootID().
func (e *Engine) Propose(statement, category string, priority int, parentID string) (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if parentID == "" && e.rootID != "" {
		return nil, &IllegalStateError{HypothesisID: e.rootID, Reason: "a root hypothesis already exists for this investigation"}
	}

	depth := 0
	if parentID != "" {
		parent, ok := e.nodes[parentID]
		if !ok {
			return nil, &NotFoundError{HypothesisID: parentID}
		}
		if parent.Status == StatusPruned {
			return nil, &IllegalStateError{HypothesisID: parentID, Reason: "parent is pruned"}
		}
		depth = parent.Depth + 1
	}
	if depth > e.maxDepth {
		return nil, &DepthExceededError{MaxDepth: e.maxDepth}
	}

	node := &Node{
		ID:        ids.NewHypothesisID(),
		Statement: statement,
		Category:  category,
		Priority:  priority,
		ParentID:  parentID,
		Depth:     depth,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
		order:     e.nextOrder,
	}
	e.nextOrder++
	e.nodes[node.ID] = node
	if parentID == "" {
		e.rootID = node.ID
	} else {
		e.children[parentID] = append(e.children[parentID], node.ID)
	}
	return node, nil
}

// RootID returns the id of the investigation's single root hypothesis, or
// "" if none has been proposed yet.
func (e *Engine) RootID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rootID
}

// AttachEvidence appends evidence to a hypothesis. Fails with
// IllegalStateError if the node is pruned.
func (e *Engine) AttachEvidence(hypothesisID string, strength Strength, content string, sourceResultIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.nodes[hypothesisID]
	if !ok {
		return &NotFoundError{HypothesisID: hypothesisID}
	}
	if node.Status == StatusPruned {
		return &IllegalStateError{HypothesisID: hypothesisID, Reason: "cannot attach evidence to a pruned hypothesis"}
	}
	node.Evidence = append(node.Evidence, Evidence{
		Strength:        strength,
		Content:         content,
		SourceResultIDs: sourceResultIDs,
		AttachedAt:      time.Now().UTC(),
	})
	return nil
}

// Prune marks a node and its entire subtree pruned. Subsequent operations
// on any pruned id fail with IllegalStateError.
func (e *Engine) Prune(hypothesisID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.nodes[hypothesisID]
	if !ok {
		return &NotFoundError{HypothesisID: hypothesisID}
	}
	e.pruneSubtreeLocked(node, reason)
	return nil
}

func (e *Engine) pruneSubtreeLocked(node *Node, reason string) {
	if node.Status == StatusPruned {
		return
	}
	node.Status = StatusPruned
	_ = reason
	for _, childID := range e.children[node.ID] {
		if child, ok := e.nodes[childID]; ok {
			e.pruneSubtreeLocked(child, reason)
		}
	}
}

// Confirm marks a node confirmed. At most one confirmed node is allowed per
// tree; confirming a second node fails with IllegalStateError.
func (e *Engine) Confirm(hypothesisID string, evidence []Evidence) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, ok := e.nodes[hypothesisID]
	if !ok {
		return &NotFoundError{HypothesisID: hypothesisID}
	}
	if node.Status == StatusPruned {
		return &IllegalStateError{HypothesisID: hypothesisID, Reason: "cannot confirm a pruned hypothesis"}
	}
	if e.confirmedID != "" && e.confirmedID != hypothesisID {
		return &IllegalStateError{HypothesisID: hypothesisID, Reason: "another hypothesis is already confirmed: " + e.confirmedID}
	}
	node.Evidence = append(node.Evidence, evidence...)
	node.Status = StatusConfirmed
	e.confirmedID = hypothesisID
	return nil
}

// Frontier returns active leaf hypotheses whose aggregate evidence strength
// is pending, none, or weak, ordered by priority descending then creation
// order ascending.
func (e *Engine) Frontier() []*Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Node
	for _, node := range e.nodes {
		if node.Status != StatusActive {
			continue
		}
		if len(e.children[node.ID]) > 0 {
			continue // not a leaf
		}
		switch node.AggregateStrength() {
		case StrengthPending, StrengthNone, StrengthWeak:
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].order < out[j].order
	})
	return out
}

// IsComplete reports whether investigation can conclude: a confirmed node
// exists, or the frontier is empty and no node has remaining depth budget.
func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.confirmedID != "" {
		return true
	}

	hasFrontier := false
	for _, node := range e.nodes {
		if node.Status != StatusActive || len(e.children[node.ID]) > 0 {
			continue
		}
		switch node.AggregateStrength() {
		case StrengthPending, StrengthNone, StrengthWeak:
			hasFrontier = true
		}
	}
	if hasFrontier {
		return false
	}

	for _, node := range e.nodes {
		if node.Status == StatusActive && node.Depth < e.maxDepth {
			return false
		}
	}
	return true
}

// DecideAction implements the branch/prune policy invoked by the state
// machine on EVALUATE, given a node's current aggregate evidence strength.
func (e *Engine) DecideAction(hypothesisID string) (Action, error) {
	e.mu.Lock()
	node, ok := e.nodes[hypothesisID]
	e.mu.Unlock()
	if !ok {
		return "", &NotFoundError{HypothesisID: hypothesisID}
	}

	strength := node.AggregateStrength()
	switch strength {
	case StrengthStrong:
		if e.specificityCheck(node.Statement) {
			return ActionConfirm, nil
		}
		return ActionBranch, nil
	case StrengthWeak:
		return ActionKeep, nil
	case StrengthNone, StrengthContradicting:
		return ActionPrune, nil
	default:
		return ActionKeep, nil
	}
}

// Get returns a hypothesis node by id.
func (e *Engine) Get(hypothesisID string) (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := e.nodes[hypothesisID]
	if !ok {
		return nil, &NotFoundError{HypothesisID: hypothesisID}
	}
	return node, nil
}

// All returns every node in the tree, in creation order.
func (e *Engine) All() []*Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Node, 0, len(e.nodes))
	for _, n := range e.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}
