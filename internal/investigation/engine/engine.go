package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moolen/invagent/internal/errs"
	"github.com/moolen/invagent/internal/ids"
	"github.com/moolen/invagent/internal/investigation/causalquery"
	"github.com/moolen/invagent/internal/investigation/compactor"
	"github.com/moolen/invagent/internal/investigation/hypothesis"
	"github.com/moolen/invagent/internal/investigation/infra"
	"github.com/moolen/invagent/internal/investigation/knowledge"
	"github.com/moolen/invagent/internal/investigation/memory"
	"github.com/moolen/invagent/internal/investigation/scratchpad"
	"github.com/moolen/invagent/internal/investigation/summarize"
	"github.com/moolen/invagent/internal/llm"
	"github.com/moolen/invagent/internal/logging"
	"github.com/moolen/invagent/internal/servicectx"
	"github.com/moolen/invagent/internal/servicegraph"
	"github.com/moolen/invagent/internal/store"
	"github.com/moolen/invagent/internal/tool"
)

// RemediationMatcher decides whether a confirmed root cause has a matching
// remediation skill, consulted on the CONCLUDE -> REMEDIATE transition.
type RemediationMatcher interface {
	Match(rootCause string) (skillName string, ok bool)
}

// Dependencies are the collaborators StateMachine composes but does not
// own. ServiceGraph in particular is process-wide and read-mostly;
// StateMachine exclusively owns Scratchpad, HypothesisEngine and
// InvestigationMemory, constructed from Config in New.
type Dependencies struct {
	LLM         llm.Provider
	Tools       *tool.Registry
	Knowledge   *knowledge.Manager
	ServiceCtx  *servicectx.Manager
	Graph       *servicegraph.Graph
	Infra       *infra.Manager
	Remediation RemediationMatcher

	// SessionIndex, when set, is handed to InvestigationMemory so each
	// persisted mutation also mirrors into the shared sqlite session
	// index. Process-wide and read/write-shared the same way Graph is.
	SessionIndex *store.Store
}

// StateMachine drives one investigation from TRIAGE through CONCLUDE, and
// optionally REMEDIATE.
type StateMachine struct {
	cfg Config

	llmClient  llm.Provider
	tools      *tool.Registry
	scratchpad *scratchpad.Scratchpad
	hyp        *hypothesis.Engine
	memory     *memory.Memory
	knowledge  *knowledge.Manager
	serviceCtx *servicectx.Manager
	graph      *servicegraph.Graph
	infra      *infra.Manager
	remediate  RemediationMatcher

	logger *logging.Logger
	emit   Emitter

	phase              Phase
	iteration          int
	triageIterations   int
	hypothesizeRetries int
	disabledTools      map[string]bool
	discoveredServices []string
	discoveredSymptoms []string
	lastKnowledge      []knowledge.Chunk
	lastServiceCtx     []*servicectx.Context
	lastInfra          *infra.Snapshot
}

// New constructs a StateMachine. Scratchpad, HypothesisEngine and
// InvestigationMemory are created fresh (or resumed from disk, for
// Scratchpad/Memory, if their configured paths already hold state).
func New(cfg Config, deps Dependencies) (*StateMachine, error) {
	cfg = cfg.withDefaults()
	if deps.LLM == nil {
		return nil, errs.New(errs.Configuration, "engine: an llm.Provider is required")
	}
	if deps.Tools == nil {
		deps.Tools = tool.NewRegistry()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = ids.NewSessionID()
	}

	sp, err := scratchpad.New(scratchpad.Config{
		SessionID: cfg.SessionID,
		LogPath:   cfg.ScratchpadLogPath,
		SoftCap:   cfg.ScratchpadSoftCap,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "engine: creating scratchpad", err)
	}

	hyp := hypothesis.New(hypothesis.Config{MaxDepth: cfg.MaxHypothesisDepth, SpecificityCheck: cfg.SpecificityCheck})

	mem, err := memory.New(memory.Config{SessionID: cfg.SessionID, Query: cfg.Query, FilePath: cfg.MemoryFilePath, Index: deps.SessionIndex})
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "engine: creating investigation memory", err)
	}

	return &StateMachine{
		cfg:                cfg,
		llmClient:          deps.LLM,
		tools:              deps.Tools,
		scratchpad:         sp,
		hyp:                hyp,
		memory:             mem,
		knowledge:          deps.Knowledge,
		serviceCtx:         deps.ServiceCtx,
		graph:              deps.Graph,
		infra:              deps.Infra,
		remediate:          deps.Remediation,
		logger:             logging.GetLogger("investigation.engine"),
		phase:              PhaseTriage,
		disabledTools:      make(map[string]bool),
		discoveredServices: append([]string{}, cfg.KnownServices...),
	}, nil
}

// Close releases the durable handles StateMachine owns.
func (sm *StateMachine) Close() error {
	return sm.scratchpad.Close()
}

func (sm *StateMachine) emitEvent(e Event) {
	e.Timestamp = time.Now().UTC()
	e.Phase = sm.phase
	if sm.emit != nil {
		sm.emit(e)
	}
}

func (sm *StateMachine) transition(to Phase) {
	from := sm.phase
	sm.phase = to
	_ = sm.scratchpad.Append(scratchpad.Entry{
		Type:      scratchpad.EntryPhaseTransition,
		FromPhase: string(from),
		ToPhase:   string(to),
	})
	sm.logger.InfoWithFields("phase transition", logging.Field("from", string(from)), logging.Field("to", string(to)))
}

// Run drives the investigation to completion, yielding events through
// emit as it goes. The returned error is always nil: every outcome,
// including Policy stops, contract violations, tool failures and ctx
// cancellation, is reported through Result.Outcome and the event stream.
func (sm *StateMachine) Run(ctx context.Context, emit Emitter) (*Result, error) {
	sm.emit = emit

	ctx = context.WithValue(ctx, logging.SessionIDKey(), sm.cfg.SessionID)
	sm.logger = sm.logger.WithContext(ctx)

	if err := sm.scratchpad.Append(scratchpad.Entry{Type: scratchpad.EntryInit, Text: sm.cfg.Query}); err != nil {
		sm.logger.ErrorWithFields("failed to append init entry", logging.Field("error", err.Error()))
	}
	sm.prefetch(ctx)

	for sm.iteration < sm.cfg.MaxIterations {
		if ctx.Err() != nil {
			return sm.handleCancellation(), nil
		}
		sm.iteration++

		switch sm.phase {
		case PhaseTriage:
			sm.stepTriage(ctx)
			if sm.triageComplete() {
				sm.transition(PhaseHypothesize)
			}

		case PhaseHypothesize:
			sm.stepHypothesize(ctx)
			if len(sm.hyp.Frontier()) > 0 {
				sm.transition(PhaseInvestigate)
			} else if sm.hypothesizeRetries >= sm.cfg.MaxTriageIterations {
				return sm.conclude(ctx, errs.New(errs.Policy, "no hypotheses formed within the iteration budget")), nil
			}

		case PhaseInvestigate:
			sm.stepInvestigate(ctx)
			sm.transition(PhaseEvaluate)

		case PhaseEvaluate:
			sm.stepEvaluate(ctx)
			if len(sm.hyp.Frontier()) == 0 || sm.iteration >= sm.cfg.MaxIterations {
				return sm.conclude(ctx, nil), nil
			}
			sm.transition(PhaseInvestigate)

		case PhaseConclude, PhaseRemediate:
			return sm.conclude(ctx, nil), nil
		}
	}

	return sm.conclude(ctx, errs.New(errs.Policy, "iteration budget exhausted")), nil
}

func (sm *StateMachine) triageComplete() bool {
	return sm.triageIterations >= sm.cfg.MaxTriageIterations
}

// prefetch runs the infrastructure and knowledge prefetch step before
// TRIAGE begins.
func (sm *StateMachine) prefetch(ctx context.Context) {
	if sm.infra != nil {
		snap, err := sm.infra.Discover(ctx, false)
		if err != nil {
			sm.logger.WarnWithFields("infra prefetch failed", logging.Field("error", err.Error()))
		} else {
			sm.lastInfra = snap
		}
	}

	if sm.knowledge != nil {
		chunks := sm.knowledge.QueryForInvestigation(sm.cfg.Query, sm.cfg.KnownServices)
		sm.lastKnowledge = chunks
		sm.emitEvent(Event{Type: EventKnowledgeRetrieved, Count: len(chunks)})
	}

	for _, name := range sm.cfg.KnownServices {
		sm.buildServiceContext(name)
	}
}

// stepTriage runs one free tool-calling iteration against the domain tool
// registry, with no hypothesis or structured-output constraints.
func (sm *StateMachine) stepTriage(ctx context.Context) {
	sm.triageIterations++
	resp, err := sm.invoke(ctx, PhaseTriage, sm.tools.Definitions())
	if err != nil {
		sm.logger.WarnWithFields("triage llm call failed", logging.Field("error", err.Error()))
		return
	}
	sm.handleThinking(resp)
	sm.runToolCalls(ctx, resp.ToolCalls)
}

type hypothesizeResponse struct {
	Hypotheses []struct {
		Statement string `json:"statement"`
		Category  string `json:"category"`
		Priority  int    `json:"priority"`
	} `json:"hypotheses"`
}

func (sm *StateMachine) stepHypothesize(ctx context.Context) {
	resp, err := sm.invoke(ctx, PhaseHypothesize, nil)
	if err != nil {
		sm.hypothesizeRetries++
		sm.logger.WarnWithFields("hypothesize llm call failed", logging.Field("error", err.Error()))
		return
	}
	sm.handleThinking(resp)

	var parsed hypothesizeResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		sm.hypothesizeRetries++
		cErr := errs.Wrap(errs.ContractViolation, "hypothesize: malformed structured output", err)
		sm.logger.WarnWithFields("contract violation", logging.Field("error", cErr.Error()))
		return
	}

	// The LLM may return several candidate hypotheses in one turn, but a
	// tree holds exactly one root: the first becomes the root, and every
	// other candidate this turn is proposed as its child instead of a
	// second root.
	rootID := sm.hyp.RootID()
	for _, h := range parsed.Hypotheses {
		parentID := rootID
		node, err := sm.hyp.Propose(h.Statement, h.Category, h.Priority, parentID)
		if err != nil {
			sm.logger.WarnWithFields("hypothesis propose failed", logging.Field("error", err.Error()))
			continue
		}
		if rootID == "" {
			rootID = node.ID
		}
		_ = sm.memory.AddHypothesisUpdate(node.ID, node.Statement, memory.HypothesisFormed, "proposed during hypothesize phase")
	}
}

// stepInvestigate picks the top frontier hypothesis, plans a bounded batch
// of tool calls for it with CausalQueryBuilder, executes them, and allows
// one follow-up free-form tool-calling turn for clarification.
func (sm *StateMachine) stepInvestigate(ctx context.Context) {
	frontier := sm.hyp.Frontier()
	if len(frontier) == 0 {
		return
	}
	top := frontier[0]

	cqCtx := causalquery.Context{}
	if len(sm.cfg.KnownServices) > 0 {
		cqCtx.Service = sm.cfg.KnownServices[0]
	}

	plan := causalquery.BuildPlan(
		[]causalquery.HypothesisInput{{Statement: top.Statement, PlanPriority: 0}},
		cqCtx,
		sm.cfg.MaxInvestigateQueries,
	)

	for _, inv := range plan.Invocations {
		sm.dispatchToolCall(ctx, inv.Tool, inv.Args)
	}

	resp, err := sm.invoke(ctx, PhaseInvestigate, sm.tools.Definitions())
	if err != nil {
		sm.logger.WarnWithFields("investigate llm call failed", logging.Field("error", err.Error()))
		return
	}
	sm.handleThinking(resp)
	sm.runToolCalls(ctx, resp.ToolCalls)
}

type evaluateResponse struct {
	Evidence []struct {
		HypothesisID    string   `json:"hypothesisId"`
		Strength        string   `json:"strength"`
		Content         string   `json:"content"`
		SourceResultIDs []string `json:"sourceResultIds"`
		ChildStatements []string `json:"childStatements"`
	} `json:"evidence"`
}

// stepEvaluate asks the model to score the top hypothesis's evidence, then
// deterministically applies HypothesisEngine's branch/prune/confirm policy
// rather than letting the model itself mutate the tree.
func (sm *StateMachine) stepEvaluate(ctx context.Context) {
	resp, err := sm.invoke(ctx, PhaseEvaluate, nil)
	if err != nil {
		sm.logger.WarnWithFields("evaluate llm call failed", logging.Field("error", err.Error()))
		return
	}
	sm.handleThinking(resp)

	var parsed evaluateResponse
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		cErr := errs.Wrap(errs.ContractViolation, "evaluate: malformed structured output", err)
		sm.logger.WarnWithFields("contract violation", logging.Field("error", cErr.Error()))
		return
	}

	touched := make(map[string]bool)
	for _, ev := range parsed.Evidence {
		strength := hypothesis.Strength(ev.Strength)
		if err := sm.hyp.AttachEvidence(ev.HypothesisID, strength, ev.Content, ev.SourceResultIDs); err != nil {
			sm.logger.WarnWithFields("attach evidence failed", logging.HypothesisField(ev.HypothesisID), logging.Field("error", err.Error()))
			continue
		}
		_ = sm.memory.AddEvidence(ev.HypothesisID, memory.EvidenceStrength(ev.Strength), ev.Content, firstOrEmpty(ev.SourceResultIDs))
		touched[ev.HypothesisID] = true
		sm.applyPolicy(ev.HypothesisID, ev.ChildStatements)
	}

	// Hypotheses the model said nothing about this round still need their
	// policy re-checked: weak evidence from a prior round may now sit at
	// the front of the frontier with no new evidence attached at all,
	// which DecideAction reports as "keep" and is a no-op.
	for _, node := range sm.hyp.Frontier() {
		if !touched[node.ID] {
			sm.applyPolicy(node.ID, nil)
		}
	}
}

func (sm *StateMachine) applyPolicy(hypothesisID string, childStatements []string) {
	node, err := sm.hyp.Get(hypothesisID)
	if err != nil {
		return
	}
	action, err := sm.hyp.DecideAction(hypothesisID)
	if err != nil {
		return
	}

	switch action {
	case hypothesis.ActionConfirm:
		if err := sm.hyp.Confirm(hypothesisID, nil); err != nil {
			sm.logger.WarnWithFields("confirm failed", logging.HypothesisField(hypothesisID), logging.Field("error", err.Error()))
			return
		}
		_ = sm.memory.AddHypothesisUpdate(hypothesisID, node.Statement, memory.HypothesisConfirmed, "strong, specific evidence")

	case hypothesis.ActionBranch:
		children := childStatements
		if len(children) == 0 {
			children = []string{node.Statement + " (narrowed to a specific cause)"}
		}
		for _, stmt := range children {
			if _, err := sm.hyp.Propose(stmt, node.Category, node.Priority, hypothesisID); err != nil {
				sm.logger.WarnWithFields("branch propose failed", logging.Field("error", err.Error()))
			}
		}
		_ = sm.memory.AddHypothesisUpdate(hypothesisID, node.Statement, memory.HypothesisFormed, "branched: strong but non-specific evidence")

	case hypothesis.ActionPrune:
		if err := sm.hyp.Prune(hypothesisID, "evidence strength resolved to none/contradicting"); err != nil {
			sm.logger.WarnWithFields("prune failed", logging.HypothesisField(hypothesisID), logging.Field("error", err.Error()))
			return
		}
		_ = sm.memory.AddHypothesisUpdate(hypothesisID, node.Statement, memory.HypothesisPruned, "insufficient or contradicting evidence")

	case hypothesis.ActionKeep:
		// stays on the frontier; more queries will be scheduled next
		// INVESTIGATE pass.
	}
}

// conclude builds the final report. causeErr, when non-nil, is a Policy
// error that short-circuited the loop (budget exhaustion); it forces an
// insufficient-evidence outcome even if some evidence exists.
func (sm *StateMachine) conclude(ctx context.Context, causeErr error) *Result {
	sm.phase = PhaseConclude
	sm.emitEvent(Event{Type: EventAnswerStart})

	rootCause := sm.memory.ConfirmedRootCause()
	result := &Result{
		InvestigationID: sm.cfg.SessionID,
		Iterations:      sm.iteration,
		FinalPhase:      PhaseConclude,
	}

	if rootCause != "" && causeErr == nil {
		result.Outcome = OutcomeConfirmed
		result.RootCause = rootCause
	} else {
		result.Outcome = OutcomeInsufficientEvidence
		for _, n := range sm.hyp.Frontier() {
			result.ActiveFrontier = append(result.ActiveFrontier, n.Statement)
		}
	}

	if _, err := sm.invoke(ctx, PhaseConclude, nil); err != nil {
		sm.logger.WarnWithFields("conclude llm call failed", logging.Field("error", err.Error()))
	}

	answer := sm.memory.BuildFinalSummary()
	if result.Outcome == OutcomeConfirmed && sm.remediate != nil {
		if skill, ok := sm.remediate.Match(result.RootCause); ok {
			sm.phase = PhaseRemediate
			result.FinalPhase = PhaseRemediate
			answer = fmt.Sprintf("%s\n\nMatched remediation skill: %s", answer, skill)
		}
	}

	sm.emitEvent(Event{Type: EventDone, Answer: answer, InvestigationID: sm.cfg.SessionID})
	return result
}

func (sm *StateMachine) handleCancellation() *Result {
	sm.emitEvent(Event{Type: EventCancelled})
	return &Result{
		InvestigationID: sm.cfg.SessionID,
		Outcome:         OutcomeCancelled,
		Iterations:      sm.iteration,
		FinalPhase:      sm.phase,
	}
}

// invoke runs steps 1-4 of the per-iteration protocol: advance the
// iteration counter, compact the scratchpad if it has grown past the
// configured threshold, build the user prompt, and call the model.
func (sm *StateMachine) invoke(ctx context.Context, phase Phase, tools []tool.Definition) (*llm.Response, error) {
	_ = sm.memory.AdvanceIteration()

	if sm.scratchpad.TokenEstimate() > sm.cfg.TokenThreshold {
		sm.compact()
	}

	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: sm.userPrompt()}}
	return sm.llmClient.Chat(ctx, sm.systemPrompt(phase), messages, defs)
}

// compact scores every live scratchpad result and applies a tiering plan.
func (sm *StateMachine) compact() {
	stored := sm.scratchpad.All()
	inputs := make([]compactor.ScoreInput, 0, len(stored))
	for i, sr := range stored {
		raw, _ := json.Marshal(sr.Result)
		inputs = append(inputs, compactor.ScoreInput{
			ResultID:         sr.ResultID,
			ToolName:         sr.ToolName,
			Args:             sr.Args,
			SerializedResult: string(raw),
			TimestampUnix:    sr.Timestamp.Unix(),
			HasErrors:        sr.Summary.HasErrors,
			HealthStatus:     string(sr.Summary.HealthStatus),
			Services:         sr.Summary.Services,
		})
		_ = i
	}

	ctx := compactor.Context{
		QueryTokens:        tokenizeQuery(sm.cfg.Query),
		ServicesDiscovered: sm.discoveredServices,
	}

	scored := compactor.ScoreAll(inputs, ctx, sm.cfg.Weights)

	var plan compactor.Plan
	switch sm.cfg.CompactorMode {
	case compactor.ModeBudget:
		estimate := func(resultID string) (int, int) {
			return 400, 80
		}
		plan = compactor.BuildBudgetPlan(scored, sm.cfg.BudgetLimits, estimate, nil)
	default:
		plan = compactor.BuildCountPlan(scored, sm.cfg.CountLimits, nil)
	}

	sm.scratchpad.ApplyCompactionPlan(scratchpad.CompactionPlan{
		Full:    plan.Full,
		Compact: plan.Compact,
		Cleared: plan.Cleared,
	})
	sm.emitEvent(Event{Type: EventContextCleared, Count: len(plan.Cleared)})
}

func tokenizeQuery(q string) []string {
	return strings.Fields(strings.ToLower(q))
}

func (sm *StateMachine) handleThinking(resp *llm.Response) {
	if resp.Thinking == "" {
		return
	}
	sm.emitEvent(Event{Type: EventThinking, Text: resp.Thinking})
	if err := sm.scratchpad.Append(scratchpad.Entry{Type: scratchpad.EntryThinking, Text: resp.Thinking}); err != nil {
		sm.logger.WarnWithFields("failed to append thinking entry", logging.Field("error", err.Error()))
	}
	if err := sm.memory.ExtractFromThinking(resp.Thinking, ""); err != nil {
		sm.logger.WarnWithFields("extract from thinking failed", logging.Field("error", err.Error()))
	}
}

// runToolCalls executes the per-iteration tool-calling step: tool calls
// run sequentially, in the order the model requested them.
func (sm *StateMachine) runToolCalls(ctx context.Context, calls []llm.ToolCall) {
	max := sm.cfg.MaxToolCallsPerIteration
	for i, tc := range calls {
		if ctx.Err() != nil {
			return
		}
		if i >= max {
			sm.emitEvent(Event{Type: EventToolLimit, Tool: tc.Name, Warning: "iteration tool-call budget exhausted"})
			continue
		}
		var args map[string]interface{}
		if err := json.Unmarshal(tc.Input, &args); err != nil {
			sm.emitEvent(Event{Type: EventToolError, Tool: tc.Name, Error: "malformed tool arguments: " + err.Error()})
			continue
		}
		sm.dispatchToolCall(ctx, tc.Name, args)
	}
}

func (sm *StateMachine) dispatchToolCall(ctx context.Context, name string, args map[string]interface{}) string {
	if sm.disabledTools[name] {
		sm.emitEvent(Event{Type: EventToolLimit, Tool: name, Warning: "tool disabled after a permanent I/O failure this session"})
		return ""
	}

	if can := sm.scratchpad.CanCallTool(name, serializeArgsForQuery(args)); can.Warning != "" {
		sm.emitEvent(Event{Type: EventToolLimit, Tool: name, Warning: can.Warning})
	}

	sm.emitEvent(Event{Type: EventToolStart, Tool: name, Args: args})
	result := sm.tools.Execute(ctx, name, args)
	summary := summarize.Summarize(name, args, result.Data)

	resultID, err := sm.scratchpad.AppendToolResult(name, args, result, result.ExecutionTimeMs, summary)
	if err != nil {
		sm.logger.WarnWithFields("failed to append tool result", logging.ToolField(name), logging.Field("error", err.Error()))
	}

	if !result.Success {
		kind := errs.TransientIO
		if strings.Contains(strings.ToLower(result.Error), "not found") {
			kind = errs.PermanentIO
			sm.disabledTools[name] = true
		}
		toolErr := errs.New(kind, result.Error)
		sm.emitEvent(Event{Type: EventToolError, Tool: name, ResultID: resultID, Error: toolErr.Error()})
	} else {
		sm.emitEvent(Event{Type: EventToolEnd, Tool: name, ResultID: resultID})
	}

	sm.updateDiscovered(summary)
	return resultID
}

func (sm *StateMachine) updateDiscovered(summary scratchpad.CompactSummary) {
	newServices := sm.newServices(summary.Services)
	if len(newServices) > 0 {
		sm.discoveredServices = append(sm.discoveredServices, newServices...)
		if sm.knowledge != nil {
			chunks := sm.knowledge.QueryForNewServices(newServices)
			if len(chunks) > 0 {
				sm.mergeKnowledge(chunks)
				sm.emitEvent(Event{Type: EventKnowledgeRetrieved, Count: len(chunks)})
			}
		}
		for _, name := range newServices {
			sm.buildServiceContext(name)
		}
	}

	if summary.HealthStatus != scratchpad.HealthOK && summary.HealthStatus != scratchpad.HealthUnknown && summary.ShortText != "" {
		if sm.isNewSymptom(summary.ShortText) {
			sm.discoveredSymptoms = append(sm.discoveredSymptoms, summary.ShortText)
			_ = sm.memory.AddSymptom(summary.ShortText, summary.Services)
			if sm.knowledge != nil {
				chunks := sm.knowledge.QueryForNewSymptoms([]string{summary.ShortText})
				if len(chunks) > 0 {
					sm.mergeKnowledge(chunks)
					sm.emitEvent(Event{Type: EventKnowledgeRetrieved, Count: len(chunks)})
				}
			}
		}
	}
}

func (sm *StateMachine) newServices(candidates []string) []string {
	known := make(map[string]bool, len(sm.discoveredServices))
	for _, s := range sm.discoveredServices {
		known[s] = true
	}
	var out []string
	for _, c := range candidates {
		if !known[c] {
			known[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (sm *StateMachine) isNewSymptom(text string) bool {
	for _, s := range sm.discoveredSymptoms {
		if s == text {
			return false
		}
	}
	return true
}

func (sm *StateMachine) mergeKnowledge(fresh []knowledge.Chunk) {
	seen := make(map[string]bool, len(fresh))
	merged := make([]knowledge.Chunk, 0, len(sm.lastKnowledge)+len(fresh))
	for _, c := range fresh {
		seen[c.ID] = true
		merged = append(merged, c)
	}
	for _, c := range sm.lastKnowledge {
		if !seen[c.ID] {
			merged = append(merged, c)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	sm.lastKnowledge = merged
}

func (sm *StateMachine) buildServiceContext(name string) {
	if sm.serviceCtx == nil || sm.graph == nil {
		return
	}
	for _, svc := range sm.graph.GetByName(name) {
		svcCtx, err := sm.serviceCtx.Build(svc.ID)
		if err != nil {
			sm.logger.WarnWithFields("service context build failed", logging.Field("service", name), logging.Field("error", err.Error()))
			continue
		}
		sm.lastServiceCtx = append(sm.lastServiceCtx, svcCtx)
	}
}

func serializeArgsForQuery(args map[string]interface{}) string {
	var b strings.Builder
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v ", k, args[k])
	}
	return b.String()
}

func firstOrEmpty(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

// extractJSON finds the first top-level JSON object within text, tolerating
// a preamble or trailing prose the model sometimes emits despite
// instructions to respond with JSON only.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
