package engine

import (
	"fmt"
	"strings"

	"github.com/moolen/invagent/internal/investigation/hypothesis"
	"github.com/moolen/invagent/internal/investigation/knowledge"
	"github.com/moolen/invagent/internal/servicectx"
)

const baseSystemPrompt = `You are an incident investigation assistant. You reason about production
incidents by calling tools to gather evidence and by proposing, supporting,
and ruling out hypotheses about the root cause. Be precise, cite result ids
for every claim, and prefer the most specific hypothesis the evidence
supports.`

func (sm *StateMachine) systemPrompt(phase Phase) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\nCurrent phase: ")
	b.WriteString(string(phase))
	b.WriteString("\n")

	switch phase {
	case PhaseTriage:
		b.WriteString("Gather initial facts about the incident: affected services, symptoms, recent changes. Use tools freely. Do not propose hypotheses yet.\n")
	case PhaseHypothesize:
		b.WriteString("Respond with a JSON object only, no prose, no tool calls, of the shape:\n")
		b.WriteString(`{"hypotheses":[{"statement":"...","category":"...","priority":1}]}` + "\n")
		b.WriteString("List 2-5 plausible, falsifiable root-cause hypotheses given everything gathered so far.\n")
	case PhaseInvestigate:
		b.WriteString("Tool calls have already been planned for the top open hypothesis and executed. This turn, call any additional tools needed to clarify an ambiguous result, or call no tools to move on.\n")
	case PhaseEvaluate:
		b.WriteString("Respond with a JSON object only, no prose, no tool calls, of the shape:\n")
		b.WriteString(`{"evidence":[{"hypothesisId":"...","strength":"strong|weak|none|contradicting","content":"...","sourceResultIds":["..."],"childStatements":["..."]}]}` + "\n")
		b.WriteString("childStatements is only used when strength is strong but the hypothesis is not yet specific enough to act on; omit it otherwise.\n")
	case PhaseConclude:
		b.WriteString("Summarize the investigation's outcome in one or two sentences of prose. No tool calls.\n")
	}
	return b.String()
}

// userPrompt concatenates the tiered scratchpad context, hypothesis
// frontier, investigation-state summary, knowledge summary and
// service-context summary.
func (sm *StateMachine) userPrompt() string {
	var b strings.Builder
	b.WriteString("## Incident\n")
	b.WriteString(sm.cfg.Query)
	b.WriteString("\n\n## Scratchpad\n")
	b.WriteString(sm.scratchpad.BuildTieredContext())
	b.WriteString("\n\n## Hypothesis frontier\n")
	b.WriteString(renderFrontier(sm.hyp.Frontier()))
	b.WriteString("\n\n## Investigation memory\n")
	b.WriteString(sm.memory.BuildContextSummary())
	b.WriteString("\n\n## Knowledge\n")
	b.WriteString(renderKnowledge(sm.lastKnowledge))
	b.WriteString("\n\n## Service context\n")
	b.WriteString(renderServiceContexts(sm.lastServiceCtx))
	return b.String()
}

func renderFrontier(nodes []*hypothesis.Node) string {
	if len(nodes) == 0 {
		return "(none proposed yet)"
	}
	var b strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&b, "- [%s] (%s, priority %d, evidence=%s) %s\n", n.ID, n.Category, n.Priority, n.AggregateStrength(), n.Statement)
	}
	return b.String()
}

func renderKnowledge(chunks []knowledge.Chunk) string {
	if len(chunks) == 0 {
		return "(none retrieved)"
	}
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "- [%s/%s score=%.2f] %s\n", c.Type, c.ID, c.Score, truncateText(c.Content, 160))
	}
	return b.String()
}

func renderServiceContexts(ctxs []*servicectx.Context) string {
	if len(ctxs) == 0 {
		return "(none built yet)"
	}
	var b strings.Builder
	for _, c := range ctxs {
		fmt.Fprintf(&b, "- %s (%s): %d direct deps, %d critical deps, %d critical paths in blast radius\n",
			c.Service.Name, c.Service.Type, len(c.DirectDependencies), len(c.CriticalDependencies), len(c.BlastRadius.CriticalPaths))
	}
	return b.String()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
