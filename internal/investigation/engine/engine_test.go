package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/invagent/internal/llm"
	"github.com/moolen/invagent/internal/tool"
)

// scriptedProvider answers each Chat call based on which phase marker
// appears in the system prompt. evaluateFn, when set, lets a test compute
// the EVALUATE response dynamically once the real hypothesis id is known
// (it is assigned by the engine itself during HYPOTHESIZE).
type scriptedProvider struct {
	sm         *StateMachine
	static     map[string]*llm.Response
	evaluateFn func(sm *StateMachine) *llm.Response
	calls      []string
}

func (p *scriptedProvider) Chat(_ context.Context, systemPrompt string, _ []llm.Message, _ []llm.ToolDefinition) (*llm.Response, error) {
	if p.evaluateFn != nil && strings.Contains(systemPrompt, "Current phase: "+string(PhaseEvaluate)) {
		p.calls = append(p.calls, string(PhaseEvaluate))
		return p.evaluateFn(p.sm), nil
	}
	for phase, resp := range p.static {
		if strings.Contains(systemPrompt, "Current phase: "+phase) {
			p.calls = append(p.calls, phase)
			return resp, nil
		}
	}
	return &llm.Response{}, nil
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-model" }

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for tests" }
func (f *fakeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (f *fakeTool) Execute(_ context.Context, _ map[string]interface{}) (*tool.Result, error) {
	return &tool.Result{Success: true, Data: map[string]interface{}{"status": "ok", "service": "payment-service"}}, nil
}

func newTestConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SessionID:                "sess-test",
		Query:                    "checkout latency spike",
		ScratchpadLogPath:        filepath.Join(dir, "scratchpad.jsonl"),
		MemoryFilePath:           filepath.Join(dir, "memory.json"),
		MaxTriageIterations:      1,
		MaxIterations:            10,
		MaxToolCallsPerIteration: 3,
		MaxInvestigateQueries:    2,
	}
}

func TestRunConfirmsSpecificHypothesisWithStrongEvidence(t *testing.T) {
	registry := tool.NewRegistry()
	registry.Register(&fakeTool{name: "cluster_health"})

	hypothesizeJSON, _ := json.Marshal(map[string]interface{}{
		"hypotheses": []map[string]interface{}{
			{"statement": "payment-service database connection pool is exhausted", "category": "database", "priority": 1},
		},
	})

	provider := &scriptedProvider{
		static: map[string]*llm.Response{
			string(PhaseTriage):      {Content: "gathered initial facts"},
			string(PhaseHypothesize): {Content: string(hypothesizeJSON)},
			string(PhaseInvestigate): {Content: "no further tools needed"},
			string(PhaseConclude):    {Content: "investigation concluded"},
		},
		evaluateFn: func(sm *StateMachine) *llm.Response {
			frontier := sm.hyp.Frontier()
			require.Len(t, frontier, 1)
			ev, _ := json.Marshal(map[string]interface{}{
				"evidence": []map[string]interface{}{
					{
						"hypothesisId":    frontier[0].ID,
						"strength":        "strong",
						"content":         "connection pool metrics confirm exhaustion",
						"sourceResultIds": []string{},
					},
				},
			})
			return &llm.Response{Content: string(ev)}
		},
	}

	sm, err := New(newTestConfig(t), Dependencies{LLM: provider, Tools: registry})
	require.NoError(t, err)
	defer sm.Close()
	provider.sm = sm

	var events []Event
	result, err := sm.Run(context.Background(), func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Contains(t, result.RootCause, "payment-service database connection pool is exhausted")

	var sawDone, sawAnswerStart bool
	for _, e := range events {
		switch e.Type {
		case EventDone:
			sawDone = true
			assert.Equal(t, "sess-test", e.InvestigationID)
		case EventAnswerStart:
			sawAnswerStart = true
		}
	}
	assert.True(t, sawDone)
	assert.True(t, sawAnswerStart)
}

func TestRunReachesConcludeWhenNoHypothesesForm(t *testing.T) {
	registry := tool.NewRegistry()

	provider := &scriptedProvider{static: map[string]*llm.Response{
		string(PhaseTriage):      {Content: "no notable findings"},
		string(PhaseHypothesize): {Content: "not json at all"},
		string(PhaseConclude):    {Content: "no root cause identified"},
	}}

	cfg := newTestConfig(t)
	cfg.MaxTriageIterations = 1

	sm, err := New(cfg, Dependencies{LLM: provider, Tools: registry})
	require.NoError(t, err)
	defer sm.Close()

	var gotDone bool
	result, err := sm.Run(context.Background(), func(e Event) {
		if e.Type == EventDone {
			gotDone = true
		}
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientEvidence, result.Outcome)
	assert.True(t, gotDone)
}

func TestRunHandlesCancellationBeforeFirstIteration(t *testing.T) {
	registry := tool.NewRegistry()
	provider := &scriptedProvider{static: map[string]*llm.Response{}}

	sm, err := New(newTestConfig(t), Dependencies{LLM: provider, Tools: registry})
	require.NoError(t, err)
	defer sm.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancelled bool
	result, err := sm.Run(ctx, func(e Event) {
		if e.Type == EventCancelled {
			sawCancelled = true
		}
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.True(t, sawCancelled)
}

func TestDispatchToolCallDisablesToolAfterNotFoundError(t *testing.T) {
	registry := tool.NewRegistry()
	provider := &scriptedProvider{static: map[string]*llm.Response{}}

	sm, err := New(newTestConfig(t), Dependencies{LLM: provider, Tools: registry})
	require.NoError(t, err)
	defer sm.Close()

	var toolErrorEvents, toolLimitEvents int
	sm.emit = func(e Event) {
		switch e.Type {
		case EventToolError:
			toolErrorEvents++
		case EventToolLimit:
			toolLimitEvents++
		}
	}

	sm.dispatchToolCall(context.Background(), "missing_tool", map[string]interface{}{})
	sm.dispatchToolCall(context.Background(), "missing_tool", map[string]interface{}{})

	assert.Equal(t, 1, toolErrorEvents)
	assert.Equal(t, 1, toolLimitEvents)
	assert.True(t, sm.disabledTools["missing_tool"])
}

func TestExtractJSONStripsSurroundingProse(t *testing.T) {
	text := "Sure, here you go:\n" + `{"hypotheses":[]}` + "\nHope that helps."
	assert.Equal(t, `{"hypotheses":[]}`, extractJSON(text))
}
