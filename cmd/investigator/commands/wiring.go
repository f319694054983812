package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moolen/invagent/internal/approval"
	"github.com/moolen/invagent/internal/investigation/compactor"
	"github.com/moolen/invagent/internal/investigation/engine"
	"github.com/moolen/invagent/internal/investigation/knowledge"
	"github.com/moolen/invagent/internal/llm"
	"github.com/moolen/invagent/internal/metrics"
	"github.com/moolen/invagent/internal/servicectx"
	"github.com/moolen/invagent/internal/servicegraph"
	"github.com/moolen/invagent/internal/skill"
	"github.com/moolen/invagent/internal/store"
	"github.com/moolen/invagent/internal/tool"
)

// env is the set of long-lived collaborators shared across subcommands,
// built once per process from appConfig.
type env struct {
	graph        *servicegraph.Graph
	knowledge    *knowledge.Manager
	serviceCtx   *servicectx.Manager
	tools        *tool.Registry
	approvals    *approval.Manager
	skills       *skill.Runner
	metrics      *metrics.Metrics
	registry     *prometheus.Registry
	sessionIndex *store.Store
}

// Close releases every durable handle env owns. Callers that build an env
// should defer this once, in place of closing individual collaborators.
func (e *env) Close() error {
	err := e.approvals.Close()
	if e.sessionIndex != nil {
		if cerr := e.sessionIndex.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildEnv() (*env, error) {
	graph := servicegraph.New()
	graphPath := filepath.Join(appConfig.InvestigationsDir, "service_graph.json")
	// #nosec G304 -- graphPath is built from an operator-controlled flag.
	if data, err := os.ReadFile(graphPath); err == nil {
		if err := graph.FromJSON(data); err != nil {
			return nil, fmt.Errorf("loading service graph %s: %w", graphPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading service graph %s: %w", graphPath, err)
	}

	know := knowledge.New(knowledge.Config{})

	svcCtx := servicectx.New(servicectx.Config{Graph: graph, Knowledge: know})

	tools := tool.NewRegistry()

	approvals, err := approval.New(approval.Config{
		PendingDir: appConfig.PendingApprovalDir,
		AuditPath:  filepath.Join(appConfig.AuditDir, "approvals.jsonl"),
		Prompter:   stdinPrompter{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating approval manager: %w", err)
	}

	skills, err := skill.New(skill.Config{RecipesDir: recipesDir, Tools: tools, Approvals: approvals})
	if err != nil {
		return nil, fmt.Errorf("loading skill recipes: %w", err)
	}

	registry := prometheus.NewRegistry()

	if err := os.MkdirAll(filepath.Dir(appConfig.SessionIndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating session index directory: %w", err)
	}
	sessionIndex, err := store.Open(appConfig.SessionIndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening session index: %w", err)
	}

	return &env{
		graph:        graph,
		knowledge:    know,
		serviceCtx:   svcCtx,
		tools:        tools,
		approvals:    approvals,
		skills:       skills,
		metrics:      metrics.New(registry),
		registry:     registry,
		sessionIndex: sessionIndex,
	}, nil
}

func (e *env) dependencies() (engine.Dependencies, error) {
	if appConfig.AnthropicAPIKey == "" {
		return engine.Dependencies{}, fmt.Errorf("an Anthropic API key is required (--anthropic-api-key or ANTHROPIC_API_KEY)")
	}
	provider := llm.NewAnthropicProviderWithKey(appConfig.AnthropicAPIKey, llm.DefaultConfig())

	return engine.Dependencies{
		LLM:          provider,
		Tools:        e.tools,
		Knowledge:    e.knowledge,
		ServiceCtx:   e.serviceCtx,
		Graph:        e.graph,
		Remediation:  e.skills,
		SessionIndex: e.sessionIndex,
	}, nil
}

func (e *env) engineConfig(sessionID, query string) engine.Config {
	weights, ok := compactor.Presets[appConfig.CompactionPreset]
	if !ok {
		weights = compactor.DefaultWeights
	}
	return engine.Config{
		SessionID:           sessionID,
		Query:               query,
		ScratchpadLogPath:   filepath.Join(appConfig.InvestigationsDir, sessionID+"_scratchpad.jsonl"),
		ScratchpadSoftCap:   appConfig.ToolSoftCap,
		MemoryFilePath:      filepath.Join(appConfig.InvestigationsDir, sessionID+".json"),
		MaxHypothesisDepth:  appConfig.MaxHypothesisDepth,
		MaxIterations:       appConfig.MaxIterations,
		MaxTriageIterations: appConfig.MaxTriageIterations,
		Weights:             weights,
	}
}
