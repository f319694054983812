package skill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moolen/invagent/internal/approval"
	"github.com/moolen/invagent/internal/ids"
	"github.com/moolen/invagent/internal/logging"
	"github.com/moolen/invagent/internal/tool"
)

// Runner loads recipes from a directory, matches a confirmed root cause to
// the recipe whose triggers best overlap it, and executes a recipe's steps
// in order, routing mutating ones through ApprovalProtocol.
type Runner struct {
	recipesDir string
	tools      *tool.Registry
	approvals  *approval.Manager
	logger     *logging.Logger

	recipes map[string]Recipe
}

// Config configures a new Runner.
type Config struct {
	RecipesDir string
	Tools      *tool.Registry
	Approvals  *approval.Manager
}

// New creates a Runner and loads every "*.yaml"/"*.yml" recipe found
// directly under cfg.RecipesDir. A missing directory is not an error: it
// means no recipes are configured.
func New(cfg Config) (*Runner, error) {
	r := &Runner{
		recipesDir: cfg.RecipesDir,
		tools:      cfg.Tools,
		approvals:  cfg.Approvals,
		logger:     logging.GetLogger("skill"),
		recipes:    make(map[string]Recipe),
	}
	if cfg.RecipesDir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(cfg.RecipesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("reading recipes dir %s: %w", cfg.RecipesDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(cfg.RecipesDir, e.Name())
		// #nosec G304 -- path is built from a directory listing of operator-controlled recipesDir.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading recipe %s: %w", path, err)
		}
		var rec Recipe
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing recipe %s: %w", path, err)
		}
		if rec.Name == "" {
			return nil, fmt.Errorf("recipe %s missing name", path)
		}
		r.recipes[rec.Name] = rec
	}
	return r, nil
}

// Get returns a loaded recipe by name.
func (r *Runner) Get(name string) (Recipe, bool) {
	rec, ok := r.recipes[name]
	return rec, ok
}

// List returns every loaded recipe, sorted by name.
func (r *Runner) List() []Recipe {
	names := make([]string, 0, len(r.recipes))
	for name := range r.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	recipes := make([]Recipe, len(names))
	for i, name := range names {
		recipes[i] = r.recipes[name]
	}
	return recipes
}

// Match implements engine.RemediationMatcher: it picks the recipe with the
// most trigger keywords present in rootCause (case-insensitive substring
// match). A recipe with zero matching triggers is never selected.
func (r *Runner) Match(rootCause string) (string, bool) {
	cause := strings.ToLower(rootCause)
	bestName := ""
	bestScore := 0
	for name, rec := range r.recipes {
		score := 0
		for _, trig := range rec.Triggers {
			if trig == "" {
				continue
			}
			if strings.Contains(cause, strings.ToLower(trig)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestName = name
		}
	}
	if bestScore == 0 {
		return "", false
	}
	return bestName, true
}

// Run executes a recipe's steps in order. A step with ApprovalRequired
// true is routed through ApprovalProtocol.Approve first; a denied or
// timed-out approval skips that step. A skipped step, a failed approval
// request, or a failed tool call aborts the recipe unless OnFailure is
// "continue".
func (r *Runner) Run(ctx context.Context, name string) (*RunResult, error) {
	rec, ok := r.recipes[name]
	if !ok {
		return nil, fmt.Errorf("unknown recipe %q", name)
	}

	result := &RunResult{Recipe: name}
	for _, step := range rec.Steps {
		outcome := StepOutcome{Tool: step.Tool}

		if step.ApprovalRequired {
			approved, err := r.requestApproval(ctx, step)
			if err != nil {
				outcome.Error = err.Error()
				result.Steps = append(result.Steps, outcome)
				if step.onFailure() == OnFailureAbort {
					result.Aborted = true
					return result, nil
				}
				continue
			}
			if !approved {
				outcome.Skipped = true
				outcome.ApprovalDenied = true
				result.Steps = append(result.Steps, outcome)
				if step.onFailure() == OnFailureAbort {
					result.Aborted = true
					return result, nil
				}
				continue
			}
		}

		toolResult := r.tools.Execute(ctx, step.Tool, step.Args)
		outcome.Success = toolResult.Success
		outcome.Error = toolResult.Error
		result.Steps = append(result.Steps, outcome)

		if !toolResult.Success && step.onFailure() == OnFailureAbort {
			r.logger.WarnWithFields("recipe step failed, aborting",
				logging.Field("recipe", name), logging.Field("tool", step.Tool), logging.Field("error", toolResult.Error))
			result.Aborted = true
			return result, nil
		}
	}
	return result, nil
}

func (r *Runner) requestApproval(ctx context.Context, step Step) (bool, error) {
	if r.approvals == nil {
		return false, fmt.Errorf("step requires approval but no approval manager is configured")
	}
	resource, _ := step.Args["resource"].(string)
	req := approval.Request{
		MutationID: ids.NewMutationID(),
		Operation:  step.Tool,
		Resource:   resource,
		Risk:       approval.ClassifyRisk(step.Tool, resource),
	}
	res, err := r.approvals.Approve(ctx, req)
	if err != nil {
		return false, err
	}
	return res.Approved, nil
}
