package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/logging"
)

// Registry manages tool registration and lookup.
type Registry struct {
	tools  map[string]Tool
	mu     sync.RWMutex
	logger *logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logging.GetLogger("tool.registry"),
	}
}

// Register adds a tool to the registry, replacing any existing tool of the
// same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.DebugWithFields("registered tool", logging.ToolField(t.Name()))
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Definition is the JSON-schema-like shape handed to the LLM client's tool
// list parameter.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Definitions converts every registered tool into its Definition.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Execute runs a tool by name, truncating oversized results and always
// recording execution time. Unknown tools and execution errors both come
// back as a failed Result rather than an error return, so callers can
// uniformly append the outcome to the scratchpad.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	t, ok := r.Get(name)
	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("tool %q not found", name)}
	}

	start := time.Now()
	result, err := t.Execute(ctx, args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &Result{Success: false, Error: err.Error(), ExecutionTimeMs: elapsed, RawArgs: args}
	}
	result.ExecutionTimeMs = elapsed
	result.RawArgs = args
	return truncate(result, MaxResultBytes)
}

// truncate replaces an oversized result's Data with a partial, marked payload.
func truncate(result *Result, maxBytes int) *Result {
	if result == nil || result.Data == nil {
		return result
	}
	raw, err := json.Marshal(result.Data)
	if err != nil || len(raw) <= maxBytes {
		return result
	}

	partialLen := maxBytes * 80 / 100
	partial := string(raw)
	if len(partial) > partialLen {
		partial = partial[:partialLen]
	}

	summary := result.Summary
	if summary != "" {
		summary = fmt.Sprintf("%s [truncated %d->%d bytes]", summary, len(raw), maxBytes)
	} else {
		summary = fmt.Sprintf("[truncated %d->%d bytes]", len(raw), maxBytes)
	}

	return &Result{
		Success: result.Success,
		Data: truncatedPayload{
			Truncated:      true,
			OriginalBytes:  len(raw),
			TruncatedBytes: maxBytes,
			Note:           fmt.Sprintf("response truncated from %d to ~%d bytes; use more specific filters", len(raw), maxBytes),
			PartialData:    partial,
		},
		Error:           result.Error,
		Summary:         summary,
		ExecutionTimeMs: result.ExecutionTimeMs,
		RawArgs:         result.RawArgs,
	}
}
