package tool

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name   string
	result *Result
	err    error
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool for tests" }
func (f *fakeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	return f.result, f.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	ft := &fakeTool{name: "cluster_health", result: &Result{Success: true, Summary: "ok"}}
	r.Register(ft)

	got, ok := r.Get("cluster_health")
	require.True(t, ok)
	assert.Equal(t, ft, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), "missing", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "t1", result: &Result{Success: true, Summary: "done", Data: map[string]interface{}{"a": 1}}})

	result := r.Execute(context.Background(), "t1", map[string]interface{}{"x": 1})
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Summary)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
	assert.Equal(t, map[string]interface{}{"x": 1}, result.RawArgs)
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "t1"})
	r.Register(&fakeTool{name: "t2"})

	defs := r.Definitions()
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	assert.True(t, names["t1"])
	assert.True(t, names["t2"])
}

func TestTruncateLargeResult(t *testing.T) {
	big := strings.Repeat("x", MaxResultBytes+5000)
	r := NewRegistry()
	r.Register(&fakeTool{name: "big", result: &Result{Success: true, Data: map[string]interface{}{"blob": big}}})

	result := r.Execute(context.Background(), "big", nil)
	assert.True(t, result.Success)
	payload, ok := result.Data.(truncatedPayload)
	require.True(t, ok)
	assert.True(t, payload.Truncated)
	assert.Contains(t, result.Summary, "truncated")
}

func TestExecuteSurfacesToolError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "broken", err: assertError("boom")})

	result := r.Execute(context.Background(), "broken", nil)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}

type assertError string

func (e assertError) Error() string { return string(e) }
