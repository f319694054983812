package logging

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeParsesLevels(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"bogus", INFO}, // unknown defaults to INFO
	}
	for _, tc := range cases {
		require.NoError(t, Initialize(tc.in))
		assert.Equal(t, tc.want, globalLogger.level)
	}
}

func TestGetLoggerIsolatesFields(t *testing.T) {
	require.NoError(t, Initialize("debug"))
	base := GetLogger("engine.scratchpad")
	withSession := base.WithFields(SessionField("sess-1"), PhaseField("TRIAGE"))

	assert.Empty(t, base.fields)
	assert.Equal(t, "sess-1", withSession.fields["session_id"])
	assert.Equal(t, "TRIAGE", withSession.fields["phase"])
}

func TestPackageLogLevelOverridesDefault(t *testing.T) {
	require.NoError(t, Initialize("warn"))
	require.NoError(t, SetPackageLogLevels(map[string]string{
		"engine.hypothesis": "DEBUG",
		"engine.*":          "ERROR",
	}))

	l := GetLogger("engine.hypothesis")
	assert.True(t, l.shouldLog(DEBUG))

	l2 := GetLogger("engine.scratchpad")
	assert.False(t, l2.shouldLog(WARN))
	assert.True(t, l2.shouldLog(ERROR))

	l3 := GetLogger("unrelated")
	assert.False(t, l3.shouldLog(INFO))
	assert.True(t, l3.shouldLog(FATAL))
}

func TestWildcardPatternMatching(t *testing.T) {
	assert.True(t, matchesPattern("engine.hypothesis", "engine.*"))
	assert.True(t, matchesPattern("engine.hypothesis", "engine.hypothesis"))
	assert.False(t, matchesPattern("enginex.hypothesis", "engine.*"))
	assert.False(t, matchesPattern("other", "engine.*"))
}

func TestWithContextExtractsTraceAndSpan(t *testing.T) {
	require.NoError(t, Initialize("debug"))
	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-1")
	ctx = context.WithValue(ctx, SpanIDKey(), "span-2")

	l := GetLogger("engine").WithContext(ctx)
	fields := extractContextFields(l.ctx)
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "span-2", fields["span_id"])
}

func TestWithContextExtractsSessionID(t *testing.T) {
	require.NoError(t, Initialize("debug"))
	ctx := context.WithValue(context.Background(), SessionIDKey(), "sess-42")

	l := GetLogger("engine").WithContext(ctx)
	fields := extractContextFields(l.ctx)
	assert.Equal(t, "sess-42", fields["session_id"])
}

func TestMergeFieldsPriority(t *testing.T) {
	merged := mergeFields(
		map[string]interface{}{"session_id": "from-context", "extra": "ctx"},
		map[string]interface{}{"session_id": "from-logger"},
		Field("session_id", "from-call"),
	)
	assert.Equal(t, "from-call", merged["session_id"])
	assert.Equal(t, "ctx", merged["extra"])

	assert.Nil(t, mergeFields(nil, nil))
}

func TestFatalCallsExitFunc(t *testing.T) {
	require.NoError(t, Initialize("debug"))
	var exitCode int
	old := exitFunc
	exitFunc = func(code int) { exitCode = code }
	defer func() { exitFunc = old }()

	GetLogger("engine").Fatal("boom %d", 1)
	assert.Equal(t, 1, exitCode)
}

func TestWriteLogRoutesErrorToStderr(t *testing.T) {
	t.Setenv("LOG_TIMESTAMP", "2026-01-01T00:00:00Z")
	require.NoError(t, Initialize("debug"))

	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	defer func() { os.Stderr = oldStderr }()

	GetLogger("engine").Error("failed: %s", "oops")

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stderr = oldStderr

	assert.True(t, strings.Contains(buf.String(), "ERROR"))
	assert.True(t, strings.Contains(buf.String(), "failed: oops"))
}

func TestInvestigationFieldConstructors(t *testing.T) {
	assert.Equal(t, LogField{Key: "session_id", Value: "s1"}, SessionField("s1"))
	assert.Equal(t, LogField{Key: "phase", Value: "EVALUATE"}, PhaseField("EVALUATE"))
	assert.Equal(t, LogField{Key: "iteration", Value: 3}, IterationField(3))
	assert.Equal(t, LogField{Key: "hypothesis_id", Value: "h1"}, HypothesisField("h1"))
	assert.Equal(t, LogField{Key: "tool", Value: "cluster_health"}, ToolField("cluster_health"))
}
