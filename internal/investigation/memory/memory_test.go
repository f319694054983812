package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/invagent/internal/store"
)

func newTestMemory(t *testing.T) (*Memory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.json")
	m, err := New(Config{SessionID: "sess-1", FilePath: path})
	require.NoError(t, err)
	return m, path
}

func TestAddSymptomAndNotes(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.AddSymptom("checkout returning 500s", []string{"checkout"}))

	notes := m.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, NoteSymptom, notes[0].Type)
}

func TestAddHypothesisUpdateConfirmedPopulatesRootCause(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.AddEvidence("hyp_1", EvidenceStrong, "logs show OOMKilled on payments-worker", "res_1"))
	require.NoError(t, m.AddEvidence("hyp_1", EvidenceWeak, "cpu looked slightly elevated", "res_2"))
	require.NoError(t, m.AddHypothesisUpdate("hyp_1", "payments-worker was OOM killed after a memory limit decrease", HypothesisConfirmed, "strong evidence"))

	rc := m.ConfirmedRootCause()
	assert.Contains(t, rc, "payments-worker was OOM killed")
	assert.Contains(t, rc, "OOMKilled on payments-worker")
	assert.NotContains(t, rc, "cpu looked slightly elevated")
}

func TestPersistMirrorsToSessionIndex(t *testing.T) {
	idx, err := store.Open(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	path := filepath.Join(t.TempDir(), "memory.json")
	m, err := New(Config{SessionID: "sess-idx", Query: "checkout latency spike", FilePath: path, Index: idx})
	require.NoError(t, err)

	require.NoError(t, m.AddSymptom("checkout returning 500s", []string{"checkout"}))

	rec, err := idx.GetSession("sess-idx")
	require.NoError(t, err)
	assert.Equal(t, "checkout latency spike", rec.Query)
	assert.Equal(t, "", rec.Outcome)

	require.NoError(t, m.AddHypothesisUpdate("hyp_1", "pool exhaustion", HypothesisConfirmed, "strong evidence"))

	rec, err = idx.GetSession("sess-idx")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", rec.Outcome)
	assert.Contains(t, rec.RootCause, "pool exhaustion")
}

func TestExtractFromThinkingClassifiesAndExtractsServices(t *testing.T) {
	m, _ := newTestMemory(t)
	text := "The checkout-api pods are crashlooping due to a bad image tag. This confirms the rollout is the root cause. short."
	require.NoError(t, m.ExtractFromThinking(text, "res_9"))

	notes := m.Notes()
	require.NotEmpty(t, notes)
	foundService := false
	for _, n := range notes {
		for _, s := range n.Services {
			if s == "checkout-api" {
				foundService = true
			}
		}
		assert.True(t, n.Extracted)
	}
	assert.True(t, foundService)
}

func TestExtractFromThinkingSkipsShortSentences(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.ExtractFromThinking("ok. fine. root cause found.", ""))
	notes := m.Notes()
	for _, n := range notes {
		assert.Greater(t, len(n.Content), 15)
	}
}

func TestAdvanceIterationAndProgressSummary(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.AdvanceIteration())
	require.NoError(t, m.AdvanceIteration())
	assert.Equal(t, 2, m.Iteration())

	require.NoError(t, m.UpdateProgressSummary("narrowed down to payments namespace"))
	assert.Contains(t, m.BuildContextSummary(), "narrowed down to payments namespace")
}

func TestPersistenceSurvivesReload(t *testing.T) {
	m, path := newTestMemory(t)
	require.NoError(t, m.AddSymptom("latency spike in checkout", []string{"checkout"}))
	require.NoError(t, m.AdvanceIteration())

	m2, err := New(Config{SessionID: "sess-1", FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, 1, m2.Iteration())
	assert.Len(t, m2.Notes(), 1)
}

func TestBuildFinalSummaryGroupsByType(t *testing.T) {
	m, _ := newTestMemory(t)
	require.NoError(t, m.AddSymptom("checkout 500s", nil))
	require.NoError(t, m.AddServiceImpact("checkout degraded", []string{"checkout"}))

	summary := m.BuildFinalSummary()
	assert.Contains(t, summary, "Root cause: not confirmed")
	assert.Contains(t, summary, "checkout 500s")
	assert.Contains(t, summary, "checkout degraded")
}
