package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	runbooks    []RawChunk
	knownIssues []RawChunk
	postmortems []RawChunk
}

func (f *fakeSource) LoadRunbooks() ([]RawChunk, error)    { return f.runbooks, nil }
func (f *fakeSource) LoadKnownIssues() ([]RawChunk, error) { return f.knownIssues, nil }
func (f *fakeSource) LoadPostmortems() ([]RawChunk, error) { return f.postmortems, nil }

func sampleSource() *fakeSource {
	return &fakeSource{
		runbooks: []RawChunk{
			{ID: "rb_checkout", Type: ChunkRunbook, Services: []string{"checkout"}, Symptoms: []string{"latency"}, Content: "checkout latency runbook: check connection pool"},
			{ID: "rb_billing", Type: ChunkRunbook, Services: []string{"billing"}, Symptoms: []string{"errors"}, Content: "billing errors runbook: check payment gateway"},
		},
		knownIssues: []RawChunk{
			{ID: "ki_active", Type: ChunkKnownIssue, Active: true, Services: []string{"checkout"}, Content: "checkout known issue: connection pool exhaustion under load"},
			{ID: "ki_inactive", Type: ChunkKnownIssue, Active: false, Services: []string{"checkout"}, Content: "checkout known issue: resolved deploy bug"},
		},
		postmortems: []RawChunk{
			{ID: "pm_checkout", Type: ChunkPostmortem, Services: []string{"checkout"}, RootCause: "connection pool exhaustion", Content: "checkout outage postmortem"},
		},
	}
}

func TestInitExcludesInactiveKnownIssues(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	found := false
	for _, c := range m.chunks {
		if c.ID == "ki_inactive" {
			found = true
		}
	}
	assert.False(t, found)
	assert.Len(t, m.chunks, 4)
}

func TestQueryForInvestigationBoundsByTypeAndRelevance(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	results := m.QueryForInvestigation("checkout connection pool latency", []string{"checkout"})
	require.NotEmpty(t, results)
	for _, c := range results {
		assert.NotEqual(t, "ki_inactive", c.ID)
		assert.GreaterOrEqual(t, c.Score, DefaultMinRelevance)
	}
}

func TestQueryForInvestigationExcludesUnrelatedService(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	results := m.QueryForInvestigation("checkout connection pool", []string{"checkout"})
	for _, c := range results {
		assert.NotEqual(t, "rb_billing", c.ID)
	}
}

func TestQueryForNewServicesOnlyReQueriesUnseenServices(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	before := m.QueryForInvestigation("checkout latency", []string{"checkout"})

	// re-requesting the same, already-seen service should not re-score.
	results := m.QueryForNewServices([]string{"checkout"})
	assert.Equal(t, before, results)
}

func TestQueryForNewServicesMergesAndDedupesById(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	m.QueryForInvestigation("checkout latency", []string{"checkout"})
	results := m.QueryForNewServices([]string{"billing"})

	seen := map[string]int{}
	for _, c := range results {
		seen[c.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "chunk %s duplicated", id)
	}

	hasBilling := false
	for _, c := range results {
		if c.ID == "rb_billing" {
			hasBilling = true
		}
	}
	assert.True(t, hasBilling)
}

func TestQueryForNewSymptomsReQueriesOnlyUnseenSymptoms(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	m.QueryForInvestigation("checkout", []string{"checkout"})
	results := m.QueryForNewSymptoms([]string{"latency"})
	require.NotEmpty(t, results)

	again := m.QueryForNewSymptoms([]string{"latency"})
	assert.Equal(t, results, again)
}

func TestUpdateFromInvestigationStateComputesDeltasAndReQueries(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	m.QueryForInvestigation("checkout", []string{"checkout"})

	state := InvestigationState{
		Query:              "checkout",
		ServicesDiscovered: []string{"checkout", "billing"},
		Symptoms:           []string{"errors"},
	}
	results := m.UpdateFromInvestigationState(state, []string{"checkout"}, nil)

	hasBilling := false
	for _, c := range results {
		if c.ID == "rb_billing" {
			hasBilling = true
		}
	}
	assert.True(t, hasBilling)
}

func TestUpdateFromInvestigationStateNoDeltaReturnsRetainedSet(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	first := m.QueryForInvestigation("checkout", []string{"checkout"})
	state := InvestigationState{Query: "checkout", ServicesDiscovered: []string{"checkout"}, Symptoms: nil}
	second := m.UpdateFromInvestigationState(state, []string{"checkout"}, nil)

	assert.ElementsMatch(t, idsOf(first), idsOf(second))
}

func TestQueryIsStatelessAndDoesNotAffectDeltaTracking(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Init(sampleSource()))

	_ = m.Query("checkout", []string{"checkout"}, nil)

	// checkout should still be unseen from the delta-tracking methods'
	// perspective, since Query must not mark it seen.
	before := m.QueryForInvestigation("checkout", []string{"checkout"})
	assert.NotEmpty(t, before)

	again := m.QueryForNewServices([]string{"checkout"})
	assert.Equal(t, before, again)
}

func idsOf(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	return out
}
