package compactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecencyScoreLinearFromOldestToNewest(t *testing.T) {
	assert.InDelta(t, 0.1, recencyScore(0, 5), 0.001)
	assert.InDelta(t, 1.0, recencyScore(4, 5), 0.001)
	assert.InDelta(t, 1.0, recencyScore(0, 1), 0.001)
}

func TestQueryRelevanceScoreCountsMatchingTokens(t *testing.T) {
	input := ScoreInput{SerializedResult: `{"status":"crashloopbackoff in payments"}`}
	score := queryRelevanceScore(input, []string{"payments", "crashloopbackoff", "ab"})
	assert.InDelta(t, 1.0, score, 0.001)
}

func TestErrorSignalScoreRespectsExplicitFlags(t *testing.T) {
	assert.Equal(t, 1.0, errorSignalScore(ScoreInput{HasErrors: true}))
	assert.Equal(t, 1.0, errorSignalScore(ScoreInput{HealthStatus: "critical"}))
	assert.Equal(t, 0.7, errorSignalScore(ScoreInput{HealthStatus: "degraded"}))
	assert.Equal(t, 0.0, errorSignalScore(ScoreInput{HealthStatus: "ok", SerializedResult: "all good"}))
}

func TestHypothesisRelevanceScoreTiers(t *testing.T) {
	ctx := Context{
		EvidenceByResult:    map[string]string{"res_1": "strong", "res_2": "weak"},
		SymptomToolPrefixes: []string{"pod_"},
	}
	assert.Equal(t, 1.0, hypothesisRelevanceScore(ScoreInput{ResultID: "res_1"}, ctx))
	assert.Equal(t, 0.7, hypothesisRelevanceScore(ScoreInput{ResultID: "res_2"}, ctx))
	assert.Equal(t, 0.5, hypothesisRelevanceScore(ScoreInput{ResultID: "res_3", ToolName: "pod_status"}, ctx))
	assert.Equal(t, 0.0, hypothesisRelevanceScore(ScoreInput{ResultID: "res_4", ToolName: "unrelated"}, ctx))
}

func TestServiceRelevanceScoreDirectAndTextualMatch(t *testing.T) {
	discovered := []string{"checkout"}
	assert.Equal(t, 1.0, serviceRelevanceScore(ScoreInput{Services: []string{"checkout"}}, discovered))
	assert.Equal(t, 0.8, serviceRelevanceScore(ScoreInput{Services: []string{"checkout-worker"}}, discovered))
	assert.Equal(t, 0.0, serviceRelevanceScore(ScoreInput{Services: []string{"billing"}}, discovered))
}

func TestBuildCountPlanNeverDemotesCitedBelowCompact(t *testing.T) {
	scored := []Scored{
		{ResultID: "low", Score: 0.05, TimestampUnix: 1},
	}
	plan := BuildCountPlan(scored, CountLimits{MaxFullResults: 0, MinScoreForFull: 0.9, MaxCompactResults: 0, MinScoreToKeep: 0.9}, map[string]bool{"low": true})
	assert.Contains(t, plan.Compact, "low")
	assert.NotContains(t, plan.Cleared, "low")
}

func TestBuildCountPlanAssignsTiersByScore(t *testing.T) {
	scored := []Scored{
		{ResultID: "a", Score: 0.9, TimestampUnix: 1},
		{ResultID: "b", Score: 0.6, TimestampUnix: 2},
		{ResultID: "c", Score: 0.1, TimestampUnix: 3},
	}
	plan := BuildCountPlan(scored, DefaultCountLimits, map[string]bool{})
	assert.Equal(t, []string{"a", "b"}, plan.Full)
	assert.Contains(t, plan.Cleared, "c")
}

func TestBuildCountPlanIsDeterministicOnTies(t *testing.T) {
	scored := []Scored{
		{ResultID: "newer", Score: 0.8, TimestampUnix: 20},
		{ResultID: "older", Score: 0.8, TimestampUnix: 10},
	}
	plan := BuildCountPlan(scored, CountLimits{MaxFullResults: 1, MinScoreForFull: 0.5, MaxCompactResults: 5, MinScoreToKeep: 0.0}, map[string]bool{})
	assert.Equal(t, []string{"older"}, plan.Full)
}

func TestBuildBudgetPlanStaysWithinBudget(t *testing.T) {
	scored := []Scored{
		{ResultID: "a", Score: 0.9, TimestampUnix: 1},
		{ResultID: "b", Score: 0.5, TimestampUnix: 2},
	}
	estimate := func(id string) (int, int) {
		return 100, 20
	}
	plan := BuildBudgetPlan(scored, BudgetLimits{MaxTokens: 120}, estimate, map[string]bool{})
	assert.Equal(t, []string{"a"}, plan.Full)
	assert.Equal(t, []string{"b"}, plan.Compact)
}

func TestPresetsSumToOne(t *testing.T) {
	for name, w := range Presets {
		sum := w.Recency + w.QueryRelevance + w.ErrorSignals + w.HypothesisRelevance + w.ServiceRelevance + w.CitedInNotes
		assert.InDelta(t, 1.0, sum, 0.0001, "preset %s weights must sum to 1.0", name)
	}
}
