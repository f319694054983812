package compactor

import (
	"sort"
	"strings"
)

// errorKeywords back the error-signals keyword probe for results that carry
// no explicit HasErrors/HealthStatus signal.
var errorKeywords = []string{"error", "fail", "exception", "timeout", "denied"}

// Context carries the cross-cutting state the compactor needs to score
// hypothesis-relevance, service-relevance and citations, without this
// package importing hypothesis, memory or servicegraph directly.
type Context struct {
	QueryTokens         []string          // lowercased, length > 2
	ServicesDiscovered  []string          // lowercased
	SymptomToolPrefixes []string          // tool name prefixes tied to the original symptom
	EvidenceByResult    map[string]string // resultId -> "strong" | "weak"
	CitedResultIDs      map[string]bool
}

// Score computes the weighted score for one result. idx/total give its
// position in timestamp-ascending order, used for the recency axis.
func Score(input ScoreInput, idx, total int, ctx Context, w Weights) Scored {
	breakdown := map[string]float64{
		"recency":             recencyScore(idx, total),
		"queryRelevance":      queryRelevanceScore(input, ctx.QueryTokens),
		"errorSignals":        errorSignalScore(input),
		"hypothesisRelevance": hypothesisRelevanceScore(input, ctx),
		"serviceRelevance":    serviceRelevanceScore(input, ctx.ServicesDiscovered),
		"citedInNotes":        citedScore(input, ctx.CitedResultIDs),
	}

	total64 := breakdown["recency"]*w.Recency +
		breakdown["queryRelevance"]*w.QueryRelevance +
		breakdown["errorSignals"]*w.ErrorSignals +
		breakdown["hypothesisRelevance"]*w.HypothesisRelevance +
		breakdown["serviceRelevance"]*w.ServiceRelevance +
		breakdown["citedInNotes"]*w.CitedInNotes

	return Scored{
		ResultID:      input.ResultID,
		Score:         total64,
		Breakdown:     breakdown,
		TimestampUnix: input.TimestampUnix,
	}
}

func recencyScore(idx, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 0.1 + 0.9*float64(idx)/float64(total-1)
}

func queryRelevanceScore(input ScoreInput, queryTokens []string) float64 {
	tokens := filterShort(queryTokens)
	if len(tokens) == 0 {
		return 0.0
	}
	haystack := strings.ToLower(serializeArgs(input.Args) + " " + input.SerializedResult)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func filterShort(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

func serializeArgs(args map[string]interface{}) string {
	var b strings.Builder
	for k, v := range args {
		b.WriteString(k)
		b.WriteString(" ")
		b.WriteString(strings.ToLower(toString(v)))
		b.WriteString(" ")
	}
	return b.String()
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return ""
	}
}

func errorSignalScore(input ScoreInput) float64 {
	if input.HasErrors || input.HealthStatus == "critical" {
		return 1.0
	}
	if input.HealthStatus == "degraded" {
		return 0.7
	}
	text := strings.ToLower(input.SerializedResult)
	hits := 0
	for _, kw := range errorKeywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	if hits == 0 {
		return 0.0
	}
	score := float64(hits) / float64(len(errorKeywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func hypothesisRelevanceScore(input ScoreInput, ctx Context) float64 {
	if strength, ok := ctx.EvidenceByResult[input.ResultID]; ok {
		switch strength {
		case "strong":
			return 1.0
		case "weak":
			return 0.7
		}
	}
	for _, prefix := range ctx.SymptomToolPrefixes {
		if strings.HasPrefix(input.ToolName, prefix) {
			return 0.5
		}
	}
	return 0.0
}

func serviceRelevanceScore(input ScoreInput, discovered []string) float64 {
	if len(discovered) == 0 || len(input.Services) == 0 {
		return 0.0
	}
	discoveredSet := make(map[string]bool, len(discovered))
	for _, s := range discovered {
		discoveredSet[strings.ToLower(s)] = true
	}
	best := 0.0
	for _, svc := range input.Services {
		lower := strings.ToLower(svc)
		if discoveredSet[lower] {
			return 1.0
		}
		for d := range discoveredSet {
			if strings.Contains(lower, d) || strings.Contains(d, lower) {
				if best < 0.8 {
					best = 0.8
				}
			}
		}
	}
	return best
}

func citedScore(input ScoreInput, cited map[string]bool) float64 {
	if cited[input.ResultID] {
		return 1.0
	}
	return 0.0
}

// ScoreAll scores every input, assuming inputs are sorted timestamp-ascending.
func ScoreAll(inputs []ScoreInput, ctx Context, w Weights) []Scored {
	out := make([]Scored, len(inputs))
	for i, in := range inputs {
		out[i] = Score(in, i, len(inputs), ctx, w)
	}
	return out
}

// sortedDescending returns scored results ordered by score desc, earlier
// timestamp breaking ties, for deterministic plan production.
func sortedDescending(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TimestampUnix < out[j].TimestampUnix
	})
	return out
}

// BuildCountPlan implements the count-based plan mode: fill full up to
// MaxFullResults while score >= MinScoreForFull, then compact up to
// MaxCompactResults while score >= MinScoreToKeep, remainder cleared. A
// result cited in a note is never demoted below compact.
func BuildCountPlan(scored []Scored, limits CountLimits, cited map[string]bool) Plan {
	ordered := sortedDescending(scored)
	plan := Plan{}

	fullCount, compactCount := 0, 0
	for _, s := range ordered {
		switch {
		case fullCount < limits.MaxFullResults && s.Score >= limits.MinScoreForFull:
			plan.Full = append(plan.Full, s.ResultID)
			fullCount++
		case compactCount < limits.MaxCompactResults && s.Score >= limits.MinScoreToKeep:
			plan.Compact = append(plan.Compact, s.ResultID)
			compactCount++
		case cited[s.ResultID]:
			plan.Compact = append(plan.Compact, s.ResultID)
			compactCount++
		default:
			plan.Cleared = append(plan.Cleared, s.ResultID)
		}
	}
	return plan
}

// TokenEstimator returns the estimated token cost of rendering a result at
// full and at compact tier.
type TokenEstimator func(resultID string) (fullCost, compactCost int)

// BuildBudgetPlan implements the budget-based plan mode: greedily allocate
// full-tier slots in score order while the running total stays within
// MaxTokens, then compact-tier slots with whatever budget remains.
func BuildBudgetPlan(scored []Scored, limits BudgetLimits, estimate TokenEstimator, cited map[string]bool) Plan {
	ordered := sortedDescending(scored)
	plan := Plan{}

	spent := 0
	remaining := make([]Scored, 0, len(ordered))
	for _, s := range ordered {
		fullCost, _ := estimate(s.ResultID)
		if spent+fullCost <= limits.MaxTokens {
			plan.Full = append(plan.Full, s.ResultID)
			spent += fullCost
			continue
		}
		remaining = append(remaining, s)
	}

	stillRemaining := make([]Scored, 0, len(remaining))
	for _, s := range remaining {
		_, compactCost := estimate(s.ResultID)
		if spent+compactCost <= limits.MaxTokens {
			plan.Compact = append(plan.Compact, s.ResultID)
			spent += compactCost
			continue
		}
		stillRemaining = append(stillRemaining, s)
	}

	for _, s := range stillRemaining {
		if cited[s.ResultID] {
			plan.Compact = append(plan.Compact, s.ResultID)
			continue
		}
		plan.Cleared = append(plan.Cleared, s.ResultID)
	}
	return plan
}
