package causalquery

import (
	"encoding/json"
	"sort"
)

// serviceArgKeys are the argument keys treated as "the service filter" when
// checking query breadth.
var serviceArgKeys = []string{"service", "namespace"}

// filterArgKeys are args treated as "a filter pattern" beyond the service
// itself.
var filterArgKeys = []string{"metric", "signal", "eventType", "scope"}

// BuildForStatement maps one hypothesis statement to its catalog-matched
// invocations, or three generic exploratory invocations if nothing
// matches.
func BuildForStatement(statement, service string) []Invocation {
	matched := matchPatterns(statement)
	if len(matched) == 0 {
		return genericInvocations(service)
	}

	var out []Invocation
	for _, p := range matched {
		for _, inv := range p.build(service) {
			if inv.Relevance == 0 {
				inv.Relevance = p.relevance
			}
			out = append(out, inv)
		}
	}
	return out
}

// IsQueryTooBroad flags an invocation missing a filter pattern, missing a
// service filter, or missing any args at all.
func IsQueryTooBroad(inv Invocation) bool {
	if len(inv.Args) == 0 {
		return true
	}
	if !hasAnyKey(inv.Args, serviceArgKeys) {
		return true
	}
	if !hasAnyKey(inv.Args, filterArgKeys) {
		return true
	}
	return false
}

func hasAnyKey(args map[string]interface{}, keys []string) bool {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); !ok || s != "" {
				return true
			}
		}
	}
	return false
}

// SuggestQueryRefinements injects defaults from ctx into an invocation
// missing a service, error type, or time range filter. It does not
// overwrite args already present.
func SuggestQueryRefinements(inv Invocation, ctx Context) Invocation {
	refined := Invocation{Tool: inv.Tool, Relevance: inv.Relevance, Args: map[string]interface{}{}}
	for k, v := range inv.Args {
		refined.Args[k] = v
	}
	if !hasAnyKey(refined.Args, serviceArgKeys) && ctx.Service != "" {
		refined.Args["service"] = ctx.Service
	}
	if _, ok := refined.Args["errorType"]; !ok && ctx.ErrorType != "" {
		refined.Args["errorType"] = ctx.ErrorType
	}
	if _, ok := refined.Args["timeRange"]; !ok && ctx.TimeRange != "" {
		refined.Args["timeRange"] = ctx.TimeRange
	}
	return refined
}

// scoredInvocation tracks an invocation alongside the priority of the
// hypothesis that produced it, for cross-hypothesis prioritization.
type scoredInvocation struct {
	inv          Invocation
	planPriority int
}

// BuildPlan maps each hypothesis to invocations, refines them against ctx,
// sorts by (planPriority asc, relevance desc), deduplicates by
// (tool, serialized args), and caps at maxQueries.
func BuildPlan(hypotheses []HypothesisInput, ctx Context, maxQueries int) Plan {
	var all []scoredInvocation
	for _, h := range hypotheses {
		for _, inv := range BuildForStatement(h.Statement, ctx.Service) {
			refined := SuggestQueryRefinements(inv, ctx)
			all = append(all, scoredInvocation{inv: refined, planPriority: h.PlanPriority})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].planPriority != all[j].planPriority {
			return all[i].planPriority < all[j].planPriority
		}
		return all[i].inv.Relevance > all[j].inv.Relevance
	})

	seen := map[string]bool{}
	plan := Plan{}
	for _, s := range all {
		key := dedupeKey(s.inv)
		if seen[key] {
			continue
		}
		seen[key] = true
		plan.Invocations = append(plan.Invocations, s.inv)
		if maxQueries > 0 && len(plan.Invocations) >= maxQueries {
			break
		}
	}
	return plan
}

func dedupeKey(inv Invocation) string {
	raw, _ := json.Marshal(inv.Args)
	return inv.Tool + "|" + string(raw)
}
