// Package summarize reduces a raw tool result to the fixed-shape
// CompactSummary the scratchpad stores alongside every full result. It is a
// pure function: no network I/O, no state.
package summarize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/moolen/invagent/internal/investigation/scratchpad"
)

// errorKeywords are lowercase substrings whose presence anywhere in a
// serialized result payload counts as an error signal.
var errorKeywords = []string{
	"error", "fail", "crash", "timeout", "exception", "panic",
	"unavailable", "unhealthy", "denied", "refused", "unreachable",
}

// serviceKeys are the JSON object keys inspected when extracting service or
// resource identifiers from an arbitrary result payload.
var serviceKeys = []string{
	"service", "services", "resource", "resources", "name", "namespace",
	"deployment", "pod", "component",
}

const maxSummaryChars = 200

// Summarize turns a raw tool result into a CompactSummary.
func Summarize(tool string, args map[string]interface{}, result interface{}) scratchpad.CompactSummary {
	raw, _ := json.Marshal(result)
	text := strings.ToLower(string(raw))

	services := extractServices(result)
	hasErrors := containsAny(text, errorKeywords)
	health := deriveHealth(text, hasErrors)

	return scratchpad.CompactSummary{
		ShortText:    buildShortText(tool, services, hasErrors, health),
		Services:     services,
		HealthStatus: health,
		HasErrors:    hasErrors,
	}
}

func deriveHealth(text string, hasErrors bool) scratchpad.HealthStatus {
	switch {
	case strings.Contains(text, "critical"):
		return scratchpad.HealthCritical
	case hasErrors:
		return scratchpad.HealthCritical
	case strings.Contains(text, "degraded") || strings.Contains(text, "warning"):
		return scratchpad.HealthDegraded
	case strings.Contains(text, "status") || strings.Contains(text, "health"):
		return scratchpad.HealthOK
	default:
		return scratchpad.HealthUnknown
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// extractServices walks a JSON-shaped value looking for string values under
// keys known to name a service or resource. Results are deduplicated and
// sorted for deterministic output.
func extractServices(result interface{}) []string {
	seen := map[string]bool{}
	walk(result, seen)

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func walk(v interface{}, seen map[string]bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, inner := range val {
			if isServiceKey(k) {
				switch s := inner.(type) {
				case string:
					if s != "" {
						seen[s] = true
					}
				case []interface{}:
					for _, item := range s {
						if str, ok := item.(string); ok && str != "" {
							seen[str] = true
						}
					}
				}
			}
			walk(inner, seen)
		}
	case []interface{}:
		for _, item := range val {
			walk(item, seen)
		}
	}
}

func isServiceKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range serviceKeys {
		if lower == k {
			return true
		}
	}
	return false
}

func buildShortText(tool string, services []string, hasErrors bool, health scratchpad.HealthStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: health=%s", tool, health)
	if hasErrors {
		b.WriteString(", errors present")
	}
	if len(services) > 0 {
		limit := services
		if len(limit) > 5 {
			limit = limit[:5]
		}
		fmt.Fprintf(&b, ", services=[%s]", strings.Join(limit, ","))
	}
	text := b.String()
	if len(text) > maxSummaryChars {
		text = text[:maxSummaryChars-3] + "..."
	}
	return text
}
