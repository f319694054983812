package causalquery

import "strings"

// pattern is one entry in the built-in failure-pattern catalog. Keywords
// are matched against the lowercased hypothesis statement; on a match, the
// pattern's invocations (with args as a template, {{service}} substituted
// by the caller's best-guess service name) are emitted.
type pattern struct {
	name      string
	keywords  []string
	relevance float64
	build     func(service string) []Invocation
}

// catalog maps signal combinations observable through cluster_health,
// resource_timeline, detect_anomalies and causal_paths tool calls onto a
// fixed set of named failure categories.
var catalog = []pattern{
	{
		name:      "latency",
		keywords:  []string{"latency", "slow", "p99", "response time"},
		relevance: 0.9,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "latency"}},
				{Tool: "detect_anomalies", Args: map[string]interface{}{"service": service, "signal": "latency"}},
			}
		},
	},
	{
		name:      "error_rate",
		keywords:  []string{"error rate", "500", "errors", "failing requests"},
		relevance: 0.9,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "error_rate"}},
				{Tool: "cluster_health", Args: map[string]interface{}{"service": service}},
			}
		},
	},
	{
		name:      "memory",
		keywords:  []string{"oom", "oomkilled", "memory", "out of memory"},
		relevance: 0.9,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "memory"}},
				{Tool: "cluster_health", Args: map[string]interface{}{"service": service}},
			}
		},
	},
	{
		name:      "cpu",
		keywords:  []string{"cpu", "throttl", "cpu-bound"},
		relevance: 0.85,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "cpu"}},
			}
		},
	},
	{
		name:      "connectivity",
		keywords:  []string{"connection refused", "unreachable", "timeout", "dns", "network"},
		relevance: 0.85,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "causal_paths", Args: map[string]interface{}{"service": service}},
				{Tool: "cluster_health", Args: map[string]interface{}{"service": service}},
			}
		},
	},
	{
		name:      "deployment",
		keywords:  []string{"deploy", "rollout", "release", "canary", "version"},
		relevance: 0.9,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "eventType": "deployment"}},
				{Tool: "causal_paths", Args: map[string]interface{}{"service": service}},
			}
		},
	},
	{
		name:      "database",
		keywords:  []string{"database", "db ", "connection pool", "query", "postgres", "mysql"},
		relevance: 0.85,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "db_connections"}},
				{Tool: "detect_anomalies", Args: map[string]interface{}{"service": service, "signal": "db_latency"}},
			}
		},
	},
	{
		name:      "scaling",
		keywords:  []string{"scal", "replica", "autoscal", "capacity"},
		relevance: 0.8,
		build: func(service string) []Invocation {
			return []Invocation{
				{Tool: "cluster_health", Args: map[string]interface{}{"service": service}},
				{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "replica_count"}},
			}
		},
	},
}

// matchPatterns returns every catalog pattern whose keywords appear in the
// lowercased statement.
func matchPatterns(statement string) []pattern {
	lower := strings.ToLower(statement)
	var matched []pattern
	for _, p := range catalog {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// genericInvocations is emitted when no pattern matches: broad exploratory
// queries rather than a targeted one.
func genericInvocations(service string) []Invocation {
	return []Invocation{
		{Tool: "detect_anomalies", Args: map[string]interface{}{"service": service}, Relevance: 0.4},
		{Tool: "resource_timeline", Args: map[string]interface{}{"service": service, "metric": "error_logs"}, Relevance: 0.4},
		{Tool: "cluster_health", Args: map[string]interface{}{"service": service, "scope": "triggered_monitors"}, Relevance: 0.4},
	}
}
