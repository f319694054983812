// Package servicectx composes the service graph and the knowledge index
// into a single per-service context object for the investigation engine.
package servicectx

import "github.com/moolen/invagent/internal/servicegraph"

// DependencyDepth is the default traversal depth for dependency and
// dependent lookups when a caller does not override it.
const DependencyDepth = 3

// Dependency is one edge out of the investigated service, annotated with
// the target service's name and type for display.
type Dependency struct {
	ServiceID   string                   `json:"serviceId"`
	ServiceName string                   `json:"serviceName"`
	ServiceType string                   `json:"serviceType"`
	Depth       int                      `json:"depth"`
	Criticality servicegraph.Criticality `json:"criticality"`
}

// BlastRadius summarizes what else is affected if the investigated service
// fails.
type BlastRadius struct {
	DirectDependents         []Dependency              `json:"directDependents"`
	TransitiveDependents     []Dependency              `json:"transitiveDependents"`
	CriticalServicesAffected []Dependency              `json:"criticalServicesAffected"`
	CriticalPaths            []servicegraph.ImpactPath `json:"criticalPaths"`
}

// Context is the full per-service bundle handed to the investigation
// engine for one investigated service.
type Context struct {
	Service                 servicegraph.Service `json:"service"`
	DirectDependencies      []Dependency         `json:"directDependencies"`
	CriticalDependencies    []Dependency         `json:"criticalDependencies"`
	PotentialUpstreamCauses []Dependency         `json:"potentialUpstreamCauses"`
	BlastRadius             BlastRadius          `json:"blastRadius"`
	Runbooks                []RawKnowledgeRef    `json:"runbooks"`
	KnownIssues             []RawKnowledgeRef    `json:"knownIssues"`
	Postmortems             []RawKnowledgeRef    `json:"postmortems"`
}

// RawKnowledgeRef is the minimal knowledge-chunk projection surfaced on a
// service context; full chunk content lives in the knowledge package.
type RawKnowledgeRef struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
