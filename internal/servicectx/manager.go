package servicectx

import (
	"sort"
	"strings"

	"github.com/moolen/invagent/internal/investigation/knowledge"
	"github.com/moolen/invagent/internal/servicegraph"
)

// upstreamCausePreferredTypes are service types worth surfacing first when
// ranking potential upstream causes; a dependency failing in one of these
// tends to explain downstream symptoms more often than a generic service.
var upstreamCausePreferredTypes = map[string]bool{
	"database": true,
	"cache":    true,
}

// Manager builds per-service Context bundles from a service graph and a
// knowledge index.
type Manager struct {
	graph     *servicegraph.Graph
	knowledge *knowledge.Manager
	maxDepth  int
}

// Config configures a new Manager.
type Config struct {
	Graph     *servicegraph.Graph
	Knowledge *knowledge.Manager
	MaxDepth  int // zero uses DependencyDepth
}

// New creates a Manager.
func New(cfg Config) *Manager {
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DependencyDepth
	}
	return &Manager{graph: cfg.Graph, knowledge: cfg.Knowledge, maxDepth: depth}
}

// Build assembles the full context for one service, including its
// dependencies, blast radius, and matching knowledge.
func (m *Manager) Build(serviceID string) (*Context, error) {
	svc, err := m.graph.GetByID(serviceID)
	if err != nil {
		return nil, err
	}

	downstream := m.graph.GetDownstreamImpact(serviceID, m.maxDepth)
	upstream := m.graph.GetUpstreamImpact(serviceID, m.maxDepth)

	direct := toDependencies(m.graph, filterByDepth(downstream, 1))
	critical := toDependencies(m.graph, filterByCriticality(downstream, servicegraph.CriticalityCritical))
	causes := m.rankUpstreamCauses(downstream)

	blast := BlastRadius{
		DirectDependents:         toDependencies(m.graph, filterByDepth(upstream, 1)),
		TransitiveDependents:     toDependencies(m.graph, upstream),
		CriticalServicesAffected: toDependencies(m.graph, criticalServicesAffected(m.graph, upstream)),
		CriticalPaths:            filterByCriticality(upstream, servicegraph.CriticalityCritical),
	}

	ctx := &Context{
		Service:                 *svc,
		DirectDependencies:      direct,
		CriticalDependencies:    critical,
		PotentialUpstreamCauses: causes,
		BlastRadius:             blast,
	}

	if m.knowledge != nil {
		m.attachKnowledge(ctx, svc.Name)
	}
	return ctx, nil
}

func (m *Manager) attachKnowledge(ctx *Context, serviceName string) {
	chunks := m.knowledge.Query(serviceName, []string{serviceName}, nil)
	for _, c := range chunks {
		if !containsServiceName(c.Services, serviceName) {
			continue
		}
		ref := RawKnowledgeRef{ID: c.ID, Content: c.Content, Score: c.Score}
		switch c.Type {
		case knowledge.ChunkRunbook:
			ctx.Runbooks = append(ctx.Runbooks, ref)
		case knowledge.ChunkKnownIssue:
			ctx.KnownIssues = append(ctx.KnownIssues, ref)
		case knowledge.ChunkPostmortem:
			ctx.Postmortems = append(ctx.Postmortems, ref)
		}
	}
}

func containsServiceName(services []string, name string) bool {
	for _, s := range services {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// rankUpstreamCauses sorts downstream impact paths so that database/cache
// nodes and critical-criticality edges sort first, within maxDepth.
func (m *Manager) rankUpstreamCauses(downstream []servicegraph.ImpactPath) []Dependency {
	ranked := append([]servicegraph.ImpactPath{}, downstream...)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := causeRank(m.graph, ranked[i]), causeRank(m.graph, ranked[j])
		if pi != pj {
			return pi > pj
		}
		return ranked[i].Depth < ranked[j].Depth
	})
	return toDependencies(m.graph, ranked)
}

func causeRank(g *servicegraph.Graph, p servicegraph.ImpactPath) int {
	score := 0
	if p.Criticality == servicegraph.CriticalityCritical {
		score += 2
	}
	if svc, err := g.GetByID(p.ServiceID); err == nil && upstreamCausePreferredTypes[strings.ToLower(svc.Type)] {
		score += 3
	}
	return score
}

func filterByDepth(paths []servicegraph.ImpactPath, depth int) []servicegraph.ImpactPath {
	var out []servicegraph.ImpactPath
	for _, p := range paths {
		if p.Depth == depth {
			out = append(out, p)
		}
	}
	return out
}

func filterByCriticality(paths []servicegraph.ImpactPath, c servicegraph.Criticality) []servicegraph.ImpactPath {
	var out []servicegraph.ImpactPath
	for _, p := range paths {
		if p.Criticality == c {
			out = append(out, p)
		}
	}
	return out
}

// criticalServicesAffected narrows transitive dependents to services tagged
// with a critical tier, or reached over a critical-criticality path.
func criticalServicesAffected(g *servicegraph.Graph, paths []servicegraph.ImpactPath) []servicegraph.ImpactPath {
	var out []servicegraph.ImpactPath
	for _, p := range paths {
		if p.Criticality == servicegraph.CriticalityCritical {
			out = append(out, p)
			continue
		}
		if svc, err := g.GetByID(p.ServiceID); err == nil && strings.EqualFold(svc.Tier, "critical") {
			out = append(out, p)
		}
	}
	return out
}

func toDependencies(g *servicegraph.Graph, paths []servicegraph.ImpactPath) []Dependency {
	out := make([]Dependency, 0, len(paths))
	for _, p := range paths {
		dep := Dependency{ServiceID: p.ServiceID, Depth: p.Depth, Criticality: p.Criticality}
		if svc, err := g.GetByID(p.ServiceID); err == nil {
			dep.ServiceName = svc.Name
			dep.ServiceType = svc.Type
		}
		out = append(out, dep)
	}
	return out
}
