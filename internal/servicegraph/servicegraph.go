package servicegraph

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/ids"
)

// Graph is a typed directed multigraph of services and their dependencies.
// Adjacency indexes and the edge map are kept in sync on every mutation.
type Graph struct {
	mu sync.RWMutex

	services    map[string]*Service
	byNameLower map[string][]string // lowercased name -> service ids

	edges    map[string]*Edge
	outgoing map[string][]string // serviceId -> outgoing edge ids
	incoming map[string][]string // serviceId -> incoming edge ids
}

// New creates an empty service graph.
func New() *Graph {
	return &Graph{
		services:    make(map[string]*Service),
		byNameLower: make(map[string][]string),
		edges:       make(map[string]*Edge),
		outgoing:    make(map[string][]string),
		incoming:    make(map[string][]string),
	}
}

// AddService inserts or replaces a service. Its ID must be set by the
// caller (services are named entities, not opaque-id records).
func (g *Graph) AddService(s Service) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := g.services[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
		g.unindexNameLocked(existing)
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	g.services[s.ID] = &s
	g.indexNameLocked(&s)
}

func (g *Graph) indexNameLocked(s *Service) {
	lower := strings.ToLower(s.Name)
	g.byNameLower[lower] = append(g.byNameLower[lower], s.ID)
}

func (g *Graph) unindexNameLocked(s *Service) {
	lower := strings.ToLower(s.Name)
	bucket := g.byNameLower[lower]
	for i, id := range bucket {
		if id == s.ID {
			g.byNameLower[lower] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// RemoveService deletes a service and every incident edge.
func (g *Graph) RemoveService(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.services[id]
	if !ok {
		return &NotFoundError{ServiceID: id}
	}
	g.unindexNameLocked(s)
	delete(g.services, id)

	for _, edgeID := range append([]string{}, g.outgoing[id]...) {
		g.removeEdgeLocked(edgeID)
	}
	for _, edgeID := range append([]string{}, g.incoming[id]...) {
		g.removeEdgeLocked(edgeID)
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)
	return nil
}

// GetByID looks up a service by id.
func (g *Graph) GetByID(id string) (*Service, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.services[id]
	if !ok {
		return nil, &NotFoundError{ServiceID: id}
	}
	return s, nil
}

// GetByName looks up services by case-insensitive name.
func (g *Graph) GetByName(name string) []*Service {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Service
	for _, id := range g.byNameLower[strings.ToLower(name)] {
		out = append(out, g.services[id])
	}
	return out
}

// Filter returns services matching all of the non-empty predicates
// supplied. An empty tag list matches everything.
func (g *Graph) Filter(team, svcType, tier, tag string) []*Service {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Service
	for _, s := range g.services {
		if team != "" && s.Team != team {
			continue
		}
		if svcType != "" && s.Type != svcType {
			continue
		}
		if tier != "" && s.Tier != tier {
			continue
		}
		if tag != "" && !containsTag(s.Tags, tag) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Search does a case-insensitive substring match against name and id.
func (g *Graph) Search(query string) []*Service {
	g.mu.RLock()
	defer g.mu.RUnlock()
	lower := strings.ToLower(query)
	var out []*Service
	for _, s := range g.services {
		if strings.Contains(strings.ToLower(s.Name), lower) || strings.Contains(strings.ToLower(s.ID), lower) {
			out = append(out, s)
		}
	}
	return out
}

// AddDependency adds or overwrites (last write wins) the edge from -> to.
func (g *Graph) AddDependency(from, to, edgeType string, criticality Criticality) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.services[from]; !ok {
		return nil, &NotFoundError{ServiceID: from}
	}
	if _, ok := g.services[to]; !ok {
		return nil, &NotFoundError{ServiceID: to}
	}

	if existingID := g.findEdgeLocked(from, to); existingID != "" {
		g.removeEdgeLocked(existingID)
	}

	edge := &Edge{
		ID:          ids.NewEdgeID(),
		From:        from,
		To:          to,
		Type:        edgeType,
		Criticality: criticality,
		CreatedAt:   time.Now().UTC(),
	}
	g.edges[edge.ID] = edge
	g.outgoing[from] = append(g.outgoing[from], edge.ID)
	g.incoming[to] = append(g.incoming[to], edge.ID)
	return edge, nil
}

func (g *Graph) findEdgeLocked(from, to string) string {
	for _, edgeID := range g.outgoing[from] {
		if e, ok := g.edges[edgeID]; ok && e.To == to {
			return edgeID
		}
	}
	return ""
}

// RemoveEdge deletes a single edge by id.
func (g *Graph) RemoveEdge(edgeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeEdgeLocked(edgeID)
}

func (g *Graph) removeEdgeLocked(edgeID string) {
	edge, ok := g.edges[edgeID]
	if !ok {
		return
	}
	delete(g.edges, edgeID)
	g.outgoing[edge.From] = removeID(g.outgoing[edge.From], edgeID)
	g.incoming[edge.To] = removeID(g.incoming[edge.To], edgeID)
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// FindPath returns the shortest path from -> to by BFS over outgoing
// edges, or nil if unreachable.
func (g *Graph) FindPath(from, to string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if from == to {
		return []string{from}
	}
	if _, ok := g.services[from]; !ok {
		return nil
	}

	visited := map[string]bool{from: true}
	prev := map[string]string{}
	queue := []string{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edgeID := range g.outgoing[cur] {
			edge := g.edges[edgeID]
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			prev[edge.To] = cur
			if edge.To == to {
				return reconstructPath(prev, from, to)
			}
			queue = append(queue, edge.To)
		}
	}
	return nil
}

func reconstructPath(prev map[string]string, from, to string) []string {
	path := []string{to}
	cur := to
	for cur != from {
		cur = prev[cur]
		path = append([]string{cur}, path...)
	}
	return path
}

// GetUpstreamImpact finds every service that depends (directly or
// transitively, within maxDepth) on id, via incoming edges.
func (g *Graph) GetUpstreamImpact(id string, maxDepth int) []ImpactPath {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.impactLocked(id, maxDepth, g.incoming, func(e *Edge) string { return e.From })
}

// GetDownstreamImpact finds every service id depends on (directly or
// transitively, within maxDepth), via outgoing edges.
func (g *Graph) GetDownstreamImpact(id string, maxDepth int) []ImpactPath {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.impactLocked(id, maxDepth, g.outgoing, func(e *Edge) string { return e.To })
}

func (g *Graph) impactLocked(origin string, maxDepth int, adjacency map[string][]string, neighbor func(*Edge) string) []ImpactPath {
	if _, ok := g.services[origin]; !ok {
		return nil
	}

	type frame struct {
		id          string
		depth       int
		path        []string
		criticality Criticality
	}

	var out []ImpactPath
	visited := map[string]bool{origin: true}
	// criticality starts at the top rank so the first hop's own edge
	// criticality is never clamped by this sentinel.
	stack := []frame{{id: origin, depth: 0, path: []string{origin}, criticality: CriticalityCritical}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.depth >= maxDepth {
			continue
		}
		for _, edgeID := range adjacency[cur.id] {
			edge := g.edges[edgeID]
			next := neighbor(edge)
			if visited[next] {
				continue
			}
			visited[next] = true

			pathCriticality := edge.Criticality
			if cur.depth > 0 && criticalityRank[cur.criticality] < criticalityRank[edge.Criticality] {
				pathCriticality = cur.criticality
			}

			newPath := append(append([]string{}, cur.path...), next)
			out = append(out, ImpactPath{
				ServiceID:   next,
				Depth:       cur.depth + 1,
				Path:        newPath,
				Criticality: pathCriticality,
			})
			stack = append(stack, frame{id: next, depth: cur.depth + 1, path: newPath, criticality: pathCriticality})
		}
	}
	return out
}

// DetectCycles returns the set of simple cycles found by colored DFS. Each
// cycle is a slice of service ids starting and ending at the same id.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.services))
	for id := range g.services {
		color[id] = white
	}

	var cycles [][]string
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, edgeID := range g.outgoing[id] {
			next := g.edges[edgeID].To
			switch color[next] {
			case white:
				visit(next)
			case gray:
				cycle := cycleFromStack(stack, next)
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for id := range g.services {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

func cycleFromStack(stack []string, start string) []string {
	idx := 0
	for i, id := range stack {
		if id == start {
			idx = i
			break
		}
	}
	cycle := append([]string{}, stack[idx:]...)
	return append(cycle, start)
}

// ToJSON serializes the full graph losslessly, including timestamps.
func (g *Graph) ToJSON() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := graphDoc{}
	for _, s := range g.services {
		doc.Services = append(doc.Services, *s)
	}
	for _, e := range g.edges {
		doc.Edges = append(doc.Edges, *e)
	}
	return json.Marshal(doc)
}

// FromJSON replaces the graph's contents with a previously serialized
// document.
func (g *Graph) FromJSON(data []byte) error {
	var doc graphDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.services = make(map[string]*Service)
	g.byNameLower = make(map[string][]string)
	g.edges = make(map[string]*Edge)
	g.outgoing = make(map[string][]string)
	g.incoming = make(map[string][]string)

	for _, s := range doc.Services {
		sCopy := s
		g.services[s.ID] = &sCopy
		g.indexNameLocked(&sCopy)
	}
	for _, e := range doc.Edges {
		eCopy := e
		g.edges[e.ID] = &eCopy
		g.outgoing[e.From] = append(g.outgoing[e.From], e.ID)
		g.incoming[e.To] = append(g.incoming[e.To], e.ID)
	}
	return nil
}
