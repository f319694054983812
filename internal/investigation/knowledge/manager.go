package knowledge

import (
	"sort"
	"strings"
	"sync"

	"github.com/moolen/invagent/internal/logging"
)

// Manager is the in-memory index plus the last-seen facets used to decide
// what a delta re-query should cover.
type Manager struct {
	mu sync.Mutex

	chunks []RawChunk
	limits PerTypeLimits
	minRel float64
	logger *logging.Logger

	seenServices map[string]bool
	seenSymptoms map[string]bool
	lastResults  map[string]Chunk // id -> chunk, the current retained set
}

// Config configures a new Manager.
type Config struct {
	Limits       PerTypeLimits // zero value uses DefaultPerTypeLimits
	MinRelevance float64       // zero value uses DefaultMinRelevance
}

// New creates an empty Manager; call Init to populate the index.
func New(cfg Config) *Manager {
	limits := cfg.Limits
	if limits == (PerTypeLimits{}) {
		limits = DefaultPerTypeLimits
	}
	minRel := cfg.MinRelevance
	if minRel == 0 {
		minRel = DefaultMinRelevance
	}
	return &Manager{
		limits:       limits,
		minRel:       minRel,
		logger:       logging.GetLogger("investigation.knowledge"),
		seenServices: map[string]bool{},
		seenSymptoms: map[string]bool{},
		lastResults:  map[string]Chunk{},
	}
}

// Init builds the in-memory index from source: runbooks, active known
// issues, and postmortems.
func (m *Manager) Init(source Source) error {
	runbooks, err := source.LoadRunbooks()
	if err != nil {
		return err
	}
	issues, err := source.LoadKnownIssues()
	if err != nil {
		return err
	}
	postmortems, err := source.LoadPostmortems()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = m.chunks[:0]
	m.chunks = append(m.chunks, runbooks...)
	for _, i := range issues {
		if i.Active {
			m.chunks = append(m.chunks, i)
		}
	}
	m.chunks = append(m.chunks, postmortems...)
	m.logger.InfoWithFields("knowledge index built", logging.Field("chunks", len(m.chunks)))
	return nil
}

// Query is a stateless, bounded lookup against the index that does not
// touch the seen-facets tracking used by the delta-query methods below. Use
// this for one-off lookups (e.g. per-service knowledge refs) that should
// not perturb the main investigation's retained result set.
func (m *Manager) Query(query string, services, symptoms []string) []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreAndTrimLocked(query, services, symptoms)
}

// QueryForInvestigation is the initial, bounded retrieval for a query and
// optional service filter.
func (m *Manager) QueryForInvestigation(query string, services []string) []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := m.scoreAndTrimLocked(query, services, nil)
	m.lastResults = indexByID(results)
	for _, s := range services {
		m.seenServices[strings.ToLower(s)] = true
	}
	return results
}

// QueryForNewServices re-queries only for services not previously seen,
// merges with the retained set, dedupes by id, and re-trims to limits by
// descending score.
func (m *Manager) QueryForNewServices(newServices []string) []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := m.unseenServicesLocked(newServices)
	if len(delta) == 0 {
		return m.currentLocked()
	}
	fresh := m.scoreAndTrimLocked("", delta, nil)
	merged := mergeAndRetrim(m.lastResults, fresh, m.limits)
	m.lastResults = indexByID(merged)
	for _, s := range delta {
		m.seenServices[strings.ToLower(s)] = true
	}
	return merged
}

// QueryForNewSymptoms is QueryForNewServices' symmetric counterpart for
// symptom facets.
func (m *Manager) QueryForNewSymptoms(newSymptoms []string) []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := m.unseenSymptomsLocked(newSymptoms)
	if len(delta) == 0 {
		return m.currentLocked()
	}
	fresh := m.scoreAndTrimLocked("", nil, delta)
	merged := mergeAndRetrim(m.lastResults, fresh, m.limits)
	m.lastResults = indexByID(merged)
	for _, s := range delta {
		m.seenSymptoms[strings.ToLower(s)] = true
	}
	return merged
}

// UpdateFromInvestigationState computes the service/symptom deltas against
// prevServices/prevSymptoms and issues the corresponding delta queries.
func (m *Manager) UpdateFromInvestigationState(state InvestigationState, prevServices, prevSymptoms []string) []Chunk {
	newServices := diff(state.ServicesDiscovered, prevServices)
	newSymptoms := diff(state.Symptoms, prevSymptoms)

	var results []Chunk
	if len(newServices) > 0 {
		results = m.QueryForNewServices(newServices)
	}
	if len(newSymptoms) > 0 {
		results = m.QueryForNewSymptoms(newSymptoms)
	}
	if results == nil {
		m.mu.Lock()
		results = m.currentLocked()
		m.mu.Unlock()
	}
	return results
}

func diff(current, prev []string) []string {
	prevSet := map[string]bool{}
	for _, p := range prev {
		prevSet[strings.ToLower(p)] = true
	}
	var out []string
	for _, c := range current {
		if !prevSet[strings.ToLower(c)] {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) unseenServicesLocked(services []string) []string {
	var out []string
	for _, s := range services {
		if !m.seenServices[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) unseenSymptomsLocked(symptoms []string) []string {
	var out []string
	for _, s := range symptoms {
		if !m.seenSymptoms[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) currentLocked() []Chunk {
	out := make([]Chunk, 0, len(m.lastResults))
	for _, c := range m.lastResults {
		out = append(out, c)
	}
	sortByScoreDesc(out)
	return out
}

// scoreAndTrimLocked scores every indexed chunk against query/services/symptoms,
// drops anything below minRel, sorts descending, and trims to per-type limits.
func (m *Manager) scoreAndTrimLocked(query string, services, symptoms []string) []Chunk {
	scored := make([]Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		score := relevance(c, query, services, symptoms)
		if score >= m.minRel {
			scored = append(scored, Chunk{RawChunk: c, Score: score})
		}
	}
	sortByScoreDesc(scored)
	return trimByType(scored, m.limits)
}

// sortByScoreDesc orders by descending score, breaking ties by ID so the
// result is deterministic regardless of map-iteration order upstream.
func sortByScoreDesc(chunks []Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ID < chunks[j].ID
	})
}

func trimByType(scored []Chunk, limits PerTypeLimits) []Chunk {
	counts := map[ChunkType]int{}
	limitFor := func(t ChunkType) int {
		switch t {
		case ChunkRunbook:
			return limits.Runbooks
		case ChunkKnownIssue:
			return limits.KnownIssues
		case ChunkPostmortem:
			return limits.Postmortems
		default:
			return 0
		}
	}

	out := make([]Chunk, 0, len(scored))
	for _, c := range scored {
		if counts[c.Type] >= limitFor(c.Type) {
			continue
		}
		counts[c.Type]++
		out = append(out, c)
	}
	return out
}

func relevance(c RawChunk, query string, services, symptoms []string) float64 {
	haystack := strings.ToLower(c.Content + " " + strings.Join(c.Services, " ") + " " + strings.Join(c.Symptoms, " ") + " " + c.RootCause)

	tokens := tokenize(query)
	for _, s := range services {
		tokens = append(tokens, strings.ToLower(s))
	}
	for _, s := range symptoms {
		tokens = append(tokens, strings.ToLower(s))
	}
	if len(tokens) == 0 {
		return 0
	}

	hits := 0
	for _, t := range tokens {
		if t != "" && strings.Contains(haystack, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func indexByID(chunks []Chunk) map[string]Chunk {
	out := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out
}

func mergeAndRetrim(existing map[string]Chunk, fresh []Chunk, limits PerTypeLimits) []Chunk {
	merged := make(map[string]Chunk, len(existing)+len(fresh))
	for chunkID, c := range existing {
		merged[chunkID] = c
	}
	for _, c := range fresh {
		merged[c.ID] = c
	}

	all := make([]Chunk, 0, len(merged))
	for _, c := range merged {
		all = append(all, c)
	}
	sortByScoreDesc(all)
	return trimByType(all, limits)
}
