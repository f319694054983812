// Package knowledge keeps a small, ranked set of relevant knowledge chunks
// (runbooks, known issues, postmortems) in memory, refreshing only for
// facets the investigation has newly discovered.
package knowledge

// ChunkType classifies a knowledge chunk.
type ChunkType string

const (
	ChunkRunbook     ChunkType = "runbook"
	ChunkKnownIssue  ChunkType = "known_issue"
	ChunkPostmortem  ChunkType = "postmortem"
)

// RawChunk is the source-provided shape, before scoring.
type RawChunk struct {
	ID        string
	Type      ChunkType
	Services  []string
	Symptoms  []string
	Content   string
	RootCause string // postmortems only
	Active    bool   // known issues only; inactive issues are excluded at index time
}

// Chunk is a RawChunk plus its relevance score against the last query that
// retrieved it.
type Chunk struct {
	RawChunk
	Score float64
}

// Source supplies the raw knowledge corpus at init time. Implementations
// might read from a file, a vector store, or a static embedded catalog.
type Source interface {
	LoadRunbooks() ([]RawChunk, error)
	LoadKnownIssues() ([]RawChunk, error)
	LoadPostmortems() ([]RawChunk, error)
}

// PerTypeLimits bounds how many chunks of each type a query may return.
type PerTypeLimits struct {
	Runbooks    int
	KnownIssues int
	Postmortems int
}

// DefaultPerTypeLimits keeps each query small enough to not dominate the
// prompt budget.
var DefaultPerTypeLimits = PerTypeLimits{Runbooks: 3, KnownIssues: 3, Postmortems: 2}

// DefaultMinRelevance is the minimum score a chunk needs to be returned.
const DefaultMinRelevance = 0.15

// InvestigationState is the minimal view of investigation state
// updateFromInvestigationState needs, kept decoupled from the memory and
// servicegraph packages.
type InvestigationState struct {
	Query              string
	ServicesDiscovered []string
	Symptoms           []string
}
