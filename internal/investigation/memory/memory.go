package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/logging"
	"github.com/moolen/invagent/internal/store"
)

const schemaVersion = 1

// serviceNamePattern matches kebab-case identifiers likely to name a
// service or resource (e.g. "payments-worker", "checkout-api").
var serviceNamePattern = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:-[a-z0-9]+){1,4}\b`)

// sentencePattern splits reasoning text into rough sentences.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Memory accumulates structured findings for one investigation session and
// persists them to disk after every mutation.
type Memory struct {
	mu      sync.Mutex
	path    string
	lexicon Lexicon
	logger  *logging.Logger
	state   State
	index   *store.Store
	query   string
}

// Config configures a new Memory.
type Config struct {
	SessionID string
	Query     string
	FilePath  string
	Lexicon   Lexicon // zero value falls back to DefaultLexicon

	// Index, when set, receives an UpsertSession call after every
	// persisted mutation, mirroring the session into a queryable sqlite
	// table. The JSON file at FilePath remains canonical; a failed
	// index write is logged and otherwise ignored.
	Index *store.Store
}

// New loads prior state from cfg.FilePath if present, otherwise starts
// empty.
func New(cfg Config) (*Memory, error) {
	lex := cfg.Lexicon
	if lex.RootCause == nil && lex.Symptom == nil && lex.Evidence == nil {
		lex = DefaultLexicon
	}

	m := &Memory{
		path:    cfg.FilePath,
		lexicon: lex,
		logger:  logging.GetLogger("investigation.memory"),
		index:   cfg.Index,
		query:   cfg.Query,
		state: State{
			Version:   schemaVersion,
			SessionID: cfg.SessionID,
		},
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	if m.state.SessionID == "" {
		m.state.SessionID = cfg.SessionID
	}
	return m, nil
}

func (m *Memory) load() error {
	data, err := os.ReadFile(m.path) // #nosec G304 -- operator-configured path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading investigation memory %s: %w", m.path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing investigation memory %s: %w", m.path, err)
	}
	m.state = state
	return nil
}

// persist writes the full state atomically (temp file + rename) so a crash
// mid-write never corrupts the prior good snapshot.
func (m *Memory) persist() error {
	if m.path == "" {
		return nil
	}
	m.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling investigation memory: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing investigation memory temp file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("renaming investigation memory file: %w", err)
	}

	m.indexLocked()
	return nil
}

// indexLocked mirrors the current state into the sqlite session index, if
// one is configured. Indexing failures are logged but never returned: the
// JSON file just written is the record of truth.
func (m *Memory) indexLocked() {
	if m.index == nil {
		return
	}
	outcome := ""
	if m.state.ConfirmedRootCause != "" {
		outcome = "confirmed"
	}
	rec := store.SessionRecord{
		SessionID: m.state.SessionID,
		Query:     m.query,
		Outcome:   outcome,
		RootCause: m.state.ConfirmedRootCause,
		Iteration: m.state.Iteration,
		CreatedAt: m.state.UpdatedAt,
		UpdatedAt: m.state.UpdatedAt,
	}
	if err := m.index.UpsertSession(rec); err != nil {
		m.logger.WarnWithFields("session index update failed", logging.Field("error", err.Error()))
	}
}

func (m *Memory) appendNote(note Note) error {
	note.Timestamp = time.Now().UTC()
	m.state.Notes = append(m.state.Notes, note)
	return m.persist()
}

// AddSymptom records an observed symptom.
func (m *Memory) AddSymptom(content string, services []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendNote(Note{Type: NoteSymptom, Content: content, Services: services})
}

// AddEvidence records evidence tied to a hypothesis.
func (m *Memory) AddEvidence(hypothesisID string, strength EvidenceStrength, content string, sourceResultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendNote(Note{
		Type:           NoteEvidence,
		HypothesisID:   hypothesisID,
		Strength:       strength,
		Content:        content,
		SourceResultID: sourceResultID,
	})
}

// AddHypothesisUpdate records a hypothesis lifecycle transition. Confirming
// a hypothesis populates ConfirmedRootCause with the statement and the
// aggregated content of every strong-evidence note tied to it.
func (m *Memory) AddHypothesisUpdate(hypothesisID, statement string, action HypothesisAction, reasoning string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.appendNote(Note{
		Type:         NoteHypothesisUpdate,
		HypothesisID: hypothesisID,
		Content:      statement,
		Action:       action,
		Reasoning:    reasoning,
	}); err != nil {
		return err
	}

	if action == HypothesisConfirmed {
		m.state.ConfirmedRootCause = m.buildConfirmedRootCauseLocked(hypothesisID, statement)
		return m.persist()
	}
	return nil
}

func (m *Memory) buildConfirmedRootCauseLocked(hypothesisID, statement string) string {
	var b strings.Builder
	b.WriteString(statement)
	for _, n := range m.state.Notes {
		if n.Type == NoteEvidence && n.HypothesisID == hypothesisID && n.Strength == EvidenceStrong {
			b.WriteString(" | ")
			b.WriteString(n.Content)
		}
	}
	return b.String()
}

// AddRootCauseCandidate records a candidate root cause before confirmation.
func (m *Memory) AddRootCauseCandidate(content string, services []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendNote(Note{Type: NoteRootCauseCandidate, Content: content, Services: services})
}

// AddServiceImpact records which services are affected and how.
func (m *Memory) AddServiceImpact(content string, services []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendNote(Note{Type: NoteServiceImpact, Content: content, Services: services})
}

// ExtractFromThinking sentence-splits reasoning text, classifies each
// sentence longer than 15 characters against the configured lexicon, and
// appends a note per classified sentence. resultID, if non-empty, is
// attached as the note's source.
func (m *Memory) ExtractFromThinking(text string, resultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, raw := range sentencePattern.FindAllString(text, -1) {
		sentence := strings.TrimSpace(raw)
		if len(sentence) <= 15 {
			continue
		}

		noteType, ok := classify(sentence, m.lexicon)
		if !ok {
			continue
		}

		services := serviceNamePattern.FindAllString(strings.ToLower(sentence), -1)
		note := Note{
			Type:           noteType,
			Content:        sentence,
			Services:       dedupe(services),
			SourceResultID: resultID,
			Extracted:      true,
		}
		if err := m.appendNote(note); err != nil {
			return err
		}
	}
	return nil
}

func classify(sentence string, lex Lexicon) (NoteType, bool) {
	lower := strings.ToLower(sentence)
	if matchesAny(lower, lex.RootCause) {
		return NoteRootCauseCandidate, true
	}
	if matchesAny(lower, lex.Evidence) {
		return NoteEvidence, true
	}
	if matchesAny(lower, lex.Symptom) {
		return NoteSymptom, true
	}
	return "", false
}

func matchesAny(lower string, buckets map[string][]string) bool {
	for _, keywords := range buckets {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, i := range items {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// AdvanceIteration increments the iteration counter and persists.
func (m *Memory) AdvanceIteration() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Iteration++
	return m.persist()
}

// UpdateProgressSummary overwrites the free-text progress summary.
func (m *Memory) UpdateProgressSummary(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ProgressSummary = text
	return m.persist()
}

// Iteration returns the current iteration count.
func (m *Memory) Iteration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Iteration
}

// ConfirmedRootCause returns the confirmed root cause text, empty if none.
func (m *Memory) ConfirmedRootCause() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ConfirmedRootCause
}

// Notes returns a copy of all recorded notes.
func (m *Memory) Notes() []Note {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Note, len(m.state.Notes))
	copy(out, m.state.Notes)
	return out
}

// BuildContextSummary renders a compact summary for per-iteration prompt
// injection: progress summary, confirmed root cause if any, and the most
// recent notes.
func (m *Memory) BuildContextSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	if m.state.ProgressSummary != "" {
		fmt.Fprintf(&b, "Progress: %s\n", m.state.ProgressSummary)
	}
	if m.state.ConfirmedRootCause != "" {
		fmt.Fprintf(&b, "Confirmed root cause: %s\n", m.state.ConfirmedRootCause)
	}
	recent := m.state.Notes
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for _, n := range recent {
		fmt.Fprintf(&b, "- [%s] %s\n", n.Type, n.Content)
	}
	return b.String()
}

// BuildFinalSummary renders the full concluding report: every note grouped
// by type, plus the confirmed root cause.
func (m *Memory) BuildFinalSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	if m.state.ConfirmedRootCause != "" {
		fmt.Fprintf(&b, "Root cause: %s\n\n", m.state.ConfirmedRootCause)
	} else {
		b.WriteString("Root cause: not confirmed\n\n")
	}

	byType := map[NoteType][]Note{}
	for _, n := range m.state.Notes {
		byType[n.Type] = append(byType[n.Type], n)
	}
	for _, t := range []NoteType{NoteSymptom, NoteServiceImpact, NoteRootCauseCandidate, NoteEvidence, NoteHypothesisUpdate} {
		notes := byType[t]
		if len(notes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", t)
		for _, n := range notes {
			fmt.Fprintf(&b, "  - %s\n", n.Content)
		}
	}
	return b.String()
}
