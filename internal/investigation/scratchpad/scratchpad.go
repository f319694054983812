package scratchpad

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/ids"
	"github.com/moolen/invagent/internal/logging"
)

// toolCallRecord tracks, per tool, how many times it has been called and
// the normalized queries used, for soft-cap and near-duplicate warnings.
type toolCallRecord struct {
	count   int
	queries []map[string]bool // token sets, one per prior call
}

// Scratchpad is the append-only, tiered-in-memory record of one
// investigation's tool activity.
type Scratchpad struct {
	mu sync.Mutex

	sessionID string
	file      *os.File
	writer    *bufio.Writer
	logger    *logging.Logger

	softCap int

	results map[string]*StoredResult
	order   []string // resultId insertion order, for deterministic rendering
	calls   map[string]*toolCallRecord
}

// Config configures a new Scratchpad.
type Config struct {
	SessionID string
	LogPath   string
	SoftCap   int // per-tool soft usage cap before warnings are emitted
}

// New creates a Scratchpad backed by the JSON-lines file at cfg.LogPath. If
// the file already exists, its contents are replayed to rebuild the
// in-memory index with every result restored to tier full (compaction
// re-runs lazily on the next iteration).
func New(cfg Config) (*Scratchpad, error) {
	if cfg.SoftCap <= 0 {
		cfg.SoftCap = 3
	}

	sp := &Scratchpad{
		sessionID: cfg.SessionID,
		logger:    logging.GetLogger("investigation.scratchpad"),
		softCap:   cfg.SoftCap,
		results:   make(map[string]*StoredResult),
		calls:     make(map[string]*toolCallRecord),
	}

	if err := sp.replay(cfg.LogPath); err != nil {
		return nil, err
	}

	// #nosec G304 -- LogPath is operator configuration, not user input.
	file, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening scratchpad log %s: %w", cfg.LogPath, err)
	}
	sp.file = file
	sp.writer = bufio.NewWriter(file)

	return sp, nil
}

// replay rebuilds in-memory state from an existing log, if present. A
// missing file is not an error — it means this is a fresh investigation.
func (sp *Scratchpad) replay(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator configuration path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading scratchpad log %s: %w", path, err)
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			sp.logger.WarnWithFields("skipping malformed scratchpad log line", logging.Field("error", err.Error()))
			continue
		}
		if entry.Type != EntryToolResult {
			continue
		}
		sp.replayToolResult(entry)
	}
	return nil
}

func (sp *Scratchpad) replayToolResult(entry Entry) {
	var summary CompactSummary
	if raw, ok := entry.Result.(map[string]interface{}); ok {
		if sv, ok := raw["summary"]; ok {
			if b, err := json.Marshal(sv); err == nil {
				_ = json.Unmarshal(b, &summary)
			}
		}
	}
	sr := &StoredResult{
		ResultID:   entry.ResultID,
		ToolName:   entry.Tool,
		Args:       entry.Args,
		Result:     entry.Result,
		DurationMs: entry.DurationMs,
		Timestamp:  entry.Timestamp,
		Summary:    summary,
		Tier:       TierFull,
	}
	sp.results[sr.ResultID] = sr
	sp.order = append(sp.order, sr.ResultID)
	sp.recordCall(sr.ToolName, entry.Args)
}

// Append writes a non-tool-result entry (init, thinking, phase_transition)
// to the durable log. I/O errors are surfaced; the caller's in-memory state
// (tracked elsewhere) is unaffected so the investigation can continue.
func (sp *Scratchpad) Append(entry Entry) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	entry.SessionID = sp.sessionID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return sp.writeLocked(entry)
}

// AppendToolResult records a completed tool call, assigns it a resultId,
// sets its TierState to full, and tracks tool usage for CanCallTool.
func (sp *Scratchpad) AppendToolResult(tool string, args map[string]interface{}, result interface{}, durationMs int64, summary CompactSummary) (string, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	resultID := ids.NewResultID()
	now := time.Now().UTC()

	sr := &StoredResult{
		ResultID:   resultID,
		ToolName:   tool,
		Args:       args,
		Result:     result,
		DurationMs: durationMs,
		Timestamp:  now,
		Summary:    summary,
		Tier:       TierFull,
	}
	sp.results[resultID] = sr
	sp.order = append(sp.order, resultID)
	sp.recordCall(tool, args)

	entry := Entry{
		Type:       EntryToolResult,
		Timestamp:  now,
		SessionID:  sp.sessionID,
		ResultID:   resultID,
		Tool:       tool,
		Args:       args,
		DurationMs: durationMs,
		Result: map[string]interface{}{
			"payload": result,
			"summary": summary,
		},
	}
	if err := sp.writeLocked(entry); err != nil {
		return resultID, err
	}
	return resultID, nil
}

func (sp *Scratchpad) recordCall(tool string, args map[string]interface{}) {
	rec, ok := sp.calls[tool]
	if !ok {
		rec = &toolCallRecord{}
		sp.calls[tool] = rec
	}
	rec.count++
	rec.queries = append(rec.queries, tokenSet(serializeArgs(args)))
}

// CanCallTool reports whether calling tool is allowed (always true — the
// cap is graceful, never a hard block) and, when warranted, a warning
// describing why the caller should reconsider.
func (sp *Scratchpad) CanCallTool(tool string, query string) CanCallResult {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	rec, ok := sp.calls[tool]
	if !ok {
		return CanCallResult{Allowed: true}
	}

	warnings := []string{}
	if rec.count >= sp.softCap {
		warnings = append(warnings, fmt.Sprintf("tool %q called %d/%d times this session", tool, rec.count, sp.softCap))
	} else if rec.count == sp.softCap-1 {
		warnings = append(warnings, fmt.Sprintf("tool %q approaching soft cap (%d/%d)", tool, rec.count, sp.softCap))
	}

	if query != "" {
		qTokens := tokenSet(query)
		for _, prior := range rec.queries {
			if jaccard(qTokens, prior) >= 0.8 {
				warnings = append(warnings, fmt.Sprintf("query for tool %q is near-identical to a prior call (jaccard >= 0.8)", tool))
				break
			}
		}
	}

	return CanCallResult{Allowed: true, Warning: strings.Join(warnings, "; ")}
}

// ApplyCompactionPlan moves each referenced result to the tier assigned by
// plan. Cleared results remain retrievable via GetResultByID; only their
// Tier changes.
func (sp *Scratchpad) ApplyCompactionPlan(plan CompactionPlan) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	apply := func(ids []string, tier Tier) {
		for _, id := range ids {
			if sr, ok := sp.results[id]; ok {
				sr.Tier = tier
			}
		}
	}
	apply(plan.Full, TierFull)
	apply(plan.Compact, TierCompact)
	apply(plan.Cleared, TierCleared)
}

// GetResultByID returns the archived full result regardless of tier.
func (sp *Scratchpad) GetResultByID(id string) (*StoredResult, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sr, ok := sp.results[id]
	if !ok {
		return nil, &NotFoundError{ResultID: id}
	}
	return sr, nil
}

// charsPerToken is a rough English-text heuristic; good enough to decide
// when to compact, not meant to match any specific tokenizer.
const charsPerToken = 4

// TokenEstimate approximates the context cost of rendering the current
// tiered view (BuildTieredContext), used to decide whether compaction is
// due this iteration.
func (sp *Scratchpad) TokenEstimate() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	chars := 0
	for _, id := range sp.order {
		sr := sp.results[id]
		switch sr.Tier {
		case TierFull:
			raw, _ := json.Marshal(sr.Result)
			chars += len(raw)
		case TierCompact:
			chars += len(sr.Summary.ShortText)
		}
	}
	return chars / charsPerToken
}

// All returns every stored result in append order, for ContextCompactor
// scoring.
func (sp *Scratchpad) All() []*StoredResult {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	out := make([]*StoredResult, 0, len(sp.order))
	for _, id := range sp.order {
		out = append(out, sp.results[id])
	}
	return out
}

// BuildTieredContext renders full results in full, compact results as
// one-line summaries keyed by resultId, and a count of cleared results
// with an explicit instruction to retrieve them by id if needed.
func (sp *Scratchpad) BuildTieredContext() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	var b strings.Builder
	clearedCount := 0
	for _, id := range sp.order {
		sr := sp.results[id]
		switch sr.Tier {
		case TierFull:
			raw, _ := json.Marshal(sr.Result)
			fmt.Fprintf(&b, "[%s] %s (full):\n%s\n\n", sr.ResultID, sr.ToolName, string(raw))
		case TierCompact:
			fmt.Fprintf(&b, "[%s] %s: %s\n", sr.ResultID, sr.ToolName, sr.Summary.ShortText)
		case TierCleared:
			clearedCount++
		}
	}
	if clearedCount > 0 {
		fmt.Fprintf(&b, "\n%d older results cleared from context; retrieve by resultId if needed.\n", clearedCount)
	}
	return b.String()
}

func (sp *Scratchpad) writeLocked(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling scratchpad entry: %w", err)
	}
	if _, err := sp.writer.Write(data); err != nil {
		return fmt.Errorf("writing scratchpad entry: %w", err)
	}
	if _, err := sp.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("writing scratchpad newline: %w", err)
	}
	if err := sp.writer.Flush(); err != nil {
		return fmt.Errorf("flushing scratchpad log: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying log file.
func (sp *Scratchpad) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if err := sp.writer.Flush(); err != nil {
		return err
	}
	return sp.file.Close()
}

func serializeArgs(args map[string]interface{}) string {
	raw, _ := json.Marshal(args)
	return string(raw)
}

func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 0 {
			set[f] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
