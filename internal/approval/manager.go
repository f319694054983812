package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moolen/invagent/internal/logging"
)

const pendingPollInterval = 2 * time.Second

// Manager mediates mutation approval: auto-approve, out-of-band dispatch
// with filesystem-rendezvous polling, or an interactive terminal prompt.
// Every decision is appended to an approvals.jsonl audit log.
type Manager struct {
	pendingDir string

	auditMu     sync.Mutex
	auditFile   *os.File
	auditWriter *bufio.Writer

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time // operation -> last critical-risk mutation time

	pollInterval time.Duration

	channel  OutOfBandChannel
	prompter Prompter
	logger   *logging.Logger
}

// Config configures a new Manager.
type Config struct {
	PendingDir   string // directory for {mutationId}_pending.json / {mutationId}.json rendezvous
	AuditPath    string // path to approvals.jsonl
	Channel      OutOfBandChannel
	Prompter     Prompter
	PollInterval time.Duration // zero uses pendingPollInterval (2s)
}

// New creates a Manager, opening (and creating if absent) the audit log.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.PendingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating approval pending dir: %w", err)
	}

	// #nosec G304 -- AuditPath is operator configuration, not user input.
	file, err := os.OpenFile(cfg.AuditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening approval audit log %s: %w", cfg.AuditPath, err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = pendingPollInterval
	}

	logger := logging.GetLogger("approval")
	cooldowns, err := loadCooldowns(cfg.AuditPath, logger)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("reconstructing cooldowns from %s: %w", cfg.AuditPath, err)
	}

	return &Manager{
		pendingDir:   cfg.PendingDir,
		auditFile:    file,
		auditWriter:  bufio.NewWriter(file),
		cooldowns:    cooldowns,
		pollInterval: pollInterval,
		channel:      cfg.Channel,
		prompter:     cfg.Prompter,
		logger:       logger,
	}, nil
}

// loadCooldowns replays an existing approvals.jsonl to rebuild the
// in-memory cooldown map, so a restart doesn't forget a critical-risk
// mutation's cooldown window is still running. Only the latest approved
// critical-risk entry per operation matters, since CheckCooldown only
// ever compares against the most recent one.
func loadCooldowns(auditPath string, logger *logging.Logger) (map[string]time.Time, error) {
	cooldowns := make(map[string]time.Time)

	// #nosec G304 -- auditPath is operator configuration, not user input.
	file, err := os.Open(auditPath)
	if os.IsNotExist(err) {
		return cooldowns, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.WarnWithFields("skipping malformed approval audit line", logging.Field("error", err.Error()))
			continue
		}
		if entry.RiskLevel != RiskCritical || !entry.Approved {
			continue
		}
		if last, ok := cooldowns[entry.Operation]; !ok || entry.Timestamp.After(last) {
			cooldowns[entry.Operation] = entry.Timestamp
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cooldowns, nil
}

// Close flushes and closes the audit log.
func (m *Manager) Close() error {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	if err := m.auditWriter.Flush(); err != nil {
		return err
	}
	return m.auditFile.Close()
}

// Approve runs the full approval flow for req and returns the decision.
func (m *Manager) Approve(ctx context.Context, req Request) (Result, error) {
	if req.Risk == RiskCritical {
		if status := m.CheckCooldown(req.Operation, req.CooldownMs); !status.Allowed {
			result := Result{MutationID: req.MutationID, Approved: false, Decision: DecisionRejected, Via: ViaCooldownDeny, DecidedAt: time.Now().UTC()}
			m.appendAudit(req, result)
			return result, nil
		}
	}

	if req.AutoApprove[req.Risk] {
		result := Result{MutationID: req.MutationID, Approved: true, Decision: DecisionApproved, Via: ViaAutoApprove, DecidedAt: time.Now().UTC()}
		m.recordIfCritical(req)
		m.appendAudit(req, result)
		return result, nil
	}

	var result Result
	var err error
	if req.OutOfBand && m.channel != nil {
		result, err = m.outOfBandApprove(ctx, req)
	} else {
		result, err = m.interactiveApprove(req)
	}
	if err != nil {
		return Result{}, err
	}

	if result.Approved {
		m.recordIfCritical(req)
	}
	m.appendAudit(req, result)
	return result, nil
}

func (m *Manager) recordIfCritical(req Request) {
	if req.Risk != RiskCritical {
		return
	}
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	m.cooldowns[req.Operation] = time.Now().UTC()
}

// CheckCooldown reports whether op is currently blocked by a prior
// critical-risk mutation's cooldown window.
func (m *Manager) CheckCooldown(op string, cooldownMs int64) CooldownStatus {
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()

	last, ok := m.cooldowns[op]
	if !ok || cooldownMs <= 0 {
		return CooldownStatus{Allowed: true}
	}
	elapsed := time.Since(last)
	window := time.Duration(cooldownMs) * time.Millisecond
	if elapsed >= window {
		return CooldownStatus{Allowed: true}
	}
	return CooldownStatus{Allowed: false, RemainingMs: int64((window - elapsed) / time.Millisecond)}
}

// outOfBandApprove writes the pending file, dispatches through the
// channel, and races a filesystem poller against an interactive prompt.
func (m *Manager) outOfBandApprove(ctx context.Context, req Request) (Result, error) {
	if err := m.writePending(req); err != nil {
		return Result{}, err
	}
	if err := m.channel.Dispatch(req); err != nil {
		m.logger.WarnWithFields("out-of-band dispatch failed", logging.Field("mutation_id", req.MutationID), logging.Field("error", err.Error()))
	}

	type outcome struct {
		result Result
		err    error
	}
	results := make(chan outcome, 2)

	go func() {
		result, err := m.pollPending(ctx, req)
		results <- outcome{result, err}
	}()
	if m.prompter != nil {
		go func() {
			result, err := m.interactiveApprove(req)
			results <- outcome{result, err}
		}()
	}

	first := <-results
	m.removePending(req.MutationID)
	return first.result, first.err
}

func (m *Manager) pollPending(ctx context.Context, req Request) (Result, error) {
	deadline := time.Now().Add(req.Timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	decisionPath := filepath.Join(m.pendingDir, req.MutationID+".json")
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
			if data, err := os.ReadFile(decisionPath); err == nil {
				var df decisionFile
				if err := json.Unmarshal(data, &df); err == nil {
					return Result{
						MutationID: req.MutationID,
						Approved:   df.Approved,
						Decision:   df.Decision,
						Via:        ViaOutOfBand,
						ApprovedBy: df.ApprovedBy,
						DecidedAt:  time.Now().UTC(),
					}, nil
				}
			}
			if time.Now().After(deadline) {
				return Result{
					MutationID: req.MutationID,
					Approved:   false,
					Decision:   DecisionTimeout,
					Via:        ViaOutOfBand,
					DecidedAt:  time.Now().UTC(),
				}, nil
			}
		}
	}
}

func (m *Manager) interactiveApprove(req Request) (Result, error) {
	if m.prompter == nil {
		return Result{
			MutationID: req.MutationID,
			Approved:   false,
			Decision:   DecisionRejected,
			Via:        ViaInteractive,
			DecidedAt:  time.Now().UTC(),
		}, nil
	}

	requireExactYes := req.Risk == RiskCritical
	question := fmt.Sprintf("Approve %s on %s (risk: %s)?", req.Operation, req.Resource, req.Risk)
	answer, err := m.prompter.Prompt(question, requireExactYes)
	if err != nil {
		return Result{}, err
	}

	approved := isApproval(answer, requireExactYes)
	decision := DecisionRejected
	if approved {
		decision = DecisionApproved
	}
	return Result{
		MutationID: req.MutationID,
		Approved:   approved,
		Decision:   decision,
		Via:        ViaInteractive,
		DecidedAt:  time.Now().UTC(),
	}, nil
}

func isApproval(answer string, requireExactYes bool) bool {
	trimmed := strings.TrimSpace(answer)
	if requireExactYes {
		return trimmed == "yes"
	}
	lower := strings.ToLower(trimmed)
	return lower == "y" || lower == "yes"
}

func (m *Manager) writePending(req Request) error {
	pf := pendingFile{MutationID: req.MutationID, Operation: req.Operation, Resource: req.Resource, RiskLevel: req.Risk, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(pf)
	if err != nil {
		return err
	}
	path := filepath.Join(m.pendingDir, req.MutationID+"_pending.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (m *Manager) removePending(mutationID string) {
	_ = os.Remove(filepath.Join(m.pendingDir, mutationID+"_pending.json"))
}

func (m *Manager) appendAudit(req Request, result Result) {
	entry := AuditEntry{
		Timestamp:  result.DecidedAt,
		MutationID: req.MutationID,
		Operation:  req.Operation,
		Resource:   req.Resource,
		RiskLevel:  req.Risk,
		Approved:   result.Approved,
		ApprovedBy: result.ApprovedBy,
	}

	m.auditMu.Lock()
	defer m.auditMu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		m.logger.ErrorWithFields("failed to marshal approval audit entry", logging.Field("error", err.Error()))
		return
	}
	if _, err := m.auditWriter.Write(data); err != nil {
		m.logger.ErrorWithFields("failed to write approval audit entry", logging.Field("error", err.Error()))
		return
	}
	if _, err := m.auditWriter.WriteString("\n"); err != nil {
		return
	}
	if err := m.auditWriter.Flush(); err != nil {
		m.logger.ErrorWithFields("failed to flush approval audit log", logging.Field("error", err.Error()))
	}
}

// CleanupExpiredApprovals removes pending/decision files older than maxAge
// from the pending directory.
func (m *Manager) CleanupExpiredApprovals(maxAge time.Duration) error {
	entries, err := os.ReadDir(m.pendingDir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(m.pendingDir, e.Name()))
		}
	}
	return nil
}
