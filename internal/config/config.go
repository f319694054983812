// Package config holds configuration for the investigation engine: provider
// credentials, on-disk directories, webhook settings, and the tunables that
// the investigation components (compactor presets, hypothesis depth,
// soft caps) read at startup.
package config

import (
	"path/filepath"
	"time"
)

// Config holds all configuration for the investigation engine.
type Config struct {
	// LogLevelFlags are the per-package log level configurations.
	// Format: ["info"], or ["default=info", "engine.hypothesis=debug"].
	LogLevelFlags []string

	// InvestigationsDir is where InvestigationMemory persists session JSON
	// files, named "{sessionId}.json".
	InvestigationsDir string

	// AuditDir holds the approval audit log (approvals.jsonl) and the
	// pending-approval rendezvous files.
	AuditDir string

	// PendingApprovalDir is where ApprovalProtocol writes
	// "{mutationId}_pending.json" and watches for "{mutationId}.json".
	// Defaults to AuditDir/pending when empty. Mirrors the PENDING_DIR
	// environment variable.
	PendingApprovalDir string

	// IntegrationsConfigPath points at the YAML file describing knowledge
	// and infrastructure source instances (see SourcesFile).
	IntegrationsConfigPath string

	// WebhookPort is the port WebhookReceiver listens on. Mirrors the
	// WEBHOOK_PORT environment variable, default 3000.
	WebhookPort int

	// WebhookSigningSecret authenticates signed interactive payloads.
	// Mirrors a "*_SIGNING_SECRET" environment variable.
	WebhookSigningSecret string

	// AnthropicAPIKey authenticates the Anthropic chat-with-tools client.
	// Mirrors ANTHROPIC_API_KEY; absence disables that provider.
	AnthropicAPIKey string

	// AWSRegion is the default region probed by InfraContextMgr when a
	// provider doesn't specify one. Mirrors AWS_REGION, default us-east-1.
	AWSRegion string

	// CompactionPreset selects a named ContextCompactor configuration:
	// "incident", "research", or "balanced" (default).
	CompactionPreset string

	// MaxHypothesisDepth bounds HypothesisNode.depth.
	MaxHypothesisDepth int

	// ToolSoftCap is the default per-tool call count before
	// Scratchpad.canCallTool starts warning.
	ToolSoftCap int

	// InfraMaxConcurrency bounds InfraContextMgr.discover()'s fan-out.
	InfraMaxConcurrency int

	// InfraCacheTTL is how long an infrastructure discovery snapshot is
	// considered fresh.
	InfraCacheTTL time.Duration

	// MaxIterations bounds StateMachine's INVESTIGATE/EVALUATE loop.
	MaxIterations int

	// MaxTriageIterations bounds the TRIAGE phase.
	MaxTriageIterations int

	// ApprovalTimeout bounds how long the out-of-band approval poller
	// waits before expiring a pending mutation.
	ApprovalTimeout time.Duration

	// CriticalCooldown is the minimum interval between critical-risk
	// mutations enforced by ApprovalProtocol.checkCooldown.
	CriticalCooldown time.Duration

	// SessionIndexPath is the sqlite database InvestigationMemory mirrors
	// session summaries into for cross-session querying. The per-session
	// JSON file under InvestigationsDir remains the canonical record;
	// this index is rebuildable from those files and defaults to
	// "{InvestigationsDir}/sessions.db".
	SessionIndexPath string
}

// LoadConfig creates a Config with the provided values, applying defaults
// for anything left at its zero value.
func LoadConfig(
	logLevelFlags []string,
	investigationsDir, auditDir, pendingApprovalDir, integrationsConfigPath string,
	webhookPort int, webhookSigningSecret, anthropicAPIKey, awsRegion, compactionPreset string,
	maxHypothesisDepth, toolSoftCap, infraMaxConcurrency int,
	infraCacheTTL time.Duration,
	maxIterations, maxTriageIterations int,
	approvalTimeout, criticalCooldown time.Duration,
) *Config {
	cfg := &Config{
		LogLevelFlags:           logLevelFlags,
		InvestigationsDir:       investigationsDir,
		AuditDir:                auditDir,
		PendingApprovalDir:      pendingApprovalDir,
		IntegrationsConfigPath:  integrationsConfigPath,
		WebhookPort:             webhookPort,
		WebhookSigningSecret:    webhookSigningSecret,
		AnthropicAPIKey:         anthropicAPIKey,
		AWSRegion:               awsRegion,
		CompactionPreset:        compactionPreset,
		MaxHypothesisDepth:      maxHypothesisDepth,
		ToolSoftCap:             toolSoftCap,
		InfraMaxConcurrency:     infraMaxConcurrency,
		InfraCacheTTL:           infraCacheTTL,
		MaxIterations:           maxIterations,
		MaxTriageIterations:     maxTriageIterations,
		ApprovalTimeout:         approvalTimeout,
		CriticalCooldown:        criticalCooldown,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.InvestigationsDir == "" {
		c.InvestigationsDir = "./data/investigations"
	}
	if c.AuditDir == "" {
		c.AuditDir = "./data/audit"
	}
	if c.PendingApprovalDir == "" {
		c.PendingApprovalDir = c.AuditDir + "/pending"
	}
	if c.WebhookPort == 0 {
		c.WebhookPort = 3000
	}
	if c.AWSRegion == "" {
		c.AWSRegion = "us-east-1"
	}
	if c.CompactionPreset == "" {
		c.CompactionPreset = "balanced"
	}
	if c.MaxHypothesisDepth == 0 {
		c.MaxHypothesisDepth = 4
	}
	if c.ToolSoftCap == 0 {
		c.ToolSoftCap = 3
	}
	if c.InfraMaxConcurrency == 0 {
		c.InfraMaxConcurrency = 8
	}
	if c.InfraCacheTTL == 0 {
		c.InfraCacheTTL = 2 * time.Minute
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 12
	}
	if c.MaxTriageIterations == 0 {
		c.MaxTriageIterations = 2
	}
	if c.ApprovalTimeout == 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
	if c.CriticalCooldown == 0 {
		c.CriticalCooldown = 10 * time.Minute
	}
	if c.SessionIndexPath == "" {
		c.SessionIndexPath = filepath.Join(c.InvestigationsDir, "sessions.db")
	}
}

// Validate checks that the configuration is structurally sound. Missing
// provider credentials are not validation errors: absence of *_API_KEY /
// *_SIGNING_SECRET is treated as a non-error that disables the
// corresponding provider.
func (c *Config) Validate() error {
	if c.WebhookPort < 1 || c.WebhookPort > 65535 {
		return NewConfigError("WebhookPort must be between 1 and 65535")
	}
	if c.MaxHypothesisDepth < 1 {
		return NewConfigError("MaxHypothesisDepth must be at least 1")
	}
	if c.ToolSoftCap < 1 {
		return NewConfigError("ToolSoftCap must be at least 1")
	}
	if c.InfraMaxConcurrency < 1 {
		return NewConfigError("InfraMaxConcurrency must be at least 1")
	}
	if c.MaxIterations < 1 {
		return NewConfigError("MaxIterations must be at least 1")
	}
	switch c.CompactionPreset {
	case "incident", "research", "balanced":
	default:
		return NewConfigError("CompactionPreset must be one of incident, research, balanced")
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}
