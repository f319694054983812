package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg := LoadConfig(nil, "", "", "", "", 0, "", "", "", "", 0, 0, 0, 0, 0, 0, 0, 0)

	assert.Equal(t, "./data/investigations", cfg.InvestigationsDir)
	assert.Equal(t, "./data/audit", cfg.AuditDir)
	assert.Equal(t, "./data/audit/pending", cfg.PendingApprovalDir)
	assert.Equal(t, 3000, cfg.WebhookPort)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "balanced", cfg.CompactionPreset)
	assert.Equal(t, 4, cfg.MaxHypothesisDepth)
	assert.Equal(t, 3, cfg.ToolSoftCap)
	assert.Equal(t, 8, cfg.InfraMaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.InfraCacheTTL)
	assert.Equal(t, 12, cfg.MaxIterations)
	assert.Equal(t, 2, cfg.MaxTriageIterations)
	assert.Equal(t, 5*time.Minute, cfg.ApprovalTimeout)
	assert.Equal(t, 10*time.Minute, cfg.CriticalCooldown)
	assert.Equal(t, "data/investigations/sessions.db", cfg.SessionIndexPath)
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	cfg := LoadConfig(
		[]string{"debug"}, "/data/inv", "/data/audit", "/data/audit/pending",
		"/etc/sources.yaml", 8080, "secret", "sk-ant-key", "eu-west-1", "incident",
		6, 5, 16, time.Minute, 20, 3, 2*time.Minute, 15*time.Minute,
	)

	assert.Equal(t, "/data/inv", cfg.InvestigationsDir)
	assert.Equal(t, 8080, cfg.WebhookPort)
	assert.Equal(t, "incident", cfg.CompactionPreset)
	assert.Equal(t, 6, cfg.MaxHypothesisDepth)
	assert.Equal(t, 16, cfg.InfraMaxConcurrency)
}

func TestValidateRejectsBadWebhookPort(t *testing.T) {
	cfg := LoadConfig(nil, "", "", "", "", 0, "", "", "", "", 0, 0, 0, 0, 0, 0, 0, 0)
	cfg.WebhookPort = 70000

	err := cfg.Validate()
	require.Error(t, err)
	var cerr *ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestValidateRejectsUnknownCompactionPreset(t *testing.T) {
	cfg := LoadConfig(nil, "", "", "", "", 0, "", "", "", "", 0, 0, 0, 0, 0, 0, 0, 0)
	cfg.CompactionPreset = "bogus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CompactionPreset")
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := LoadConfig(nil, "", "", "", "", 0, "", "", "", "", 0, 0, 0, 0, 0, 0, 0, 0)
	assert.NoError(t, cfg.Validate())
}

func TestConfigErrorMessage(t *testing.T) {
	err := NewConfigError("boom")
	assert.Equal(t, "boom", err.Error())
}
