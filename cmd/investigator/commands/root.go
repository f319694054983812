package commands

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/invagent/internal/config"
	"github.com/moolen/invagent/internal/logging"
)

const Version = "0.1.0"

var (
	logLevelFlags []string

	investigationsDir      string
	auditDir               string
	pendingApprovalDir     string
	integrationsConfigPath string
	recipesDir             string
	anthropicAPIKey        string
	awsRegion              string
	compactionPreset       string
	webhookPort            int
	webhookSigningSecret   string

	maxHypothesisDepth  int
	toolSoftCap         int
	infraMaxConcurrency int
	infraCacheTTL       time.Duration
	maxIterations       int
	maxTriageIterations int
	approvalTimeout     time.Duration
	criticalCooldown    time.Duration

	// appConfig is built and validated once per invocation, in
	// PersistentPreRunE, from the flags above.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "investigator",
	Short:   "Operator-assisting incident investigation agent",
	Long:    `investigator conducts bounded, research-first, hypothesis-driven incident investigations against heterogeneous observability and infrastructure sources.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLog(); err != nil {
			return err
		}
		appConfig = config.LoadConfig(
			logLevelFlags,
			investigationsDir, auditDir, pendingApprovalDir, integrationsConfigPath,
			webhookPort, webhookSigningSecret, anthropicAPIKey, awsRegion, compactionPreset,
			maxHypothesisDepth, toolSoftCap, infraMaxConcurrency,
			infraCacheTTL,
			maxIterations, maxTriageIterations,
			approvalTimeout, criticalCooldown,
		)
		return appConfig.Validate()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultWebhookPort := 3000
	if p, err := strconv.Atoi(os.Getenv("WEBHOOK_PORT")); err == nil {
		defaultWebhookPort = p
	}

	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", []string{"info"},
		"Log level for packages. Use 'default=level' for the default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level default=info --log-level investigation.hypothesis=debug")
	rootCmd.PersistentFlags().StringVar(&investigationsDir, "investigations-dir", "./data/investigations", "directory for investigation memory/scratchpad files")
	rootCmd.PersistentFlags().StringVar(&auditDir, "audit-dir", "./data/audit", "directory for the approval audit log and pending-approval rendezvous files")
	rootCmd.PersistentFlags().StringVar(&pendingApprovalDir, "pending-dir", os.Getenv("PENDING_DIR"), "pending-approval directory, defaults to PENDING_DIR or {audit-dir}/pending")
	rootCmd.PersistentFlags().StringVar(&integrationsConfigPath, "sources-file", "", "YAML file describing knowledge/infra source instances")
	rootCmd.PersistentFlags().StringVar(&recipesDir, "recipes-dir", "./data/recipes", "directory of skill recipe YAML files")
	rootCmd.PersistentFlags().StringVar(&anthropicAPIKey, "anthropic-api-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key, defaults to ANTHROPIC_API_KEY")
	rootCmd.PersistentFlags().StringVar(&awsRegion, "aws-region", envOr("AWS_REGION", "us-east-1"), "default region probed by infrastructure discovery")
	rootCmd.PersistentFlags().StringVar(&compactionPreset, "compaction-preset", "balanced", "context compactor preset: incident, research, or balanced")
	rootCmd.PersistentFlags().IntVar(&webhookPort, "webhook-port", defaultWebhookPort, "port the interactive-approval webhook listens on, defaults to WEBHOOK_PORT or 3000")
	rootCmd.PersistentFlags().StringVar(&webhookSigningSecret, "webhook-signing-secret", os.Getenv("WEBHOOK_SIGNING_SECRET"), "HMAC secret for verifying signed interaction payloads")
	rootCmd.PersistentFlags().IntVar(&maxHypothesisDepth, "max-hypothesis-depth", 0, "max hypothesis tree depth, defaults to 4")
	rootCmd.PersistentFlags().IntVar(&toolSoftCap, "tool-soft-cap", 0, "per-tool call count before the scratchpad starts warning, defaults to 3")
	rootCmd.PersistentFlags().IntVar(&infraMaxConcurrency, "infra-max-concurrency", 0, "infrastructure discovery fan-out limit, defaults to 8")
	rootCmd.PersistentFlags().DurationVar(&infraCacheTTL, "infra-cache-ttl", 0, "infrastructure discovery cache freshness window, defaults to 2m")
	rootCmd.PersistentFlags().IntVar(&maxIterations, "max-iterations", 0, "max investigate/evaluate loop iterations, defaults to 12")
	rootCmd.PersistentFlags().IntVar(&maxTriageIterations, "max-triage-iterations", 0, "max triage phase iterations, defaults to 2")
	rootCmd.PersistentFlags().DurationVar(&approvalTimeout, "approval-timeout", 0, "out-of-band approval poll timeout, defaults to 5m")
	rootCmd.PersistentFlags().DurationVar(&criticalCooldown, "critical-cooldown", 0, "minimum interval between critical-risk mutations, defaults to 10m")

	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(skillCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupLog() error {
	defaultLevel, packageLevels := parseLogLevelFlags(logLevelFlags)
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags splits "info" / "default=info" / "pkg.sub=debug" flags
// into a default level and a per-package override map.
func parseLogLevelFlags(flags []string) (string, map[string]string) {
	defaultLevel := "info"
	packageLevels := make(map[string]string)
	for _, flag := range flags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) == 1 {
			defaultLevel = parts[0]
			continue
		}
		if parts[0] == "default" {
			defaultLevel = parts[1]
			continue
		}
		packageLevels[parts[0]] = parts[1]
	}
	return defaultLevel, packageLevels
}
