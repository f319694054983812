package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moolen/invagent/internal/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Interactive-approval webhook receiver",
}

var webhookServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the signed interaction callback and health check",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.WebhookSigningSecret == "" {
			return fmt.Errorf("a webhook signing secret is required (--webhook-signing-secret or WEBHOOK_SIGNING_SECRET)")
		}

		if err := os.MkdirAll(appConfig.PendingApprovalDir, 0o755); err != nil {
			return fmt.Errorf("creating pending approval dir: %w", err)
		}

		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		srv := webhook.New(webhook.Config{
			Addr:            fmt.Sprintf(":%d", appConfig.WebhookPort),
			Secret:          appConfig.WebhookSigningSecret,
			PendingDir:      appConfig.PendingApprovalDir,
			MetricsRegistry: e.registry,
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		return srv.Start(ctx)
	},
}

func init() {
	webhookCmd.AddCommand(webhookServeCmd)
}
