package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moolen/invagent/internal/investigation/engine"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [session-id] [query]",
	Short: "Resume a previously started investigation",
	Long: `resume reopens an investigation's persisted memory and scratchpad by
session ID and continues it against a follow-up query. The hypothesis
frontier itself is not persisted across process restarts, so the resumed
run re-enters at the triage phase with the restored memory/scratchpad
context but an empty hypothesis tree.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, query := args[0], args[1]

		memPath := filepath.Join(appConfig.InvestigationsDir, sessionID+".json")
		if _, err := os.Stat(memPath); err != nil {
			return fmt.Errorf("no investigation memory found for session %q: %w", sessionID, err)
		}

		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		deps, err := e.dependencies()
		if err != nil {
			return err
		}

		cfg := e.engineConfig(sessionID, query)

		sm, err := engine.New(cfg, deps)
		if err != nil {
			return fmt.Errorf("creating state machine: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		result, err := sm.Run(ctx, e.emitter())
		if err != nil {
			return fmt.Errorf("investigation failed: %w", err)
		}

		return json.NewEncoder(os.Stdout).Encode(result)
	},
}
