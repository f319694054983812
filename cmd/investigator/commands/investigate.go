package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moolen/invagent/internal/ids"
	"github.com/moolen/invagent/internal/investigation/engine"
)

var investigateCmd = &cobra.Command{
	Use:   "investigate [query]",
	Short: "Start a new incident investigation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(appConfig.InvestigationsDir, 0o755); err != nil {
			return fmt.Errorf("creating investigations dir: %w", err)
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

		sessionID := ids.NewSessionID()
		cfg := e.engineConfig(sessionID, args[0])

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

		fmt.Fprintf(os.Stderr, "\nsession: %s\n", sessionID)
		return json.NewEncoder(os.Stdout).Encode(result)
	},
}

// emitter renders one engine.Event to stderr so a human tailing the
// command can follow along while the investigation runs, and records the
// subset of events that carry enough information into e.metrics. The
// machine-readable Result still goes to stdout once Run returns.
func (e *env) emitter() engine.Emitter {
	return func(ev engine.Event) {
		switch ev.Type {
		case engine.EventThinking:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Phase, ev.Text)
		case engine.EventToolStart:
			fmt.Fprintf(os.Stderr, "[%s] -> %s %v\n", ev.Phase, ev.Tool, ev.Args)
		case engine.EventToolEnd:
			fmt.Fprintf(os.Stderr, "[%s] <- %s (result %s)\n", ev.Phase, ev.Tool, ev.ResultID)
			e.metrics.ToolCallsTotal.WithLabelValues(ev.Tool, "success").Inc()
		case engine.EventToolError:
			fmt.Fprintf(os.Stderr, "[%s] !! %s: %s\n", ev.Phase, ev.Tool, ev.Error)
			e.metrics.ToolCallsTotal.WithLabelValues(ev.Tool, "error").Inc()
		case engine.EventToolLimit:
			fmt.Fprintf(os.Stderr, "[%s] tool call budget exhausted (%d)\n", ev.Phase, ev.Count)
		case engine.EventContextCleared:
			fmt.Fprintf(os.Stderr, "[%s] context compacted: %s\n", ev.Phase, ev.Warning)
			e.metrics.CompactionsTotal.Inc()
		case engine.EventKnowledgeRetrieved:
			fmt.Fprintf(os.Stderr, "[%s] retrieved %d knowledge chunks\n", ev.Phase, ev.Count)
		case engine.EventAnswerStart:
			fmt.Fprintln(os.Stderr, "--- answer ---")
		case engine.EventDone:
			fmt.Fprintln(os.Stderr, "--- done ---")
		case engine.EventCancelled:
			fmt.Fprintln(os.Stderr, "--- cancelled ---")
		}
	}
}
