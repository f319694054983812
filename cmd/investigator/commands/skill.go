package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage and run remediation skill recipes",
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded skill recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		recipes := e.skills.List()
		if len(recipes) == 0 {
			fmt.Fprintln(os.Stdout, "no recipes loaded")
			return nil
		}
		for _, rec := range recipes {
			fmt.Fprintf(os.Stdout, "%s\t%s\t(%d steps, triggers: %v)\n", rec.Name, rec.Description, len(rec.Steps), rec.Triggers)
		}
		return nil
	},
}

var skillRunCmd = &cobra.Command{
	Use:   "run [recipe-name]",
	Short: "Run a remediation skill recipe by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if _, ok := e.skills.Get(args[0]); !ok {
			return fmt.Errorf("unknown recipe %q", args[0])
		}

		result, err := e.skills.Run(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("running recipe %q: %w", args[0], err)
		}
		return json.NewEncoder(os.Stdout).Encode(result)
	},
}

func init() {
	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillRunCmd)
}
