// Command investigator is the CLI entry point for the incident
// investigation engine: it drives one-shot investigations, resumes a
// previously started one, serves the interactive-approval webhook, and
// runs remediation skill recipes.
package main

import (
	"fmt"
	"os"

	"github.com/moolen/invagent/cmd/investigator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
