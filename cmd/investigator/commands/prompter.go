package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// stdinPrompter asks the operator a yes/no question on the controlling
// terminal. It is the only interactive approval surface this CLI offers;
// out-of-band channels (Slack, PagerDuty) are wired through the webhook
// command instead.
type stdinPrompter struct{}

func (stdinPrompter) Prompt(question string, requireExactYes bool) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprintf(os.Stderr, "%s ", question)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(line)
	if requireExactYes {
		return answer, nil
	}
	return strings.ToLower(answer), nil
}
