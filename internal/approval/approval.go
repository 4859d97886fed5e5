// Package approval asks a human to confirm an operation that needs one.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// UserAction values, recorded in the audit reasons.
const (
	ActionApproveOnce    = "approve_once"
	ActionDeny           = "deny"
	ActionNonInteractive = "auto_deny_non_interactive"
	ActionReadError      = "error_reading_input"
)

type Result struct {
	Approved   bool
	UserAction string
}

type Prompt struct {
	// Subject is what would run or be written: a command line or a patch
	// summary.
	Subject        string
	TriggeredRules []string
	Reasons        []string
}

// Approver reads the answer from In and writes the prompt to Out.
type Approver struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

// New returns an Approver on the process's stdin and stderr.
func New() *Approver {
	return &Approver{In: os.Stdin, Out: os.Stderr, Interactive: IsInteractive}
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Ask prompts until it gets a yes or no. Without a terminal it denies
// without prompting.
func (a *Approver) Ask(p Prompt) Result {
	if a.Interactive != nil && !a.Interactive() {
		return Result{
			Approved:   false,
			UserAction: ActionNonInteractive,
		}
	}

	out := a.Out
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              ⚠️  APPROVAL REQUIRED                            ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Operation: %s\n", p.Subject)
	fmt.Fprintln(out, "")

	if len(p.TriggeredRules) > 0 {
		fmt.Fprintf(out, "Triggered rules: %s\n", strings.Join(p.TriggeredRules, ", "))
	}

	if len(p.Reasons) > 0 {
		fmt.Fprintln(out, "Reasons:")
		for _, reason := range p.Reasons {
			fmt.Fprintf(out, "  • %s\n", reason)
		}
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  [a] Approve once - go ahead this time")
	fmt.Fprintln(out, "  [d] Deny - do nothing")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(a.In)

	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: ActionReadError,
			}
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: ActionApproveOnce,
			}
		case "d", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: ActionDeny,
			}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: ActionReadError}
			}
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
		}
	}
}
