package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	workDir    string
	policyPath string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "lca",
	Short: "lca - safety and patch layer for a local coding agent",
	Long: `lca lets an operator or an LLM run commands and apply patches inside a
single workspace directory. Commands run as plain argument vectors, never
through a shell, and only when the allow-list admits them. Patches are
validated line by line and written all at once or not at all.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "Workspace root (default: $AGENT_WORKDIR or the current directory)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to policy YAML file (default: <workdir>/.agent/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Audit log directory (default: <workdir>/.agent/logs)")
}

// Execute runs the command line and returns the process exit code. Errors
// are printed here, after every deferred Close in the commands has run.
func Execute() int {
	return exitCode(rootCmd.Execute(), os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}
