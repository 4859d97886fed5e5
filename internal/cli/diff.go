package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/lca/internal/patch"
	"github.com/gzhole/lca/internal/pathguard"
)

var diffOutput string

var diffCmd = &cobra.Command{
	Use:   "diff <old> <new>",
	Short: "Write a unified diff between two workspace files",
	Long: `Compare two files inside the workspace and print a unified diff that
lca patch apply accepts. A missing <old> is treated as empty, giving a
creation patch. Nothing is printed when the files are equal.

Examples:
  lca diff main.go main.go.new
  lca diff --output fix.diff notes.txt notes.edited.txt`,
	Args: cobra.ExactArgs(2),
	RunE: diffCommand,
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "", "Write the diff to this workspace file instead of stdout")
	rootCmd.AddCommand(diffCmd)
}

func diffCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession(0, false)
	if err != nil {
		return err
	}

	oldLabel, oldText, err := readForDiff(s.guard, args[0], "a/")
	if err != nil {
		return err
	}
	newLabel, newText, err := readForDiff(s.guard, args[1], "b/")
	if err != nil {
		return err
	}
	if oldLabel == patch.DevNull && newLabel == patch.DevNull {
		return fmt.Errorf("neither %s nor %s exists", args[0], args[1])
	}

	out := patch.Diff(oldLabel, newLabel, oldText, newText)
	if diffOutput == "" {
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	target, err := s.guard.Resolve(diffOutput)
	if err != nil {
		return &ExitError{Code: ExitBlocked, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write diff: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Diff saved to %s\n", diffOutput)
	return nil
}

// readForDiff resolves name inside the workspace and returns its header
// label and content. A file that does not exist reads as empty and is
// labelled /dev/null.
func readForDiff(guard *pathguard.Guard, name, prefix string) (string, string, error) {
	resolved, err := guard.Resolve(name)
	if err != nil {
		return "", "", &ExitError{Code: ExitBlocked, Err: err}
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return patch.DevNull, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	rel, err := guard.Rel(resolved)
	if err != nil {
		return "", "", &ExitError{Code: ExitBlocked, Err: err}
	}
	return prefix + rel, string(data), nil
}
