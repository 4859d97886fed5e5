package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/lca/internal/approval"
	"github.com/gzhole/lca/internal/logger"
	"github.com/gzhole/lca/internal/patch"
)

var (
	patchDryRun bool
	patchYes    bool
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Validate and apply unified diffs",
	Long: `Apply unified diffs to files inside the workspace. Every hunk must match
the file exactly; if any file in the patch does not apply, nothing is
written.

Examples:
  lca patch check fix.diff          # Report what would happen
  lca patch apply fix.diff          # Preview, confirm, then write
  git diff | lca patch apply --yes -   # Read the patch from stdin`,
}

var patchApplyCmd = &cobra.Command{
	Use:   "apply [flags] <file|->",
	Short: "Apply a patch, all files or none",
	Long: `Validate a patch against the workspace and write it. The patch is
previewed first and applied only after confirmation; --yes (or
AGENT_NONINTERACTIVE_OVERRIDE=1) skips the prompt. With --dry-run nothing
is written.

Exit status: 0 applied, 4 conflict, 2 denied, 1 malformed patch or I/O error.`,
	Args: cobra.ExactArgs(1),
	RunE: patchApply,
}

var patchCheckCmd = &cobra.Command{
	Use:   "check <file|->",
	Short: "Report whether a patch would apply",
	Long: `Parse a patch and validate it against the workspace without writing or
logging anything.

Exit status: 0 would apply, 4 conflict, 1 malformed patch.`,
	Args: cobra.ExactArgs(1),
	RunE: patchCheck,
}

func init() {
	patchApplyCmd.Flags().BoolVar(&patchDryRun, "dry-run", false, "Validate and report without writing")
	patchApplyCmd.Flags().BoolVarP(&patchYes, "yes", "y", false, "Skip confirmation")
	patchCmd.AddCommand(patchApplyCmd)
	patchCmd.AddCommand(patchCheckCmd)
	rootCmd.AddCommand(patchCmd)
}

func patchApply(cmd *cobra.Command, args []string) (err error) {
	start := time.Now()
	text, err := readPatch(cmd, args[0])
	if err != nil {
		return err
	}

	s, err := loadSession(0, patchYes)
	if err != nil {
		return err
	}
	if err := s.openAudit(); err != nil {
		return err
	}
	defer closeSession(s, &err)

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	set, err := patch.Parse(text)
	if err != nil {
		logPatchRecord(s, stderr, start, logger.Record{
			Level:   logger.LevelWarn,
			Summary: "malformed patch",
			Outcome: "unparseable",
			Error:   err.Error(),
		})
		return &ExitError{Code: ExitFailure, Err: err}
	}

	applier := patch.NewApplier(s.guard, s.audit)
	if patchDryRun {
		res, err := applier.Apply(set, patch.DryRun)
		return reportPatch(stdout, stderr, res, err)
	}

	// The preview is not logged; the commit below writes the one record.
	preview, err := patch.NewApplier(s.guard, nil).Apply(set, patch.DryRun)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	if preview.Applied && !s.cfg.NonInteractiveOverride {
		printSummary(stderr, set)
		result := newApprover().Ask(approval.Prompt{
			Subject:        fmt.Sprintf("apply patch to %s", strings.Join(set.Files(), ", ")),
			TriggeredRules: []string{"patch-apply"},
			Reasons:        []string{fmt.Sprintf("writes %d file(s) in %s", len(set.Files()), s.guard.Root())},
		})
		if !result.Approved {
			fmt.Fprintln(stderr, "\n❌ Patch application cancelled")
			logPatchRecord(s, stderr, start, logger.Record{
				Summary: fmt.Sprintf("commit %d file(s): %s", len(set.Files()), strings.Join(set.Files(), ", ")),
				Outcome: "denied",
				Files:   set.Files(),
				Reasons: []string{"user_action: " + result.UserAction},
			})
			return exitWith(ExitBlocked)
		}
	}

	res, err := applier.Apply(set, patch.Commit)
	return reportPatch(stdout, stderr, res, err)
}

func patchCheck(cmd *cobra.Command, args []string) error {
	text, err := readPatch(cmd, args[0])
	if err != nil {
		return err
	}
	set, err := patch.Parse(text)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	s, err := loadSession(0, false)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), set)
	res, err := patch.NewApplier(s.guard, nil).Apply(set, patch.DryRun)
	return reportPatch(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, err)
}

// readPatch reads the named file, or stdin for "-".
func readPatch(cmd *cobra.Command, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read patch: %w", err)
	}
	return string(data), nil
}

func printSummary(w io.Writer, set *patch.PatchSet) {
	fmt.Fprintln(w, "Patch summary:")
	for _, g := range set.Groups {
		action := "modify"
		switch {
		case g.IsCreate():
			action = "create"
		case g.IsDelete():
			action = "delete"
		}
		fmt.Fprintf(w, "  %-6s %s (%d hunk(s))\n", action, g.Path, len(g.Hunks))
	}
}

// reportPatch prints one line per group and turns the result into an exit
// status.
func reportPatch(stdout, stderr io.Writer, res *patch.Result, err error) error {
	if res == nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	for _, g := range res.Groups {
		fmt.Fprintf(stdout, "%s %s\n", outcomeIcon(string(g.Outcome)), g)
	}
	if err != nil {
		// The files are written; only the audit record failed.
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
	if !res.Applied {
		if len(res.Conflicts()) > 0 {
			fmt.Fprintf(stderr, "\n%d conflict(s); nothing was written\n", len(res.Conflicts()))
		}
		return exitWith(ExitConflict)
	}
	if res.Mode == patch.DryRun {
		fmt.Fprintln(stdout, "\nDry run: no files were changed")
	}
	return nil
}

// logPatchRecord writes an audit record for a patch that never reached
// the applier.
func logPatchRecord(s *session, stderr io.Writer, start time.Time, rec logger.Record) {
	rec.Kind = logger.KindPatch
	rec.DurationMs = time.Since(start).Milliseconds()
	if err := s.audit.Log(rec); err != nil {
		fmt.Fprintf(stderr, "warning: failed to write audit log: %v\n", err)
	}
}
