package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"github.com/gzhole/lca/internal/approval"
	"github.com/gzhole/lca/internal/command"
	"github.com/gzhole/lca/internal/executor"
	"github.com/gzhole/lca/internal/logger"
	"github.com/gzhole/lca/internal/redact"
)

var (
	runYes     bool
	runTimeout time.Duration
)

// newApprover is replaced in tests.
var newApprover = approval.New

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Validate and run a command inside the workspace",
	Long: `Validate a command and, if the allow-list admits it, run it as a plain
argument vector inside the workspace. A single argument is taken as a raw
command string; several arguments are quoted and joined first.

Commands that need confirmation prompt on a terminal and are denied
otherwise. --yes (or AGENT_NONINTERACTIVE_OVERRIDE=1) skips the prompt for
routine confirmations; removals that touch the workspace root or anything
outside it always ask.

Example:
  lca run -- ls -la
  lca run -- 'git commit -m "fix parser"'
  lca run --timeout 10m -- go test ./...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Skip the prompt for overridable confirmations")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Kill the command after this long (default: $AGENT_TIMEOUT or 5m)")
	rootCmd.AddCommand(runCmd)
}

func runCommand(cmd *cobra.Command, args []string) (err error) {
	start := time.Now()
	raw, err := commandString(args)
	if err != nil {
		return err
	}

	s, err := loadSession(runTimeout, runYes)
	if err != nil {
		return err
	}
	if err := s.openAudit(); err != nil {
		return err
	}
	defer closeSession(s, &err)

	stderr := cmd.ErrOrStderr()
	validator := command.NewValidator(s.guard, s.policy, command.Options{AllowOverride: s.cfg.NonInteractiveOverride})

	verdict, err := validator.Classify(raw)
	if err != nil {
		logUnexecuted(s, stderr, start, raw, "unparseable", "", []string{err.Error()})
		return &ExitError{Code: ExitBlocked, Err: err}
	}

	reasons := verdict.Reasons
	switch verdict.Kind {
	case command.Rejected:
		fmt.Fprintln(stderr, "\n❌ BLOCKED by lca")
		fmt.Fprint(stderr, verdict.Explain())
		logUnexecuted(s, stderr, start, raw, "rejected", verdict.Kind.String(), verdict.Reasons)
		return exitWith(ExitBlocked)

	case command.NeedsConfirmation:
		result := newApprover().Ask(approval.Prompt{
			Subject:        raw,
			TriggeredRules: verdict.Rules,
			Reasons:        verdict.Reasons,
		})
		reasons = append(append([]string(nil), verdict.Reasons...), "user_action: "+result.UserAction)
		if !result.Approved {
			fmt.Fprintln(stderr, "\n❌ Command denied")
			logUnexecuted(s, stderr, start, raw, "denied", verdict.Kind.String(), reasons)
			return exitWith(ExitBlocked)
		}
		fmt.Fprintln(stderr, "\n✅ Approved - executing command...")
	}

	rec := &verdictRecorder{next: s.audit, verdict: verdict.Kind.String(), reasons: reasons}
	runner := executor.New(executor.Config{
		Dir:            s.guard.Root(),
		Timeout:        s.cfg.Timeout,
		EnvPassthrough: s.policy.EnvPassthrough,
	}, rec)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, execErr := runner.Execute(ctx, verdict.Argv)
	if res != nil {
		writeOutput(cmd.OutOrStdout(), stderr, res)
	}

	var ee *executor.ExecutionError
	switch {
	case errors.As(execErr, &ee) && errors.Is(ee, executor.ErrTimeout):
		return &ExitError{Code: ExitTimeout, Err: execErr}
	case errors.As(execErr, &ee) && errors.Is(ee, executor.ErrSpawn):
		return &ExitError{Code: ExitSpawnFailure, Err: execErr}
	case errors.As(execErr, &ee):
		return &ExitError{Code: ExitFailure, Err: execErr}
	case execErr != nil:
		// Only the audit write failed; the command itself ran.
		fmt.Fprintf(stderr, "warning: %v\n", execErr)
	}
	if res.ExitCode != 0 {
		return exitWith(res.ExitCode)
	}
	return nil
}

// commandString turns cobra's args back into one command string. Several
// args are shell-quoted so "run -- git commit -m 'two words'" keeps its
// argument boundaries.
func commandString(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return "", &ExitError{Code: ExitBlocked, Err: fmt.Errorf("argument %d cannot be represented: %w", i+1, err)}
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

func writeOutput(stdout, stderr io.Writer, res *executor.Result) {
	fmt.Fprint(stdout, res.Stdout)
	fmt.Fprint(stderr, res.Stderr)
	if res.StdoutTruncated || res.StderrTruncated {
		fmt.Fprintln(stderr, "\n[lca: output truncated]")
	}
}

// verdictRecorder adds the validator's verdict to the executor's record.
type verdictRecorder struct {
	next    executor.Recorder
	verdict string
	reasons []string
}

func (r *verdictRecorder) Log(rec logger.Record) error {
	rec.Verdict = r.verdict
	rec.Reasons = append(rec.Reasons, r.reasons...)
	return r.next.Log(rec)
}

// logUnexecuted writes the one audit record for a command that never
// reached the executor. The duration covers validation and any prompt.
func logUnexecuted(s *session, stderr io.Writer, start time.Time, raw, outcome, verdict string, reasons []string) {
	rec := logger.Record{
		Level:      logger.LevelWarn,
		Kind:       logger.KindCommand,
		Summary:    redact.Redact(raw),
		Outcome:    outcome,
		Verdict:    verdict,
		Reasons:    reasons,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err := s.audit.Log(rec); err != nil {
		fmt.Fprintf(stderr, "warning: failed to write audit log: %v\n", err)
	}
}
