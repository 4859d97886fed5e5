// Package executor runs an already-validated argument vector without a
// shell, inside the workspace, under a wall-clock timeout.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/gzhole/lca/internal/logger"
	"github.com/gzhole/lca/internal/redact"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultGrace     = 2 * time.Second
	DefaultMaxOutput = 1 << 20
)

// Outcome values written to the audit log.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
	OutcomeTimeout      = "timeout"
	OutcomeSpawnFailure = "spawn_failure"
	OutcomeCanceled     = "canceled"
)

// DefaultEnvPassthrough is the environment a child sees when the caller
// names nothing else.
var DefaultEnvPassthrough = []string{"PATH", "HOME", "LANG", "LC_ALL", "TERM", "TMPDIR", "USER"}

type Config struct {
	// Dir is the working directory of every child, normally the workspace root.
	Dir string
	// Timeout bounds each run. After it expires the child is interrupted and,
	// Grace later, killed.
	Timeout time.Duration
	Grace   time.Duration
	// MaxOutput caps each of stdout and stderr, in bytes.
	MaxOutput      int
	EnvPassthrough []string
}

// Recorder receives the single audit record of each execution.
type Recorder interface {
	Log(rec logger.Record) error
}

// Result is what a run produced. A non-zero ExitCode is a normal outcome,
// not an error.
type Result struct {
	Argv            []string
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
}

func (r *Result) Succeeded() bool { return r.ExitCode == 0 }

type Executor struct {
	cfg     Config
	rec     Recorder
	environ func() []string
}

// New fills zero Config fields with defaults. rec may be nil.
func New(cfg Config, rec Recorder) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	if len(cfg.EnvPassthrough) == 0 {
		cfg.EnvPassthrough = DefaultEnvPassthrough
	}
	return &Executor{cfg: cfg, rec: rec, environ: os.Environ}
}

// Execute runs argv and blocks until it exits, times out, or ctx is done.
// Exactly one audit record is written per call. Failures to run to
// completion are returned as *ExecutionError; a failure to write the audit
// record is returned alongside a valid Result.
func (e *Executor) Execute(ctx context.Context, argv []string) (*Result, error) {
	start := time.Now()

	if len(argv) == 0 || argv[0] == "" {
		execErr := &ExecutionError{Kind: ErrSpawn, Argv: argv, Cause: os.ErrInvalid}
		return nil, withLogErr(execErr, e.record(argv, nil, execErr, time.Since(start)))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	stdout := newCollector(e.cfg.MaxOutput)
	stderr := newCollector(e.cfg.MaxOutput)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = e.cfg.Dir
	cmd.Env = filterEnv(e.environ(), e.cfg.EnvPassthrough)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = e.cfg.Grace

	runErr := cmd.Run()
	// A child that exited but left a grandchild holding the pipes still ran
	// to completion.
	if errors.Is(runErr, exec.ErrWaitDelay) && runCtx.Err() == nil {
		runErr = nil
	}

	res := &Result{
		Argv:            argv,
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var execErr *ExecutionError
	switch {
	case cmd.Process == nil && ctx.Err() != nil:
		res = nil
		execErr = &ExecutionError{Kind: ErrCanceled, Argv: argv, Cause: ctx.Err()}
	case cmd.Process == nil:
		res = nil
		execErr = &ExecutionError{Kind: ErrSpawn, Argv: argv, Cause: runErr}
	case runErr == nil:
	case ctx.Err() != nil:
		execErr = &ExecutionError{Kind: ErrCanceled, Argv: argv, Partial: res, Cause: ctx.Err()}
	case runCtx.Err() != nil:
		execErr = &ExecutionError{
			Kind:    ErrTimeout,
			Argv:    argv,
			Partial: res,
			Cause:   fmt.Errorf("exceeded %s", e.cfg.Timeout),
		}
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			execErr = &ExecutionError{Kind: ErrSpawn, Argv: argv, Partial: res, Cause: runErr}
		}
	}

	logErr := e.record(argv, res, execErr, time.Since(start))
	if execErr != nil {
		return res, withLogErr(execErr, logErr)
	}
	return res, logErr
}

// withLogErr keeps a bare *ExecutionError when the audit write succeeded.
func withLogErr(execErr *ExecutionError, logErr error) error {
	if logErr == nil {
		return execErr
	}
	return errors.Join(execErr, logErr)
}

func (e *Executor) record(argv []string, res *Result, execErr *ExecutionError, elapsed time.Duration) error {
	if e.rec == nil {
		return nil
	}

	rec := logger.Record{
		Kind:       logger.KindCommand,
		Summary:    redact.Summarize(argv),
		DurationMs: elapsed.Milliseconds(),
	}
	if res != nil {
		code := res.ExitCode
		rec.ExitCode = &code
	}

	switch {
	case execErr == nil && res.ExitCode == 0:
		rec.Level = logger.LevelInfo
		rec.Outcome = OutcomeSucceeded
	case execErr == nil:
		rec.Level = logger.LevelInfo
		rec.Outcome = OutcomeFailed
	default:
		rec.Level = logger.LevelWarn
		rec.Outcome = outcomeOf(execErr)
		rec.Error = execErr.Error()
		if errors.Is(execErr, ErrSpawn) {
			rec.Level = logger.LevelError
		}
	}

	if err := e.rec.Log(rec); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func outcomeOf(err *ExecutionError) string {
	switch err.Kind {
	case ErrTimeout:
		return OutcomeTimeout
	case ErrCanceled:
		return OutcomeCanceled
	default:
		return OutcomeSpawnFailure
	}
}

// interrupt asks the child to stop; Windows has no SIGINT for arbitrary
// processes, so it is killed outright there.
func interrupt(p *os.Process) error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(os.Interrupt)
}
