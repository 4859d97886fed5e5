package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/lca/internal/approval"
	"github.com/gzhole/lca/internal/config"
	"github.com/gzhole/lca/internal/logger"
)

// resetFlags restores every package-level flag variable; cobra only writes
// the flags that appear on the command line.
func resetFlags() {
	workDir, policyPath, logDir = "", "", ""
	runYes, runTimeout = false, 0
	checkYes, checkFormat = false, "text"
	patchDryRun, patchYes = false, false
	diffOutput = ""
	logFilterKind, logFilterOutcome, logLast, logSummary = "", "", 0, false
	whoamiFormat = "text"
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvWorkDir, config.EnvLogDir, config.EnvPolicy,
		config.EnvTimeout, config.EnvNonInteractive,
	} {
		t.Setenv(name, "")
	}
}

// answerWith makes confirmations read answer, as if typed on a terminal.
func answerWith(t *testing.T, answer string) {
	t.Helper()
	prev := newApprover
	newApprover = func() *approval.Approver {
		return &approval.Approver{
			In:          strings.NewReader(answer),
			Out:         io.Discard,
			Interactive: func() bool { return true },
		}
	}
	t.Cleanup(func() { newApprover = prev })
}

type cliResult struct {
	stdout string
	stderr string
	code   int
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	code := exitCode(rootCmd.Execute(), &errOut)
	return cliResult{stdout: out.String(), stderr: errOut.String(), code: code}
}

func newWorkspace(t *testing.T) string {
	t.Helper()
	isolateEnv(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func auditRecords(t *testing.T, root string) []logger.Record {
	t.Helper()
	recs, err := logger.ReadAll(filepath.Join(root, config.DefaultConfigDir, config.DefaultLogDir, config.DefaultLogFile))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return recs
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	expected := map[string]bool{
		"run": false, "check": false, "patch": false, "diff": false,
		"log": false, "whoami": false, "pack": false, "version": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("missing subcommand: %s", name)
		}
	}
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	if got := exitCode(nil, &buf); got != ExitOK {
		t.Errorf("nil error: got %d", got)
	}
	if got := exitCode(exitWith(ExitConflict), &buf); got != ExitConflict || buf.Len() != 0 {
		t.Errorf("silent exit: got %d, printed %q", got, buf.String())
	}
	if got := exitCode(os.ErrNotExist, &buf); got != ExitFailure || !strings.Contains(buf.String(), "Error:") {
		t.Errorf("plain error: got %d, printed %q", got, buf.String())
	}
}

func TestRun_AllowedCommand(t *testing.T) {
	skipOnWindows(t)
	root := newWorkspace(t)

	res := runCLI(t, "", "run", "--workdir", root, "--", "echo", "hello world")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if res.stdout != "hello world\n" {
		t.Errorf("stdout = %q", res.stdout)
	}

	recs := auditRecords(t, root)
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Kind != logger.KindCommand || rec.Outcome != "succeeded" || rec.Verdict != "allowed" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("exit code not recorded: %+v", rec)
	}
}

func TestRun_RejectedNeverSpawns(t *testing.T) {
	root := newWorkspace(t)
	marker := filepath.Join(root, "spawned")

	res := runCLI(t, "", "run", "--workdir", root, "--", "touch "+marker+"; rm -rf /")
	if res.code != ExitBlocked {
		t.Fatalf("expected exit %d, got %d", ExitBlocked, res.code)
	}
	if !strings.Contains(res.stderr, "BLOCKED") {
		t.Errorf("stderr should explain the block:\n%s", res.stderr)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("a rejected command must not run")
	}

	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "rejected" || recs[0].Level != logger.LevelWarn {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestRun_SubstitutionRejected(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, "", "run", "--workdir", root, "--", "echo `id`")
	if res.code != ExitBlocked {
		t.Errorf("expected exit %d, got %d", ExitBlocked, res.code)
	}
}

func TestRun_ChildExitCodePassesThrough(t *testing.T) {
	skipOnWindows(t)
	root := newWorkspace(t)

	res := runCLI(t, "", "run", "--workdir", root, "--", "grep", "-q", "missing", "a.txt")
	if res.code != 1 {
		t.Fatalf("expected grep's exit status 1, got %d (stderr %q)", res.code, res.stderr)
	}
	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "failed" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestRun_ConfirmationDenied(t *testing.T) {
	root := newWorkspace(t)
	answerWith(t, "n\n")

	res := runCLI(t, "", "run", "--workdir", root, "--", "make", "all")
	if res.code != ExitBlocked {
		t.Fatalf("expected exit %d, got %d", ExitBlocked, res.code)
	}

	recs := auditRecords(t, root)
	if len(recs) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recs))
	}
	if recs[0].Outcome != "denied" || recs[0].Verdict != "needs_confirmation" {
		t.Errorf("unexpected record: %+v", recs[0])
	}
	found := false
	for _, r := range recs[0].Reasons {
		if r == "user_action: "+approval.ActionDeny {
			found = true
		}
	}
	if !found {
		t.Errorf("denial not recorded in reasons: %v", recs[0].Reasons)
	}
}

// slowReader waits before handing out its answer, like a user thinking.
type slowReader struct {
	delay time.Duration
	r     io.Reader
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.r.Read(p)
}

func TestRun_UnexecutedRecordsDuration(t *testing.T) {
	root := newWorkspace(t)
	prev := newApprover
	newApprover = func() *approval.Approver {
		return &approval.Approver{
			In:          &slowReader{delay: 30 * time.Millisecond, r: strings.NewReader("n\n")},
			Out:         io.Discard,
			Interactive: func() bool { return true },
		}
	}
	t.Cleanup(func() { newApprover = prev })

	res := runCLI(t, "", "run", "--workdir", root, "--", "make", "all")
	if res.code != ExitBlocked {
		t.Fatalf("expected exit %d, got %d", ExitBlocked, res.code)
	}
	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "denied" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[0].DurationMs < 30 {
		t.Errorf("duration_ms = %d, want the time spent at the prompt", recs[0].DurationMs)
	}
}

func TestRun_YesSkipsOverridablePrompt(t *testing.T) {
	skipOnWindows(t)
	root := newWorkspace(t)
	answerWith(t, "n\n")

	res := runCLI(t, "", "run", "--workdir", root, "--yes", "--", "sed", "-n", "2p", "a.txt")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if res.stdout != "two\n" {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestRun_YesDoesNotCoverWorkspaceRoot(t *testing.T) {
	root := newWorkspace(t)
	answerWith(t, "n\n")

	res := runCLI(t, "", "run", "--workdir", root, "--yes", "--", "rm", "-rf", root)
	if res.code != ExitBlocked {
		t.Fatalf("expected exit %d, got %d", ExitBlocked, res.code)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); err != nil {
		t.Errorf("workspace must be untouched: %v", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	skipOnWindows(t)
	root := newWorkspace(t)
	policy := filepath.Join(root, "policy.yaml")
	if err := os.WriteFile(policy, []byte("allow:\n  - program: sleep\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	res := runCLI(t, "", "run", "--workdir", root, "--policy", policy, "--timeout", "200ms", "--", "sleep", "10")
	if res.code != ExitTimeout {
		t.Fatalf("expected exit %d, got %d (stderr %q)", ExitTimeout, res.code, res.stderr)
	}
	if time.Since(start) > 8*time.Second {
		t.Error("timeout did not stop the child")
	}
}

func TestCheck_Verdicts(t *testing.T) {
	root := newWorkspace(t)

	cases := []struct {
		command string
		code    int
	}{
		{"ls -la", ExitOK},
		{"make", ExitNeedsConfirmation},
		{"echo $(whoami)", ExitBlocked},
		{"curl http://example.com", ExitBlocked},
	}
	for _, tc := range cases {
		res := runCLI(t, "", "check", "--workdir", root, "--", tc.command)
		if res.code != tc.code {
			t.Errorf("check %q: expected exit %d, got %d\n%s", tc.command, tc.code, res.code, res.stdout)
		}
	}

	if _, err := os.Stat(filepath.Join(root, config.DefaultConfigDir, config.DefaultLogDir)); !os.IsNotExist(err) {
		t.Error("check must not write an audit log")
	}
}

func TestCheck_YAML(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, "", "check", "--workdir", root, "--format", "yaml", "--", "git", "status", "--short")
	if res.code != ExitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var report checkReport
	if err := yaml.Unmarshal([]byte(res.stdout), &report); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, res.stdout)
	}
	if report.Verdict != "allowed" || strings.Join(report.Argv, " ") != "git status --short" {
		t.Errorf("unexpected report: %+v", report)
	}
}

const editPatch = `--- a/a.txt
+++ b/a.txt
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
`

func writePatch(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "change.diff")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readWorkspaceFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestPatchApply_Yes(t *testing.T) {
	root := newWorkspace(t)
	file := writePatch(t, t.TempDir(), editPatch)

	res := runCLI(t, "", "patch", "apply", "--workdir", root, "--yes", file)
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if got := readWorkspaceFile(t, root, "a.txt"); got != "one\nTWO\nthree\n" {
		t.Errorf("a.txt = %q", got)
	}

	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Kind != logger.KindPatch || recs[0].Outcome != "applied" {
		t.Errorf("unexpected records: %+v", recs)
	}

	// The same patch no longer matches.
	res = runCLI(t, "", "patch", "apply", "--workdir", root, "--yes", file)
	if res.code != ExitConflict {
		t.Errorf("reapply: expected exit %d, got %d", ExitConflict, res.code)
	}
	if !strings.Contains(res.stdout, "ContextMismatch") {
		t.Errorf("conflict reason missing:\n%s", res.stdout)
	}
}

func TestPatchApply_ConfirmationDenied(t *testing.T) {
	root := newWorkspace(t)
	file := writePatch(t, t.TempDir(), editPatch)
	answerWith(t, "n\n")

	res := runCLI(t, "", "patch", "apply", "--workdir", root, file)
	if res.code != ExitBlocked {
		t.Fatalf("expected exit %d, got %d", ExitBlocked, res.code)
	}
	if got := readWorkspaceFile(t, root, "a.txt"); got != "one\ntwo\nthree\n" {
		t.Errorf("a.txt changed: %q", got)
	}
	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "denied" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestPatchApply_ConfirmationApproved(t *testing.T) {
	root := newWorkspace(t)
	file := writePatch(t, t.TempDir(), editPatch)
	answerWith(t, "y\n")

	res := runCLI(t, "", "patch", "apply", "--workdir", root, file)
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if got := readWorkspaceFile(t, root, "a.txt"); got != "one\nTWO\nthree\n" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestPatchApply_DryRunFromStdin(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, editPatch, "patch", "apply", "--workdir", root, "--dry-run", "-")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Dry run") {
		t.Errorf("stdout should say dry run:\n%s", res.stdout)
	}
	if got := readWorkspaceFile(t, root, "a.txt"); got != "one\ntwo\nthree\n" {
		t.Errorf("dry run changed a.txt: %q", got)
	}
	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "dry_run" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestPatchApply_Malformed(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, "not a patch\n", "patch", "apply", "--workdir", root, "--yes", "-")
	if res.code != ExitFailure {
		t.Fatalf("expected exit %d, got %d", ExitFailure, res.code)
	}
	recs := auditRecords(t, root)
	if len(recs) != 1 || recs[0].Outcome != "unparseable" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestPatchApply_EscapeIsConflict(t *testing.T) {
	root := newWorkspace(t)
	escape := "--- a/../outside.txt\n+++ b/../outside.txt\n@@ -0,0 +1 @@\n+x\n"

	res := runCLI(t, escape, "patch", "apply", "--workdir", root, "--yes", "-")
	if res.code != ExitConflict {
		t.Fatalf("expected exit %d, got %d", ExitConflict, res.code)
	}
	if !strings.Contains(res.stdout, "PathEscape") {
		t.Errorf("expected PathEscape in output:\n%s", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "outside.txt")); !os.IsNotExist(err) {
		t.Error("file written outside the workspace")
	}
}

func TestPatchApply_ConfigDirIsConflict(t *testing.T) {
	root := newWorkspace(t)
	pack := "--- /dev/null\n+++ b/.agent/packs/shell.yaml\n@@ -0,0 +1,2 @@\n+allow:\n+  - program: bash\n"

	res := runCLI(t, pack, "patch", "apply", "--workdir", root, "--yes", "-")
	if res.code != ExitConflict {
		t.Fatalf("expected exit %d, got %d", ExitConflict, res.code)
	}
	if !strings.Contains(res.stdout, "PathEscape") {
		t.Errorf("expected PathEscape in output:\n%s", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(root, ".agent", "packs", "shell.yaml")); !os.IsNotExist(err) {
		t.Error("patch wrote into the packs directory")
	}

	res = runCLI(t, "", "run", "--workdir", root, "--yes", "--", "bash", "-c", "id")
	if res.code != ExitBlocked {
		t.Errorf("bash must stay blocked, got exit %d", res.code)
	}
}

func TestRun_ConfigDirBlocked(t *testing.T) {
	root := newWorkspace(t)

	for _, raw := range []string{
		"touch .agent/packs/x.yaml",
		"rm .agent/logs/audit.jsonl",
		"cp a.txt .agent/policy.yaml",
	} {
		res := runCLI(t, "", "run", "--workdir", root, "--yes", "--", raw)
		if res.code != ExitBlocked {
			t.Errorf("%q: expected exit %d, got %d", raw, ExitBlocked, res.code)
		}
	}
	if _, err := os.Stat(filepath.Join(root, ".agent", "packs", "x.yaml")); !os.IsNotExist(err) {
		t.Error("blocked command created a pack")
	}
	if recs := auditRecords(t, root); len(recs) != 3 {
		t.Errorf("audit log should hold all three records, got %d", len(recs))
	}
}

func TestPatchCheck_DoesNotWrite(t *testing.T) {
	root := newWorkspace(t)
	file := writePatch(t, t.TempDir(), editPatch)

	res := runCLI(t, "", "patch", "check", "--workdir", root, file)
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "modify a.txt") {
		t.Errorf("summary missing:\n%s", res.stdout)
	}
	if got := readWorkspaceFile(t, root, "a.txt"); got != "one\ntwo\nthree\n" {
		t.Errorf("check changed a.txt: %q", got)
	}
	if len(auditRecords(t, root)) != 0 {
		t.Error("check must not write audit records")
	}
}

func TestDiff_ThenApply(t *testing.T) {
	root := newWorkspace(t)
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("one\nTWO\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, "", "diff", "--workdir", root, "a.txt", "b.txt")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	if !strings.HasPrefix(res.stdout, "--- a/a.txt\n+++ b/b.txt\n@@ -1,3 +1,3 @@\n") {
		t.Errorf("unexpected diff:\n%s", res.stdout)
	}

	// A missing old side gives a creation patch that applies cleanly.
	res = runCLI(t, "", "diff", "--workdir", root, "--output", "new.diff", "new.txt", "b.txt")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stderr:\n%s", res.code, res.stderr)
	}
	created := strings.Replace(readWorkspaceFile(t, root, "new.diff"), "+++ b/b.txt", "+++ b/c.txt", 1)
	res = runCLI(t, created, "patch", "apply", "--workdir", root, "--yes", "-")
	if res.code != ExitOK {
		t.Fatalf("exit %d, stdout:\n%s", res.code, res.stdout)
	}
	if got := readWorkspaceFile(t, root, "c.txt"); got != "one\nTWO\nthree\n" {
		t.Errorf("c.txt = %q", got)
	}
}

func TestDiff_OutsideWorkspace(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, "", "diff", "--workdir", root, "../../etc/passwd", "a.txt")
	if res.code != ExitBlocked {
		t.Errorf("expected exit %d, got %d", ExitBlocked, res.code)
	}
}

func TestLog_FilterAndSummary(t *testing.T) {
	root := newWorkspace(t)
	runCLI(t, "", "run", "--workdir", root, "--", "ls; ls")
	runCLI(t, "", "patch", "apply", "--workdir", root, "--dry-run", writePatch(t, t.TempDir(), editPatch))

	res := runCLI(t, "", "log", "--workdir", root, "--kind", "command")
	if res.code != ExitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "[command]") || strings.Contains(res.stdout, "[patch]") {
		t.Errorf("kind filter not applied:\n%s", res.stdout)
	}

	res = runCLI(t, "", "log", "--workdir", root, "--summary")
	if !strings.Contains(res.stdout, "Total records:   2") {
		t.Errorf("unexpected summary:\n%s", res.stdout)
	}
	if !strings.Contains(res.stdout, "rejected:") {
		t.Errorf("summary should count outcomes:\n%s", res.stdout)
	}
}

func TestLog_Empty(t *testing.T) {
	root := newWorkspace(t)

	res := runCLI(t, "", "log", "--workdir", root)
	if res.code != ExitOK || !strings.Contains(res.stdout, "No audit log entries found.") {
		t.Errorf("unexpected output (exit %d):\n%s", res.code, res.stdout)
	}
}

func TestPack_EnableDisable(t *testing.T) {
	root := newWorkspace(t)
	packs := filepath.Join(root, config.DefaultConfigDir, config.DefaultPacksDir)
	if err := os.MkdirAll(packs, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "name: jq\ndescription: JSON tools\nversion: \"1.0\"\nauthor: ops\nallow:\n  - program: jq\n"
	if err := os.WriteFile(filepath.Join(packs, "jq.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if res := runCLI(t, "", "check", "--workdir", root, "--", "jq", "."); res.code != ExitOK {
		t.Errorf("enabled pack should allow jq, got exit %d", res.code)
	}

	res := runCLI(t, "", "pack", "disable", "--workdir", root, "jq")
	if res.code != ExitOK {
		t.Fatalf("disable: exit %d: %s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(packs, "_jq.yaml")); err != nil {
		t.Fatalf("pack not renamed: %v", err)
	}
	if res := runCLI(t, "", "check", "--workdir", root, "--", "jq", "."); res.code != ExitBlocked {
		t.Errorf("disabled pack should not allow jq, got exit %d", res.code)
	}

	res = runCLI(t, "", "pack", "list", "--workdir", root)
	if !strings.Contains(res.stdout, "jq") || !strings.Contains(res.stdout, "(1 programs)") {
		t.Errorf("unexpected list:\n%s", res.stdout)
	}

	res = runCLI(t, "", "pack", "enable", "--workdir", root, "jq")
	if res.code != ExitOK {
		t.Fatalf("enable: exit %d: %s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(packs, "jq.yaml")); err != nil {
		t.Fatalf("pack not re-enabled: %v", err)
	}

	if res := runCLI(t, "", "pack", "show", "--workdir", root, "../jq"); res.code != ExitFailure {
		t.Errorf("path in pack name should fail, got exit %d", res.code)
	}
}

func TestWhoami_YAML(t *testing.T) {
	root := newWorkspace(t)
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, "", "whoami", "--workdir", root, "--format", "yaml")
	if res.code != ExitOK {
		t.Fatalf("exit %d: %s", res.code, res.stderr)
	}
	var report whoamiReport
	if err := yaml.Unmarshal([]byte(res.stdout), &report); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, res.stdout)
	}
	if report.WorkDir != canonical {
		t.Errorf("workdir = %q, want %q", report.WorkDir, canonical)
	}
	if report.Timeout != config.DefaultTimeout.String() {
		t.Errorf("timeout = %q", report.Timeout)
	}
	if report.PolicyLoaded {
		t.Error("no policy file was written")
	}
}

func TestVersion(t *testing.T) {
	res := runCLI(t, "", "version")
	if !strings.HasPrefix(res.stdout, "lca "+Version) {
		t.Errorf("unexpected version output: %q", res.stdout)
	}
}
