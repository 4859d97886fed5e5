package command

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gzhole/lca/internal/pathguard"
)

// programName strips any directory from the leading token.
func programName(argv0 string) string {
	name := filepath.Base(argv0)
	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

func (v *Validator) checkCall(argv []string) []finding {
	var findings []finding
	argv0 := argv[0]
	prog := programName(argv0)

	if strings.ContainsAny(argv0, `/\`) {
		if !filepath.IsAbs(argv0) {
			return append(findings, finding{
				rule:   "relative-program",
				kind:   Rejected,
				reason: fmt.Sprintf("program path %s is relative; only allow-listed programs found on PATH may run", argv0),
			})
		}
		if _, system := v.policy.ProtectedDir(filepath.Clean(argv0)); !system {
			findings = append(findings, finding{
				rule:   "program-path",
				kind:   NeedsConfirmation,
				reason: fmt.Sprintf("program %s lives outside the system directories", argv0),
			})
		}
	}

	entry, ok := v.policy.Lookup(prog)
	if !ok {
		return append(findings, finding{
			rule:   "not-allowed",
			kind:   Rejected,
			reason: fmt.Sprintf("program %s is not in allow-list", prog),
		})
	}

	args := argv[1:]
	if sub := firstPositional(args); sub != "" && !entry.AllowsSubcommand(sub) {
		findings = append(findings, finding{
			rule:   "subcommand-denied",
			kind:   Rejected,
			reason: fmt.Sprintf("subcommand %q of %s is not in allow-list", sub, prog),
		})
	}
	for _, arg := range args {
		if pattern, denied := entry.DeniedArg(arg); denied {
			findings = append(findings, finding{
				rule:   "argument-denied",
				kind:   Rejected,
				reason: fmt.Sprintf("argument %s is not allowed for %s", pattern, prog),
			})
		}
	}
	if entry.Confirm {
		reason := entry.Reason
		if reason == "" {
			reason = "requires confirmation"
		}
		findings = append(findings, finding{
			rule:        "confirm-program",
			kind:        NeedsConfirmation,
			reason:      fmt.Sprintf("%s: %s", prog, reason),
			overridable: true,
		})
	}

	if v.policy.IsDestructive(prog) {
		findings = append(findings, v.checkDestructive(prog, args)...)
	}
	if v.policy.IsWriter(prog) {
		findings = append(findings, v.checkWriteTargets(prog, args)...)
	}
	findings = append(findings, v.checkProtectedArgs(args)...)
	return findings
}

// checkDestructive looks at the flags and every operand of a removal
// command. Targets that could take out the workspace itself, or anything
// outside it, always need a human.
func (v *Validator) checkDestructive(prog string, args []string) []finding {
	var findings []finding

	recursive, force, operands := splitRemovalArgs(args)
	if recursive && force {
		findings = append(findings, finding{
			rule:        "rm-recursive-force",
			kind:        NeedsConfirmation,
			reason:      fmt.Sprintf("%s with recursive and force flags", prog),
			overridable: true,
		})
	}

	for _, target := range operands {
		findings = append(findings, v.classifyTarget(prog, target)...)
	}
	return findings
}

func (v *Validator) classifyTarget(prog, target string) []finding {
	root := v.guard.Root()
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, target)
	}
	abs = filepath.Clean(abs)

	if isFilesystemRoot(abs) {
		return []finding{{
			rule:   "rm-system-path",
			kind:   Rejected,
			reason: fmt.Sprintf("%s targets the filesystem root %s", prog, target),
		}}
	}

	resolved, err := v.guard.Resolve(target)
	if errors.Is(err, pathguard.ErrProtected) {
		// Reported by checkProtectedArgs.
		return nil
	}
	if err != nil {
		if !errors.Is(err, pathguard.ErrPathEscape) {
			return []finding{{
				rule:   "rm-unresolvable",
				kind:   NeedsConfirmation,
				reason: fmt.Sprintf("%s target %s cannot be resolved: %v", prog, target, err),
			}}
		}
		switch {
		case v.guard.IsRootOrAncestor(abs):
			return []finding{{
				rule:   "rm-workspace-root",
				kind:   NeedsConfirmation,
				reason: fmt.Sprintf("%s targets %s, the workspace root or one of its parents", prog, target),
			}}
		case v.isProtectedDir(abs):
			dir, _ := v.policy.ProtectedDir(abs)
			return []finding{{
				rule:   "rm-system-path",
				kind:   Rejected,
				reason: fmt.Sprintf("%s targets protected system directory %s", prog, dir),
			}}
		case isFilesystemRoot(filepath.Dir(abs)):
			return []finding{{
				rule:   "rm-system-path",
				kind:   Rejected,
				reason: fmt.Sprintf("%s targets top-level directory %s", prog, target),
			}}
		default:
			return []finding{{
				rule:   "rm-outside-workspace",
				kind:   NeedsConfirmation,
				reason: fmt.Sprintf("%s target %s is outside the workspace", prog, target),
			}}
		}
	}

	if v.guard.IsRootOrAncestor(resolved) {
		return []finding{{
			rule:   "rm-workspace-root",
			kind:   NeedsConfirmation,
			reason: fmt.Sprintf("%s targets %s, the workspace root", prog, target),
		}}
	}
	return nil
}

// checkWriteTargets looks at every operand of a program that creates or
// overwrites files, sources included. Writes into system directories are
// refused; anything else outside the workspace needs a human.
func (v *Validator) checkWriteTargets(prog string, args []string) []finding {
	var findings []finding
	_, _, operands := splitRemovalArgs(args)
	for _, a := range args {
		if _, value, ok := strings.Cut(a, "="); ok && strings.HasPrefix(a, "-") && value != "" {
			operands = append(operands, value)
		}
	}
	for _, target := range operands {
		if target == "-" {
			continue
		}
		if f, ok := v.classifyWrite(prog, target); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

func (v *Validator) classifyWrite(prog, target string) (finding, bool) {
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(v.guard.Root(), target)
	}
	abs = filepath.Clean(abs)

	_, err := v.guard.Resolve(target)
	switch {
	case err == nil, errors.Is(err, pathguard.ErrProtected):
		return finding{}, false
	case !errors.Is(err, pathguard.ErrPathEscape):
		return finding{
			rule:   "write-unresolvable",
			kind:   NeedsConfirmation,
			reason: fmt.Sprintf("%s operand %s cannot be resolved: %v", prog, target, err),
		}, true
	case isFilesystemRoot(abs):
		return finding{
			rule:   "write-system-path",
			kind:   Rejected,
			reason: fmt.Sprintf("%s writes to the filesystem root %s", prog, target),
		}, true
	case v.isProtectedDir(abs):
		dir, _ := v.policy.ProtectedDir(abs)
		return finding{
			rule:   "write-system-path",
			kind:   Rejected,
			reason: fmt.Sprintf("%s writes into protected system directory %s", prog, dir),
		}, true
	case isFilesystemRoot(filepath.Dir(abs)):
		return finding{
			rule:   "write-system-path",
			kind:   Rejected,
			reason: fmt.Sprintf("%s writes to top-level directory %s", prog, target),
		}, true
	default:
		return finding{
			rule:   "write-outside-workspace",
			kind:   NeedsConfirmation,
			reason: fmt.Sprintf("%s operand %s is outside the workspace", prog, target),
		}, true
	}
}

func (v *Validator) isProtectedDir(abs string) bool {
	_, ok := v.policy.ProtectedDir(abs)
	return ok
}

// checkProtectedArgs rejects any argument (or --flag=value value) that
// names a protected credential path, either as written or relative to the
// workspace root, or that reaches lca's own configuration and audit log.
func (v *Validator) checkProtectedArgs(args []string) []finding {
	var findings []finding
	for _, arg := range args {
		candidates := []string{arg}
		if _, value, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			candidates = append(candidates, value)
		}
		for _, c := range candidates {
			if c == "" {
				continue
			}
			paths := []string{c}
			if !filepath.IsAbs(c) && !strings.HasPrefix(c, "~") {
				paths = append(paths, filepath.Join(v.guard.Root(), c))
			}
			if pattern, hit := v.matchProtected(paths); hit {
				findings = append(findings, finding{
					rule:   "protected-path",
					kind:   Rejected,
					reason: fmt.Sprintf("access to protected path denied: %s (%s)", c, pattern),
				})
				break
			}
			if dir, hit := v.guard.IsProtected(c); hit {
				findings = append(findings, finding{
					rule:   "protected-path",
					kind:   Rejected,
					reason: fmt.Sprintf("access to protected path denied: %s (inside %s)", c, dir),
				})
				break
			}
		}
	}
	return findings
}

func (v *Validator) matchProtected(paths []string) (string, bool) {
	for _, p := range paths {
		if pattern, ok := v.paths.Match(p); ok {
			return pattern, true
		}
	}
	return "", false
}

// splitRemovalArgs separates flags from operands; "--" ends flag parsing.
// Short flags may be combined ("-rf").
func splitRemovalArgs(args []string) (recursive, force bool, operands []string) {
	flagsDone := false
	for _, a := range args {
		switch {
		case flagsDone || a == "-" || !strings.HasPrefix(a, "-"):
			operands = append(operands, a)
		case a == "--":
			flagsDone = true
		case strings.HasPrefix(a, "--"):
			switch a {
			case "--recursive":
				recursive = true
			case "--force":
				force = true
			}
		default:
			for _, ch := range a[1:] {
				switch ch {
				case 'r', 'R':
					recursive = true
				case 'f':
					force = true
				}
			}
		}
	}
	return recursive, force, operands
}

func firstPositional(args []string) string {
	for _, a := range args {
		if a == "--" {
			return ""
		}
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}

func isFilesystemRoot(abs string) bool {
	vol := filepath.VolumeName(abs)
	return abs == vol+string(filepath.Separator) || abs == string(filepath.Separator)
}
