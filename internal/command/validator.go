// Package command decides whether a raw command string may be executed as a
// plain argument vector, without a shell.
//
// Classification runs in a fixed order: hidden-character scan, substitution
// markers on the raw text, shell parse, shell-construct checks, then the
// allow-list and target checks for every simple command found. All findings
// are combined most-restrictive-wins.
package command

import (
	"strings"

	"github.com/gzhole/lca/internal/pathguard"
	"github.com/gzhole/lca/internal/policy"
)

// Options tune classification.
type Options struct {
	// AllowOverride downgrades overridable confirmations to Allowed. It never
	// touches Rejected findings or confirmations about the workspace root.
	AllowOverride bool
}

// Validator classifies raw command strings against a policy and a workspace
// guard. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	guard  *pathguard.Guard
	policy *policy.Policy
	paths  *policy.PathMatcher
	opts   Options
}

// NewValidator returns a Validator that checks targets with guard and
// programs with pol.
func NewValidator(guard *pathguard.Guard, pol *policy.Policy, opts Options) *Validator {
	return &Validator{
		guard:  guard,
		policy: pol,
		paths:  policy.NewPathMatcher(pol.ProtectedPaths),
		opts:   opts,
	}
}

// Classify returns the verdict for raw. The only error is *ParseError, for
// input the shell parser cannot tokenize and that is not already rejected on
// its raw text.
func (v *Validator) Classify(raw string) (Verdict, error) {
	if strings.TrimSpace(raw) == "" {
		return Verdict{Kind: Rejected, Rules: []string{"empty-command"}, Reasons: []string{"empty command"}}, nil
	}

	var findings []finding
	blocked := false
	for _, h := range scanHidden(raw) {
		f := h.finding()
		findings = append(findings, f)
		if f.kind == Rejected {
			blocked = true
		}
	}
	if blocked {
		return combine(findings, false), nil
	}

	markers := rawMarkers(raw)
	findings = append(findings, markers...)

	file, err := parseShell(raw)
	if err != nil {
		if len(markers) > 0 {
			return combine(findings, false), nil
		}
		return Verdict{}, err
	}

	s := &scan{}
	v.walkFile(file, s)
	findings = append(findings, s.findings...)
	for _, argv := range s.calls {
		findings = append(findings, v.checkCall(argv)...)
	}
	if len(s.calls) == 0 && len(s.findings) == 0 {
		findings = append(findings, finding{rule: "empty-command", kind: Rejected, reason: "no command to run"})
	}

	verdict := combine(findings, v.opts.AllowOverride)
	if len(s.calls) == 1 && len(file.Stmts) == 1 {
		verdict.Argv = s.calls[0]
	}
	return verdict, nil
}
