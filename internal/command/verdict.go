package command

import (
	"fmt"
	"strings"
)

// Kind is the closed set of classification outcomes, ordered from least to
// most restrictive.
type Kind int

const (
	Allowed Kind = iota
	NeedsConfirmation
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Allowed:
		return "allowed"
	case NeedsConfirmation:
		return "needs_confirmation"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Verdict is the result of classifying one raw command string.
type Verdict struct {
	Kind    Kind
	Reasons []string
	Rules   []string

	// Argv is the argument vector to execute. It is set only when the input
	// is a single simple command whose words are all literal.
	Argv []string

	// Overridden is set when the override flag suppressed at least one
	// confirmation.
	Overridden bool
}

func (v Verdict) Allowed() bool { return v.Kind == Allowed }

// Explain renders the verdict for terminal output.
func (v Verdict) Explain() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Verdict: %s\n", v.Kind)
	if len(v.Argv) > 0 {
		fmt.Fprintf(&sb, "Argv: %q\n", v.Argv)
	}
	if len(v.Rules) > 0 {
		fmt.Fprintf(&sb, "Rules: %s\n", strings.Join(v.Rules, ", "))
	}
	if len(v.Reasons) > 0 {
		sb.WriteString("Reasons:\n")
		for _, reason := range v.Reasons {
			fmt.Fprintf(&sb, "  - %s\n", reason)
		}
	}
	return sb.String()
}

// finding is a single observation made while classifying. Only confirmations
// marked overridable may be downgraded by the override flag.
type finding struct {
	rule        string
	kind        Kind
	reason      string
	overridable bool
}

// combine picks the most restrictive finding. Among findings with the same
// kind, all rules and reasons are collected in the order they were found.
func combine(findings []finding, override bool) Verdict {
	v := Verdict{Kind: Allowed}

	var suppressed []finding
	for _, f := range findings {
		if override && f.kind == NeedsConfirmation && f.overridable {
			suppressed = append(suppressed, f)
			continue
		}
		switch {
		case f.kind > v.Kind:
			v.Kind = f.kind
			v.Rules = []string{f.rule}
			v.Reasons = []string{f.reason}
		case f.kind == v.Kind && f.kind != Allowed:
			v.Rules = append(v.Rules, f.rule)
			v.Reasons = append(v.Reasons, f.reason)
		}
	}

	if len(suppressed) > 0 {
		v.Overridden = true
		if v.Kind == Allowed {
			for _, f := range suppressed {
				v.Rules = append(v.Rules, f.rule)
				v.Reasons = append(v.Reasons, "overridden: "+f.reason)
			}
		}
	}
	return v
}
