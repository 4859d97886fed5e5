package command

import (
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// substitutionMarkers are rejected on the raw string before any parsing, so
// the check holds even for input the parser cannot handle.
var substitutionMarkers = []struct {
	marker string
	name   string
}{
	{"`", "backtick command substitution"},
	{"$(", "command substitution $("},
	{"${", "parameter expansion ${"},
	{"<(", "process substitution <("},
	{">(", "process substitution >("},
}

func rawMarkers(raw string) []finding {
	var findings []finding
	for _, m := range substitutionMarkers {
		if strings.Contains(raw, m.marker) {
			findings = append(findings, finding{
				rule:   "shell-substitution",
				kind:   Rejected,
				reason: m.name + " is not allowed",
			})
		}
	}
	return findings
}

// parseShell tokenizes raw with POSIX/bash quoting rules.
func parseShell(raw string) (*syntax.File, error) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(raw), "")
	if err != nil {
		return nil, &ParseError{Input: raw, Cause: err}
	}
	return file, nil
}

// scan accumulates what the AST walk finds: the simple commands that could
// be executed and the shell constructs that cannot.
type scan struct {
	calls    [][]string
	findings []finding
}

func (s *scan) reject(rule, format string, args ...any) {
	s.findings = append(s.findings, finding{rule: rule, kind: Rejected, reason: fmt.Sprintf(format, args...)})
}

func (v *Validator) walkFile(file *syntax.File, s *scan) {
	if len(file.Stmts) > 1 {
		s.reject("shell-chaining", "command chaining with ';' or a newline requires a shell")
	}
	for _, stmt := range file.Stmts {
		v.walkStmt(stmt, s)
	}
}

func (v *Validator) walkStmt(stmt *syntax.Stmt, s *scan) {
	if stmt == nil {
		return
	}
	if stmt.Background {
		s.reject("shell-chaining", "background execution with '&' requires a shell")
	}
	if stmt.Negated {
		s.reject("shell-compound", "negation with '!' requires a shell")
	}
	for _, r := range stmt.Redirs {
		v.checkRedirect(r, s)
	}

	switch cmd := stmt.Cmd.(type) {
	case nil:
	case *syntax.CallExpr:
		v.walkCall(cmd, s)
	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.Pipe, syntax.PipeAll:
			v.checkPipe(cmd, s)
		default:
			s.reject("shell-chaining", "command chaining with '%s' requires a shell", cmd.Op)
		}
		v.walkStmt(cmd.X, s)
		v.walkStmt(cmd.Y, s)
	default:
		s.reject("shell-compound", "%s requires a shell", compoundName(cmd))
	}
}

func (v *Validator) walkCall(call *syntax.CallExpr, s *scan) {
	for _, a := range call.Assigns {
		name := "?"
		if a.Name != nil {
			name = a.Name.Value
		}
		s.reject("shell-assignment", "environment assignment %s= requires a shell", name)
	}
	if len(call.Args) == 0 {
		return
	}

	argv := make([]string, 0, len(call.Args))
	literal := true
	for _, w := range call.Args {
		arg, ok := wordLiteral(w, s)
		if !ok {
			literal = false
			continue
		}
		argv = append(argv, arg)
	}
	if literal {
		s.calls = append(s.calls, argv)
	}
}

// wordLiteral expands a word with quote removal only. Any construct whose
// value depends on a shell (variables, substitutions, braces, ~user) is
// reported and the word is dropped. Glob characters stay literal.
func wordLiteral(w *syntax.Word, s *scan) (string, bool) {
	ok := true
	syntax.Walk(w, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			name := ""
			if n.Param != nil {
				name = n.Param.Value
			}
			s.reject("shell-expansion", "parameter expansion $%s requires a shell", name)
			ok = false
		case *syntax.CmdSubst:
			s.reject("shell-substitution", "command substitution is not allowed")
			ok = false
		case *syntax.ArithmExp:
			s.reject("shell-expansion", "arithmetic expansion requires a shell")
			ok = false
		case *syntax.ProcSubst:
			s.reject("shell-substitution", "process substitution is not allowed")
			ok = false
		case *syntax.ExtGlob:
			s.reject("shell-expansion", "extended glob %s requires a shell", n.Op)
			ok = false
		}
		return true
	})
	if !ok {
		return "", false
	}

	if lit, isLit := w.Parts[0].(*syntax.Lit); isLit && strings.HasPrefix(lit.Value, "~") {
		user, _, _ := strings.Cut(lit.Value[1:], "/")
		if user != "" {
			s.reject("shell-expansion", "tilde expansion ~%s requires a shell", user)
			return "", false
		}
	}

	// A fresh config per call: expand mutates the config it is given. With no
	// environment and no ReadDir, expansion is limited to quote removal and
	// brace splitting.
	fields, err := expand.Fields(&expand.Config{}, w)
	if err != nil {
		s.reject("shell-expansion", "cannot expand word: %v", err)
		return "", false
	}
	if len(fields) != 1 {
		s.reject("shell-expansion", "brace expansion requires a shell")
		return "", false
	}
	return fields[0], true
}

func (v *Validator) checkPipe(cmd *syntax.BinaryCmd, s *scan) {
	if call, ok := cmd.Y.Cmd.(*syntax.CallExpr); ok && len(call.Args) > 0 {
		if prog := call.Args[0].Lit(); prog != "" && v.policy.IsInterpreter(programName(prog)) {
			s.reject("pipe-to-interpreter", "piping into interpreter %s is not allowed", prog)
			return
		}
	}
	s.reject("shell-pipeline", "pipeline with '%s' requires a shell", cmd.Op)
}

func (v *Validator) checkRedirect(r *syntax.Redirect, s *scan) {
	if r.Hdoc != nil {
		s.reject("shell-redirect", "here-document requires a shell")
		return
	}
	target := ""
	if r.Word != nil {
		target = r.Word.Lit()
	}
	if target != "" {
		clean := filepath.ToSlash(filepath.Clean(target))
		if clean == "/dev" || strings.HasPrefix(clean, "/dev/") {
			s.reject("redirect-device", "redirection %s %s targets a device", r.Op, target)
			return
		}
		if filepath.IsAbs(target) {
			if dir, ok := v.policy.ProtectedDir(filepath.Clean(target)); ok {
				s.reject("redirect-protected", "redirection %s %s targets protected directory %s", r.Op, target, dir)
				return
			}
		}
	}
	s.reject("shell-redirect", "redirection %s%s requires a shell", r.Op, target)
}

func compoundName(cmd syntax.Command) string {
	switch cmd.(type) {
	case *syntax.Subshell:
		return "subshell"
	case *syntax.Block:
		return "command group"
	case *syntax.IfClause:
		return "if clause"
	case *syntax.WhileClause:
		return "while loop"
	case *syntax.ForClause:
		return "for loop"
	case *syntax.CaseClause:
		return "case clause"
	case *syntax.FuncDecl:
		return "function declaration"
	case *syntax.ArithmCmd:
		return "arithmetic command"
	case *syntax.TestClause:
		return "test clause"
	case *syntax.DeclClause:
		return "declaration builtin"
	case *syntax.LetClause:
		return "let builtin"
	case *syntax.TimeClause:
		return "time clause"
	case *syntax.CoprocClause:
		return "coprocess"
	default:
		return "shell syntax"
	}
}
