package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a policy file. A missing file yields DefaultPolicy; empty lists
// in a present file fall back to the defaults for that list.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}

	def := DefaultPolicy()
	if len(policy.Destructive) == 0 {
		policy.Destructive = def.Destructive
	}
	if len(policy.Writers) == 0 {
		policy.Writers = def.Writers
	}
	if len(policy.Interpreters) == 0 {
		policy.Interpreters = def.Interpreters
	}
	if len(policy.ProtectedDirs) == 0 {
		policy.ProtectedDirs = def.ProtectedDirs
	}
	if len(policy.EnvPassthrough) == 0 {
		policy.EnvPassthrough = def.EnvPassthrough
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return &policy, nil
}

// Validate checks that every allow-list entry names a bare program exactly once.
func (p *Policy) Validate() error {
	seen := make(map[string]bool)
	for i, e := range p.Allow {
		if e.Program == "" {
			return fmt.Errorf("allow[%d]: program is required", i)
		}
		if strings.ContainsAny(e.Program, `/\`) {
			return fmt.Errorf("allow[%d]: program %q must be a bare name, not a path", i, e.Program)
		}
		if seen[e.Program] {
			return fmt.Errorf("allow[%d]: duplicate entry for %q", i, e.Program)
		}
		seen[e.Program] = true
		for _, d := range e.DenyArgs {
			if d == "" {
				return fmt.Errorf("allow[%d]: empty deny_args pattern for %q", i, e.Program)
			}
		}
	}
	for i, d := range p.Destructive {
		if d == "" {
			return fmt.Errorf("destructive[%d]: empty program name", i)
		}
	}
	for i, w := range p.Writers {
		if w == "" {
			return fmt.Errorf("writers[%d]: empty program name", i)
		}
	}
	return nil
}

func DefaultPolicy() *Policy {
	return &Policy{
		Version: "0.1",
		Allow: []Entry{
			{Program: "ls"},
			{Program: "pwd"},
			{Program: "echo"},
			{Program: "cat"},
			{Program: "head"},
			{Program: "tail"},
			{Program: "wc"},
			{Program: "sort"},
			{Program: "uniq"},
			{Program: "cut"},
			{Program: "diff"},
			{Program: "stat"},
			{Program: "file"},
			{Program: "tree"},
			{Program: "du"},
			{Program: "which"},
			{Program: "grep"},
			{Program: "rg"},
			{Program: "mkdir"},
			{Program: "touch"},
			{Program: "cp"},
			{Program: "mv"},
			{Program: "rm", Reason: "Removes files; targets are checked against the workspace."},
			{Program: "rmdir"},
			{
				Program:  "find",
				DenyArgs: StringOrList{"-exec", "-execdir", "-ok", "-okdir", "-delete", "-fprint", "-fprintf", "-fls"},
			},
			{Program: "sed", Confirm: true, Reason: "sed scripts can write files and run commands."},
			{
				Program: "git",
				Subcommands: StringOrList{
					"status", "diff", "log", "show", "branch", "add", "commit",
					"checkout", "switch", "restore", "stash", "rev-parse",
					"ls-files", "blame", "grep", "tag", "init",
				},
				DenyArgs: StringOrList{"-c", "--exec-path", "--upload-pack", "--config-env"},
			},
			{
				Program:     "go",
				Subcommands: StringOrList{"build", "test", "vet", "fmt", "mod", "list", "version", "env", "doc", "run"},
			},
			{Program: "gofmt"},
			{Program: "make", Confirm: true, Reason: "Makefile recipes run arbitrary commands."},
			{Program: "pytest"},
			{Program: "python", Confirm: true, Reason: "Interpreters can run arbitrary code."},
			{Program: "python3", Confirm: true, Reason: "Interpreters can run arbitrary code."},
			{Program: "pip", Subcommands: StringOrList{"install", "list", "show", "freeze"}, Confirm: true, Reason: "Package installs can introduce supply-chain risk."},
			{Program: "node", Confirm: true, Reason: "Interpreters can run arbitrary code."},
			{Program: "npm", Subcommands: StringOrList{"install", "ci", "test", "run", "ls"}, Confirm: true, Reason: "Package installs can introduce supply-chain risk."},
		},
		Destructive: []string{"rm", "rmdir", "unlink", "del", "rd", "Remove-Item"},
		Writers:     []string{"mkdir", "touch", "cp", "mv", "ln", "tee", "chmod", "install", "rsync"},
		Interpreters: []string{
			"sh", "bash", "zsh", "dash", "ksh", "fish",
			"python", "python3", "perl", "ruby", "node", "php",
			"powershell", "pwsh", "cmd",
		},
		ProtectedPaths: []string{
			"~/.ssh/**",
			"~/.aws/**",
			"~/.gnupg/**",
			"~/.config/gcloud/**",
			"~/.kube/**",
			"~/.netrc",
			"~/.npmrc",
			"~/.pypirc",
		},
		ProtectedDirs: []string{
			"/etc", "/usr", "/sys", "/proc", "/boot", "/dev",
			"/bin", "/sbin", "/lib", "/lib64", "/var", "/root",
			"/System", "/Library",
		},
		EnvPassthrough: []string{"PATH", "HOME", "LANG", "LC_ALL", "TERM", "TMPDIR", "USER"},
	}
}
