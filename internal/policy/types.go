package policy

// Policy is the data-driven allow-list table consulted by the command
// validator, plus the path and environment lists that go with it.
type Policy struct {
	Version        string   `yaml:"version"`
	Allow          []Entry  `yaml:"allow"`
	Destructive    []string `yaml:"destructive"`
	Writers        []string `yaml:"writers"`
	Interpreters   []string `yaml:"interpreters"`
	ProtectedPaths []string `yaml:"protected_paths"`
	ProtectedDirs  []string `yaml:"protected_dirs"`
	EnvPassthrough []string `yaml:"env_passthrough"`
}

// Entry allows one program. Subcommands, when set, restrict the first
// positional argument; DenyArgs refuse specific flags anywhere in argv.
type Entry struct {
	Program     string       `yaml:"program"`
	Subcommands StringOrList `yaml:"subcommands,omitempty"`
	DenyArgs    StringOrList `yaml:"deny_args,omitempty"`
	Confirm     bool         `yaml:"confirm,omitempty"`
	Reason      string       `yaml:"reason,omitempty"`
}

// StringOrList allows YAML fields to accept either a single string or a list.
// "status" → ["status"], ["status", "diff"] → ["status", "diff"]
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Lookup returns the allow-list entry for a bare program name.
func (p *Policy) Lookup(program string) (Entry, bool) {
	for _, e := range p.Allow {
		if e.Program == program {
			return e, true
		}
	}
	return Entry{}, false
}

// IsDestructive reports whether program gets the destructive-target checks.
func (p *Policy) IsDestructive(program string) bool {
	return contains(p.Destructive, program)
}

// IsWriter reports whether program creates or overwrites its operands and so
// gets the write-target checks.
func (p *Policy) IsWriter(program string) bool {
	return contains(p.Writers, program)
}

// IsInterpreter reports whether program executes code read from stdin.
func (p *Policy) IsInterpreter(program string) bool {
	return contains(p.Interpreters, program)
}

// AllowsSubcommand reports whether sub is permitted. Entries without a
// subcommand list permit anything.
func (e Entry) AllowsSubcommand(sub string) bool {
	if len(e.Subcommands) == 0 {
		return true
	}
	return contains(e.Subcommands, sub)
}

// DeniedArg returns the deny_args pattern matched by arg, if any. A pattern
// also matches its "--flag=value" form.
func (e Entry) DeniedArg(arg string) (string, bool) {
	for _, d := range e.DenyArgs {
		if arg == d {
			return d, true
		}
		if len(arg) > len(d) && arg[:len(d)] == d && arg[len(d)] == '=' {
			return d, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
