package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultConfigDir  = ".agent"
	DefaultPolicyFile = "policy.yaml"
	DefaultPacksDir   = "packs"
	DefaultLogDir     = "logs"
	DefaultLogFile    = "audit.jsonl"
	DefaultTimeout    = 300 * time.Second
)

// Environment variables, overridden by the matching flags.
const (
	EnvWorkDir        = "AGENT_WORKDIR"
	EnvLogDir         = "AGENT_LOG_DIR"
	EnvPolicy         = "AGENT_POLICY"
	EnvTimeout        = "AGENT_TIMEOUT"
	EnvNonInteractive = "AGENT_NONINTERACTIVE_OVERRIDE"
)

type Config struct {
	// WorkDir is the workspace root as configured; pathguard canonicalizes it.
	WorkDir    string
	ConfigDir  string
	PolicyPath string
	PacksDir   string
	LogPath    string
	Timeout    time.Duration
	// NonInteractiveOverride lets overridable confirmations pass without a
	// prompt.
	NonInteractiveOverride bool
}

// Flags carries command-line values; zero values mean "not given".
type Flags struct {
	WorkDir        string
	PolicyPath     string
	LogDir         string
	Timeout        time.Duration
	NonInteractive bool
}

// Load resolves configuration with flags over environment over defaults.
func Load(flags Flags) (*Config, error) {
	return load(flags, os.Getenv)
}

func load(flags Flags, getenv func(string) string) (*Config, error) {
	workDir := firstNonEmpty(flags.WorkDir, getenv(EnvWorkDir), ".")
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workdir: %w", err)
	}

	configDir := filepath.Join(workDir, DefaultConfigDir)
	cfg := &Config{
		WorkDir:   workDir,
		ConfigDir: configDir,
		PacksDir:  filepath.Join(configDir, DefaultPacksDir),
		Timeout:   DefaultTimeout,
	}

	cfg.PolicyPath = inWorkDir(workDir, firstNonEmpty(flags.PolicyPath, getenv(EnvPolicy),
		filepath.Join(configDir, DefaultPolicyFile)))

	logDir := inWorkDir(workDir, firstNonEmpty(flags.LogDir, getenv(EnvLogDir),
		filepath.Join(configDir, DefaultLogDir)))
	cfg.LogPath = filepath.Join(logDir, DefaultLogFile)

	switch {
	case flags.Timeout > 0:
		cfg.Timeout = flags.Timeout
	case getenv(EnvTimeout) != "":
		if cfg.Timeout, err = parseTimeout(getenv(EnvTimeout)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvTimeout, err)
		}
	}

	cfg.NonInteractiveOverride = flags.NonInteractive
	if !cfg.NonInteractiveOverride {
		if v := getenv(EnvNonInteractive); v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", EnvNonInteractive, err)
			}
			cfg.NonInteractiveOverride = on
		}
	}

	return cfg, nil
}

// ProtectedPaths lists the files and directories that commands and patches
// run by lca must never write: the config directory, the policy, the packs
// and the audit log with its rotated backup.
func (c *Config) ProtectedPaths() []string {
	return []string{c.ConfigDir, c.PolicyPath, c.PacksDir, c.LogPath, c.LogPath + ".1"}
}

// parseTimeout accepts a Go duration ("90s", "5m") or whole seconds ("90").
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("timeout must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return d, nil
}

// inWorkDir anchors relative paths at the workspace, not the process cwd.
func inWorkDir(workDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
