package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/lca/internal/policy"
)

var whoamiFormat string

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the effective configuration",
	Long: `Print the workspace root, policy, log location and limits this
invocation would use, the allow-listed programs available on PATH, and the
installed policy packs.

Example:
  lca whoami
  lca whoami --format yaml`,
	Args: cobra.NoArgs,
	RunE: whoamiCommand,
}

func init() {
	whoamiCmd.Flags().StringVar(&whoamiFormat, "format", "text", "Output format: text or yaml")
	rootCmd.AddCommand(whoamiCmd)
}

type whoamiReport struct {
	WorkDir                string            `yaml:"workdir"`
	PolicyPath             string            `yaml:"policy"`
	PolicyLoaded           bool              `yaml:"policy_file_present"`
	PacksDir               string            `yaml:"packs_dir"`
	LogPath                string            `yaml:"log"`
	Timeout                string            `yaml:"timeout"`
	NonInteractiveOverride bool              `yaml:"noninteractive_override"`
	System                 map[string]string `yaml:"system"`
	Available              []string          `yaml:"available_programs"`
	Missing                []string          `yaml:"missing_programs,omitempty"`
	Packs                  []policy.PackInfo `yaml:"packs,omitempty"`
}

func whoamiCommand(cmd *cobra.Command, args []string) error {
	if whoamiFormat != "text" && whoamiFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want text or yaml)", whoamiFormat)
	}
	s, err := loadSession(0, false)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(s.cfg.PolicyPath)
	report := whoamiReport{
		WorkDir:                s.guard.Root(),
		PolicyPath:             s.cfg.PolicyPath,
		PolicyLoaded:           statErr == nil,
		PacksDir:               s.cfg.PacksDir,
		LogPath:                s.cfg.LogPath,
		Timeout:                s.cfg.Timeout.String(),
		NonInteractiveOverride: s.cfg.NonInteractiveOverride,
		System: map[string]string{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
			"go":   runtime.Version(),
		},
		Packs: s.packs,
	}
	for _, e := range s.policy.Allow {
		if _, err := exec.LookPath(e.Program); err == nil {
			report.Available = append(report.Available, e.Program)
		} else {
			report.Missing = append(report.Missing, e.Program)
		}
	}

	out := cmd.OutOrStdout()
	if whoamiFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}
	printWhoami(out, report)
	return nil
}

func printWhoami(w io.Writer, r whoamiReport) {
	policyNote := ""
	if !r.PolicyLoaded {
		policyNote = " (not found, using built-in defaults)"
	}
	fmt.Fprintln(w, "lca Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "  Working Directory:  %s\n", r.WorkDir)
	fmt.Fprintf(w, "  Policy:             %s%s\n", r.PolicyPath, policyNote)
	fmt.Fprintf(w, "  Packs Directory:    %s\n", r.PacksDir)
	fmt.Fprintf(w, "  Audit Log:          %s\n", r.LogPath)
	fmt.Fprintf(w, "  Command Timeout:    %s\n", r.Timeout)
	fmt.Fprintf(w, "  Override Prompts:   %t\n", r.NonInteractiveOverride)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "  System:             %s/%s, %s\n", r.System["os"], r.System["arch"], r.System["go"])
	fmt.Fprintf(w, "  Available Commands: %s\n", strings.Join(r.Available, ", "))
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "  Not on PATH:        %s\n", strings.Join(r.Missing, ", "))
	}
	if len(r.Packs) > 0 {
		fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, p := range r.Packs {
			fmt.Fprintf(w, "  %s %s\n", packStatus(p), p.Name)
		}
	}
}
