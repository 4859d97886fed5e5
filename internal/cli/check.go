package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/lca/internal/command"
)

var (
	checkYes    bool
	checkFormat string
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] -- <command> [args...]",
	Short: "Classify a command without running it",
	Long: `Report whether a command would be allowed, need confirmation, or be
rejected, and why. Nothing is executed and nothing is logged.

Exit status: 0 allowed, 3 needs confirmation, 2 rejected or unparseable.

Example:
  lca check -- 'ls; rm -rf /'
  lca check --format yaml -- git push`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().BoolVarP(&checkYes, "yes", "y", false, "Classify as if overridable confirmations were pre-approved")
	checkCmd.Flags().StringVar(&checkFormat, "format", "text", "Output format: text or yaml")
	rootCmd.AddCommand(checkCmd)
}

// checkReport is the yaml form of a verdict.
type checkReport struct {
	Verdict    string   `yaml:"verdict"`
	Argv       []string `yaml:"argv,omitempty"`
	Rules      []string `yaml:"rules,omitempty"`
	Reasons    []string `yaml:"reasons,omitempty"`
	Overridden bool     `yaml:"overridden,omitempty"`
}

func checkCommand(cmd *cobra.Command, args []string) error {
	if checkFormat != "text" && checkFormat != "yaml" {
		return fmt.Errorf("unknown format %q (want text or yaml)", checkFormat)
	}
	raw, err := commandString(args)
	if err != nil {
		return err
	}

	s, err := loadSession(0, checkYes)
	if err != nil {
		return err
	}
	validator := command.NewValidator(s.guard, s.policy, command.Options{AllowOverride: s.cfg.NonInteractiveOverride})

	verdict, err := validator.Classify(raw)
	if err != nil {
		return &ExitError{Code: ExitBlocked, Err: err}
	}

	out := cmd.OutOrStdout()
	if checkFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(checkReport{
			Verdict:    verdict.Kind.String(),
			Argv:       verdict.Argv,
			Rules:      verdict.Rules,
			Reasons:    verdict.Reasons,
			Overridden: verdict.Overridden,
		}); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, verdict.Explain())
	}

	switch verdict.Kind {
	case command.Rejected:
		return exitWith(ExitBlocked)
	case command.NeedsConfirmation:
		return exitWith(ExitNeedsConfirmation)
	}
	return nil
}
