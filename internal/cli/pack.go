package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/lca/internal/config"
	"github.com/gzhole/lca/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage policy packs",
	Long: `Manage lca policy packs.

Policy packs are YAML files that add programs and protected paths to the
allow-list. Packs live in <workdir>/.agent/packs/ and are merged with the
base policy on every invocation. A pack whose file name starts with "_" is
disabled.

Examples:
  lca pack list                  # List installed packs
  lca pack enable node           # Enable a pack
  lca pack disable python        # Disable a pack
  lca pack show node             # Show pack contents`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed policy packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled policy pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a policy pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the contents of a policy pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	rootCmd.AddCommand(packCmd)
}

// packsDir loads only the configuration, so a pack that breaks the merged
// policy can still be listed and disabled.
func packsDir() (string, error) {
	cfg, err := config.Load(config.Flags{WorkDir: workDir, PolicyPath: policyPath, LogDir: logDir})
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.PacksDir, nil
}

func packList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	_, infos, mergeErr := policy.LoadPacks(dir, policy.DefaultPolicy())
	if len(infos) == 0 {
		if mergeErr != nil {
			return fmt.Errorf("failed to load packs: %w", mergeErr)
		}
		fmt.Fprintln(out, "No policy packs installed.")
		fmt.Fprintf(out, "\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Fprintln(out, "Installed Policy Packs:")
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  %-25s %s\n", packStatus(info), info.Name, info.Description)
		switch {
		case info.Error != "":
			fmt.Fprintf(out, "       error: %s\n", info.Error)
		case info.Version != "":
			fmt.Fprintf(out, "       v%s by %s  (%d programs)\n", info.Version, info.Author, info.EntryCount)
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "\nPacks directory: %s\n", dir)
	if mergeErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nwarning: %v\n", mergeErr)
	}
	return nil
}

func packStatus(info policy.PackInfo) string {
	switch {
	case info.Error != "":
		return "⚠️"
	case info.Enabled:
		return "✅"
	default:
		return "❌"
	}
}

// findPack returns the file for name, enabled or not, with either YAML
// extension.
func findPack(dir, name string) (path string, enabled bool, err error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "_") {
		return "", false, fmt.Errorf("invalid pack name %q", name)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		if p := filepath.Join(dir, name+ext); fileExists(p) {
			return p, true, nil
		}
		if p := filepath.Join(dir, "_"+name+ext); fileExists(p) {
			return p, false, nil
		}
	}
	return "", false, fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func packEnable(cmd *cobra.Command, args []string) error {
	return togglePack(cmd, args[0], true)
}

func packDisable(cmd *cobra.Command, args []string) error {
	return togglePack(cmd, args[0], false)
}

func togglePack(cmd *cobra.Command, name string, enable bool) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	path, enabled, err := findPack(dir, name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	state := "disabled"
	if enable {
		state = "enabled"
	}
	if enabled == enable {
		fmt.Fprintf(out, "Pack '%s' is already %s.\n", name, state)
		return nil
	}

	base := filepath.Base(path)
	target := filepath.Join(dir, "_"+base)
	if enable {
		target = filepath.Join(dir, strings.TrimPrefix(base, "_"))
	}
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to %s pack: %w", strings.TrimSuffix(state, "d"), err)
	}
	if enable {
		fmt.Fprintf(out, "✅ Pack '%s' enabled.\n", name)
	} else {
		fmt.Fprintf(out, "❌ Pack '%s' disabled.\n", name)
	}
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	path, _, err := findPack(dir, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
