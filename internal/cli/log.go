package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/lca/internal/config"
	"github.com/gzhole/lca/internal/logger"
)

var (
	logFilterKind    string
	logFilterOutcome string
	logLast          int
	logSummary       bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the lca audit log with filtering and summary options.

Examples:
  lca log                        # Show all entries
  lca log --last 20              # Show last 20 entries
  lca log --kind patch           # Show only patch records
  lca log --outcome rejected     # Show only rejected commands
  lca log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterKind, "kind", "", "Filter by kind (command, patch)")
	logCmd.Flags().StringVar(&logFilterOutcome, "outcome", "", "Filter by outcome (succeeded, failed, rejected, denied, applied, conflict, ...)")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	// Reading the log needs no policy; a broken policy file must not hide
	// the records that explain it.
	cfg, err := config.Load(config.Flags{WorkDir: workDir, PolicyPath: policyPath, LogDir: logDir})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	records, err := logger.ReadAll(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterRecords(records)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printLogSummary(out, filtered)
		return nil
	}
	printRecords(out, filtered)
	return nil
}

func filterRecords(records []logger.Record) []logger.Record {
	if logFilterKind == "" && logFilterOutcome == "" {
		return records
	}

	var filtered []logger.Record
	for _, r := range records {
		if logFilterKind != "" && !strings.EqualFold(r.Kind, logFilterKind) {
			continue
		}
		if logFilterOutcome != "" && !strings.EqualFold(r.Outcome, logFilterOutcome) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func printRecords(w io.Writer, records []logger.Record) {
	for _, r := range records {
		fmt.Fprintf(w, "%s %s [%s] %s\n", outcomeIcon(r.Outcome), formatTimestamp(r.Timestamp), r.Kind, r.Summary)

		status := r.Outcome
		if r.ExitCode != nil {
			status = fmt.Sprintf("%s (exit %d)", status, *r.ExitCode)
		}
		fmt.Fprintf(w, "     Outcome: %s, %dms\n", status, r.DurationMs)
		if r.Verdict != "" {
			fmt.Fprintf(w, "     Verdict: %s\n", r.Verdict)
		}
		for _, reason := range r.Reasons {
			fmt.Fprintf(w, "     Reason: %s\n", reason)
		}
		if len(r.Files) > 0 {
			fmt.Fprintf(w, "     Files: %s\n", strings.Join(r.Files, ", "))
		}
		if r.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", r.Error)
		}
		fmt.Fprintln(w)
	}
}

func printLogSummary(w io.Writer, records []logger.Record) {
	kinds := map[string]int{}
	outcomes := map[string]int{}
	warnings := 0
	for _, r := range records {
		kinds[r.Kind]++
		outcomes[r.Outcome]++
		if r.Level == logger.LevelWarn || r.Level == logger.LevelError {
			warnings++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  lca Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total records:   %d\n", len(records))
	fmt.Fprintf(w, "  Commands:        %d\n", kinds[logger.KindCommand])
	fmt.Fprintf(w, "  Patches:         %d\n", kinds[logger.KindPatch])
	fmt.Fprintf(w, "  Warn or error:   %d\n", warnings)
	fmt.Fprintln(w, "───────────────────────────────────────────")

	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %d\n", name+":", outcomes[name])
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	fmt.Fprintf(w, "  First record:    %s\n", formatTimestamp(records[0].Timestamp))
	fmt.Fprintf(w, "  Last record:     %s\n", formatTimestamp(records[len(records)-1].Timestamp))

	var blocked []logger.Record
	for _, r := range records {
		if r.Outcome == "rejected" || r.Outcome == "denied" || r.Outcome == "unparseable" {
			blocked = append(blocked, r)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Blocked:")
		if len(blocked) > 10 {
			blocked = blocked[len(blocked)-10:]
		}
		for _, r := range blocked {
			fmt.Fprintf(w, "    %s %s\n", formatTimestamp(r.Timestamp), r.Summary)
		}
	}
	fmt.Fprintln(w)
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case "rejected", "denied", "unparseable":
		return "🛑"
	case "conflict", "dry_run_conflict", "timeout", "canceled":
		return "⚠️"
	case "failed", "spawn_failure", "error":
		return "❌"
	case "succeeded", "applied", "dry_run":
		return "✅"
	case "skipped":
		return "⏭"
	default:
		return "❓"
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
