package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/retention"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Count rows due for anonymization or purge",
	Long: `Report, per entity, how many rows exist, how many still carry personal
data, and how many are past the anonymization and purge thresholds.
Nothing is modified.

Examples:
  retentionctl audit          # Colored table
  retentionctl audit --json   # Machine-readable`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx, cancel := signalContext()
		defer cancel()

		pipeline, err := openPipeline()
		if err != nil {
			fail("failed to open database: %v", err)
		}

		result, err := pipeline.Audit(ctx)
		if err != nil {
			fail("audit failed: %v", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				fail("%v", err)
			}
			return
		}
		renderAudit(os.Stdout, result)
	},
}

// renderAudit prints the audit as a table; non-zero due counts are
// highlighted.
func renderAudit(out io.Writer, result retention.AuditResult) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s (anonymize after %d days, purge after %d days)\n\n",
		bold("Retention audit"), result.AnonymizeAfter, result.PurgeAfter)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tTOTAL\tNOT ANONYMIZED\tANONYMIZE DUE\tPURGE DUE")
	for _, row := range []struct {
		name  string
		stats models.RetentionStats
	}{{retention.EntityEvents, result.Events}, {retention.EntityFeedback, result.Feedback}} {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			row.name, row.stats.Total, row.stats.NotAnonymized,
			due(row.stats.AnonymizeDue, color.YellowString), due(row.stats.PurgeDue, color.RedString))
	}
	w.Flush()

	pending := result.Events.AnonymizeDue + result.Events.PurgeDue + result.Feedback.AnonymizeDue + result.Feedback.PurgeDue
	fmt.Fprintln(out)
	if pending == 0 {
		fmt.Fprintf(out, "%s Nothing is due\n", color.GreenString("✓"))
	} else {
		fmt.Fprintf(out, "Run %s and %s to enforce the policy\n",
			color.CyanString("retentionctl anonymize"), color.CyanString("retentionctl purge"))
	}
}

func due(n int64, paint func(format string, a ...interface{}) string) string {
	if n == 0 {
		return "0"
	}
	return paint("%d", n)
}

func init() {
	auditCmd.Flags().Bool("json", false, "Print the audit as JSON")
	rootCmd.AddCommand(auditCmd)
}
