package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all personal data held for one user",
	Long: `Print, as JSON, every monitoring event and feedback record that still
references the user. Anonymized rows are not included.

Examples:
  retentionctl export --user 42 > user-42.json`,
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")

		ctx, cancel := signalContext()
		defer cancel()

		pipeline, err := openPipeline()
		if err != nil {
			fail("failed to open database: %v", err)
		}
		export, err := pipeline.ExportSubjectData(ctx, userID)
		if err != nil {
			fail("export failed: %v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			fail("%v", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d event(s) and %d feedback record(s)\n", len(export.Events), len(export.Feedback))
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Anonymize all data held for one user now",
	Long: `Anonymize every row referencing the user regardless of age. Rows stay
for aggregate statistics and are purged on the normal schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")

		ctx, cancel := signalContext()
		defer cancel()

		pipeline, err := openPipeline()
		if err != nil {
			fail("failed to open database: %v", err)
		}
		counts, err := pipeline.EraseSubjectData(ctx, userID)
		if err != nil {
			report(os.Stdout, "Erased", counts, err)
			return
		}
		fmt.Printf("%s Erased personal data for %s: %s\n", color.GreenString("✓"), color.CyanString(userID), counts)
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, eraseCmd} {
		c.Flags().String("user", "", "User id (required)")
		_ = c.MarkFlagRequired("user")
		rootCmd.AddCommand(c)
	}
}
