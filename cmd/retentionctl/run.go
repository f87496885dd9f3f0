package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pennywise/observability/internal/retention"
)

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Anonymize rows past the anonymization threshold",
	Long: `Clear user ids, IP addresses, user agents and browser strings on every
row older than ANONYMIZE_AFTER_DAYS that still carries them. Safe to
re-run; rows already anonymized are left alone.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		pipeline, err := openPipeline()
		if err != nil {
			fail("failed to open database: %v", err)
		}
		counts, err := pipeline.AnonymizeDue(ctx)
		report(os.Stdout, "Anonymized", counts, err)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently delete rows past the purge threshold",
	Long: `Delete every monitoring event and feedback record older than
PURGE_AFTER_DAYS, anonymized or not. This cannot be undone.

Examples:
  retentionctl purge         # Asks for confirmation
  retentionctl purge --yes   # For cron jobs`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx, cancel := signalContext()
		defer cancel()

		pipeline, err := openPipeline()
		if err != nil {
			fail("failed to open database: %v", err)
		}

		if !yes {
			result, err := pipeline.Audit(ctx)
			if err != nil {
				fail("audit failed: %v", err)
			}
			due := result.Events.PurgeDue + result.Feedback.PurgeDue
			if due == 0 {
				fmt.Printf("%s Nothing to purge\n", color.GreenString("✓"))
				return
			}
			prompt := fmt.Sprintf("%s permanently delete %d row(s)? Type 'purge' to confirm: ",
				color.YellowString("WARNING:"), due)
			if !confirm(os.Stdin, os.Stdout, prompt, "purge") {
				fmt.Println("Aborted")
				return
			}
		}

		counts, err := pipeline.PurgeDue(ctx)
		report(os.Stdout, "Purged", counts, err)
	},
}

// confirm reads one line from in and reports whether it equals word.
func confirm(in io.Reader, out io.Writer, prompt, word string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == word
}

// report prints counts and exits non-zero on failure. A partial failure
// still prints what was committed.
func report(out io.Writer, verb string, counts retention.Counts, err error) {
	if err == nil {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(out, "%s %s %d row(s): %s\n", green("✓"), verb, counts.Total(), counts)
		return
	}

	var partial *retention.PartialFailure
	switch {
	case errors.Is(err, retention.ErrRunInProgress):
		fail("another retention run is in progress; try again later")
	case errors.As(err, &partial):
		fmt.Fprintf(out, "%s %s %d row(s) before failing: %s\n", color.YellowString("!"), verb, partial.Counts.Total(), partial.Counts)
		fail("%v", err)
	default:
		fail("%v", err)
	}
}

func init() {
	purgeCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(anonymizeCmd)
	rootCmd.AddCommand(purgeCmd)
}
