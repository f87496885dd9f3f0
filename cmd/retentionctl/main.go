// Command retentionctl runs retention and subject-request operations
// against the observability database from an operator shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pennywise/observability/internal/audit"
	"github.com/pennywise/observability/internal/repository"
	"github.com/pennywise/observability/internal/retention"
	"github.com/pennywise/observability/pkg/config"
	"github.com/pennywise/observability/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "retentionctl",
	Short: "Retention and privacy operations for client observability data",
	Long: `Inspect and enforce the retention policy over monitoring events and
feedback, and serve export/erasure requests for a single user.

Configuration is read from the environment (and .env), the same keys the
API server uses: DATABASE_URL, ANONYMIZE_AFTER_DAYS, PURGE_AFTER_DAYS,
RETENTION_BATCH_SIZE, JWT_SECRET.`,
	SilenceUsage: true,
}

var cfg *config.Config

func main() {
	cobra.OnInitialize(func() {
		cfg = config.Load()
		level := logger.WARN
		if verbose, _ := rootCmd.PersistentFlags().GetBool("verbose"); verbose {
			level = logger.INFO
		}
		logger.SetDefault(logger.NewLogger(level, os.Stderr, cfg.LogJSON))
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
	}
}

// signalContext is cancelled on Ctrl-C so long runs stop between batches.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return retention.WithActor(ctx, "cli"), cancel
}

// openPipeline connects to the database without migrating it.
func openPipeline() (*retention.Pipeline, error) {
	db, err := repository.Open(cfg)
	if err != nil {
		return nil, err
	}
	return retention.New(retention.Options{
		Events:   repository.NewEventRepository(db),
		Feedback: repository.NewFeedbackRepository(db),
		Policy: retention.Policy{
			AnonymizeAfter: cfg.AnonymizeAfter(),
			PurgeAfter:     cfg.PurgeAfter(),
			BatchSize:      cfg.RetentionBatchSize,
		},
		Audit: audit.NewAuditLogger(100),
	}), nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}
