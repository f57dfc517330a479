// Command blobferry moves records from the application's data API (or its
// SQLite database) into a size-bounded document store, pushing inline
// base64 blobs to object storage on the way.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "blobferry",
		Short: "Migrate records and externalize their inline blobs",
		Long: `blobferry reads records of one kind, uploads inline base64 blobs to
object storage, replaces them with URLs and writes each record to the
document store, one item at a time.

Every outcome is kept in a local ledger so failed items can be retried
by reason instead of by hand-kept ID lists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "blobferry.yaml", "Path to the configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(flags),
		newRetryCmd(flags),
		newInspectCmd(flags),
		newLedgerCmd(flags),
		newConfigCmd(),
	)
	return root
}
