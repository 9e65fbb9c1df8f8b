// Package cmd provides the CLI commands for the thutuc retrieval service.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/pkg/version"
)

var (
	debugMode bool
	configDir string
)

// NewRootCmd creates the root command for the thutuc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thutuc",
		Short: "Hybrid retrieval over Vietnamese administrative procedures",
		Long: `Thutuc answers questions about Vietnamese administrative procedures
by hybrid retrieval (dense embeddings + BM25) over a two-tier chunk
corpus, with semantic caching and ensemble reranking.

Run 'thutuc index' once to build the vector index, then 'thutuc query'
for one-shot questions or 'thutuc serve' for an interactive session.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("thutuc version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory containing thutuc.yaml")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}
