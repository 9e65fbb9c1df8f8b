package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/internal/config"
	"github.com/nhdandz/ThuTucHanhChinh/internal/preflight"
)

// newCheckCmd creates the check command.
func newCheckCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the environment before serving or indexing",
		Long: `Check verifies the corpus file, index directory, disk space,
vector index dimensionality and the Ollama endpoint. Required failures
exit non-zero; collaborator warnings do not, since retrieval degrades
gracefully without them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}

			checker := preflight.New(cfg,
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context())
			checker.PrintResults(results)

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show per-check details")
	return cmd
}
