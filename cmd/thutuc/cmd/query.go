package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/internal/retrieval"
)

// queryOutput is the JSON shape emitted by --json.
type queryOutput struct {
	Question   string            `json:"question"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Degraded   bool              `json:"degraded"`
	Chunks     int               `json:"chunks"`
	Context    string            `json:"context"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Elapsed    string            `json:"elapsed"`
}

func newQueryCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a single question and print the assembled context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			result, err := a.pipeline.Retrieve(cmd.Context(), retrieval.NewSessionID(), args[0])
			elapsed := time.Since(start)
			if err != nil && result == nil {
				return err
			}

			if jsonOut {
				out := queryOutput{
					Question:   args[0],
					Intent:     string(result.Intent),
					Confidence: result.Confidence,
					Degraded:   result.Degraded,
					Chunks:     len(result.Chunks),
					Context:    result.ContextText,
					Metadata:   result.Metadata,
					Elapsed:    elapsed.Round(time.Millisecond).String(),
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.ContextText)
			fmt.Fprintf(os.Stderr, "intent=%s confidence=%.2f chunks=%d degraded=%v elapsed=%s\n",
				result.Intent, result.Confidence, len(result.Chunks), result.Degraded,
				elapsed.Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the result as JSON")
	return cmd
}
