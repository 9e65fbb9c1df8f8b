package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/internal/retrieval"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an interactive question loop on stdin",
		Long: `Reads questions line by line from stdin and prints the assembled
context for each. Maintenance commands start with a colon:

  :stats          print cache and corpus statistics
  :config         print the effective configuration
  :clear          drop every cache entry
  :clear-expired  drop only expired cache entries
  :quit           exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if a.cfg.Store.WatchReload {
				watcher := store.NewReloadWatcher(
					a.cfg.Store.ChunksFile,
					a.cfg.WatchDebounceDuration(),
					a.reloadCorpus,
					a.logger,
				)
				if err := watcher.Start(ctx); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			out := cmd.OutOrStdout()
			sessionID := retrieval.NewSessionID()
			fmt.Fprintln(out, "thutuc ready. Type a question, or :quit to exit.")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if ctx.Err() != nil {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if strings.HasPrefix(line, ":") {
					if quit := a.runMaintenance(out, line); quit {
						return nil
					}
					continue
				}

				start := time.Now()
				result, err := a.pipeline.Retrieve(ctx, sessionID, line)
				if err != nil && result == nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				fmt.Fprintln(out, result.ContextText)
				fmt.Fprintf(out, "[intent=%s confidence=%.2f chunks=%d degraded=%v elapsed=%s]\n",
					result.Intent, result.Confidence, len(result.Chunks), result.Degraded,
					time.Since(start).Round(time.Millisecond))
				if err != nil {
					fmt.Fprintf(out, "warning: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}
}

// runMaintenance handles colon commands. Returns true when the loop should
// exit.
func (a *app) runMaintenance(out io.Writer, line string) bool {
	switch line {
	case ":quit", ":q", ":exit":
		return true
	case ":stats":
		cs := a.pipeline.Cache().Stats()
		ls := a.bm25.Stats()
		fmt.Fprintf(out, "cache: size=%d hits=%d misses=%d hit_rate=%.2f evictions=%d expired=%d\n",
			cs.Size, cs.Hits, cs.Misses, cs.HitRate, cs.Evictions, cs.Expired)
		fmt.Fprintf(out, "corpus: chunks=%d procedures=%d vectors=%d vocab=%d avg_doc_len=%.1f\n",
			a.chunks.Len(), a.chunks.NumProcedures(), a.vectors.Count(), ls.VocabSize, ls.AvgDocLength)
	case ":config":
		snap := a.cfg.Snapshot()
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			break
		}
		fmt.Fprintln(out, string(data))
	case ":clear":
		a.pipeline.Cache().Clear()
		fmt.Fprintln(out, "cache cleared")
	case ":clear-expired":
		removed := a.pipeline.Cache().ClearExpired()
		fmt.Fprintf(out, "removed %d expired entries\n", removed)
	default:
		fmt.Fprintf(out, "unknown command %q (try :stats, :config, :clear, :clear-expired, :quit)\n", line)
	}
	return false
}
