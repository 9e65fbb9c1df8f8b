package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/internal/config"
	"github.com/nhdandz/ThuTucHanhChinh/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print corpus and query telemetry statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()

			chunks, bm25, err := loadCorpus(cfg, logger)
			if err != nil {
				return err
			}
			ls := bm25.Stats()
			fmt.Fprintf(out, "Corpus\n")
			fmt.Fprintf(out, "  chunks:      %d\n", chunks.Len())
			fmt.Fprintf(out, "  procedures:  %d\n", chunks.NumProcedures())
			fmt.Fprintf(out, "  vocabulary:  %d terms\n", ls.VocabSize)
			fmt.Fprintf(out, "  avg doc len: %.1f tokens\n", ls.AvgDocLength)

			snap := cfg.Snapshot()
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nConfiguration\n%s\n", data)

			if !cfg.Telemetry.Enabled || cfg.Telemetry.DBPath == "" {
				fmt.Fprintln(out, "\nTelemetry disabled")
				return nil
			}
			telStore, err := telemetry.OpenSQLiteStore(cfg.Telemetry.DBPath)
			if err != nil {
				return err
			}
			defer telStore.Close()

			return printTelemetry(out, telStore, days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "how many days of telemetry to report")
	return cmd
}

func printTelemetry(out io.Writer, s *telemetry.SQLiteStore, days int) error {
	to := time.Now().Format("2006-01-02")
	from := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	intents, err := s.IntentCounts(from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nQueries by intent (%s to %s)\n", from, to)
	if len(intents) == 0 {
		fmt.Fprintln(out, "  none recorded")
	}
	for _, name := range sortedKeys(intents) {
		fmt.Fprintf(out, "  %-14s %d\n", name, intents[name])
	}

	latencies, err := s.LatencyCounts(from, to)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nLatency distribution")
	for _, b := range telemetry.AllLatencyBuckets {
		if n, ok := latencies[b]; ok {
			fmt.Fprintf(out, "  %-8s %d\n", b, n)
		}
	}

	zeros, err := s.ZeroResultQueries(10)
	if err != nil {
		return err
	}
	if len(zeros) > 0 {
		fmt.Fprintln(out, "\nRecent zero-result questions")
		for _, q := range zeros {
			fmt.Fprintf(out, "  %s\n", q)
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
