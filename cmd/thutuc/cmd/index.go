package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhdandz/ThuTucHanhChinh/internal/config"
	"github.com/nhdandz/ThuTucHanhChinh/internal/embed"
	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// embedBatchSize bounds how many chunks go to the embedder per request.
const embedBatchSize = 32

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from the chunk corpus",
		Long: `Loads the chunk corpus, embeds every chunk through the configured
embedding model and writes the vector index to the index directory.
Concurrent builds against the same index directory are serialized with
a file lock.`,
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

			return buildIndex(cmd.Context(), cfg, logger, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when an index already exists")
	return cmd
}

func buildIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger, force bool) error {
	lock := store.NewBuildLock(cfg.Store.IndexDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return therrors.New(therrors.CodeInvalidInput,
			fmt.Sprintf("index build already in progress, lock held at %s", lock.Path()), nil)
	}
	defer lock.Unlock()

	indexPath := filepath.Join(cfg.Store.IndexDir, vectorIndexFile)
	if !force {
		if dims, err := store.ReadHNSWStoreDimensions(indexPath); err == nil && dims > 0 {
			logger.Info("index already exists, use --force to rebuild",
				slog.String("path", indexPath),
				slog.Int("dimensions", dims))
			return nil
		}
	}

	chunks, _, err := loadCorpus(cfg, logger)
	if err != nil {
		return err
	}

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: cfg.Store.Dimensions})
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder := embed.NewRetryingEmbedder(
		embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Models.OllamaHost,
			Model:      cfg.Models.EmbedModel,
			Dimensions: cfg.Store.Dimensions,
		}),
		therrors.DefaultRetryConfig(),
	)
	defer embedder.Close()

	all := chunks.All()
	start := time.Now()
	for offset := 0; offset < len(all); offset += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + embedBatchSize
		if end > len(all) {
			end = len(all)
		}
		batch := all[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = embeddingText(c)
		}

		embCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Embedder*time.Duration(len(batch)))
		vecs, err := embedder.EmbedBatch(embCtx, texts)
		cancel()
		if err != nil {
			return therrors.Wrap(therrors.CodeEmbedderUnavailable, err)
		}
		if err := vectors.Add(ctx, batch, vecs); err != nil {
			return err
		}

		logger.Info("indexed batch",
			slog.Int("done", end),
			slog.Int("total", len(all)),
			slog.Duration("elapsed", time.Since(start).Round(time.Second)))
	}

	if err := vectors.Save(indexPath); err != nil {
		return err
	}
	logger.Info("vector index written",
		slog.String("path", indexPath),
		slog.Int("vectors", vectors.Count()),
		slog.Duration("elapsed", time.Since(start).Round(time.Second)))
	return nil
}

// embeddingText is what actually gets embedded for a chunk. Prefixing the
// procedure name anchors child chunks to their procedure in vector space.
func embeddingText(c *store.Chunk) string {
	name := c.ProcedureName()
	if c.Tier == store.TierParent || name == "" {
		return c.Content
	}
	return name + "\n" + c.Content
}
