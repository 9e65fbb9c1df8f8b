package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nhdandz/ThuTucHanhChinh/internal/analyse"
	"github.com/nhdandz/ThuTucHanhChinh/internal/cache"
	"github.com/nhdandz/ThuTucHanhChinh/internal/config"
	"github.com/nhdandz/ThuTucHanhChinh/internal/embed"
	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
	"github.com/nhdandz/ThuTucHanhChinh/internal/logging"
	"github.com/nhdandz/ThuTucHanhChinh/internal/retrieval"
	"github.com/nhdandz/ThuTucHanhChinh/internal/search"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
	"github.com/nhdandz/ThuTucHanhChinh/internal/telemetry"
)

// vectorIndexFile is the index filename inside the configured index dir.
const vectorIndexFile = "vectors.hnsw"

// app bundles the wired service for the CLI commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	chunks    *store.ChunkStore
	bm25      *store.BM25Index
	vectors   *store.HNSWStore
	embedder  embed.Embedder
	pipeline  *retrieval.Pipeline
	collector *telemetry.Collector
	telStore  *telemetry.SQLiteStore

	cleanup []func()
}

// setupLogging configures the process logger from config and flags.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// loadCorpus loads the chunk store and builds the BM25 index over it.
// Startup blocks here; the pipeline never sees a partial corpus.
func loadCorpus(cfg *config.Config, logger *slog.Logger) (*store.ChunkStore, *store.BM25Index, error) {
	chunks, err := store.LoadChunkStore(cfg.Store.ChunksFile)
	if err != nil {
		return nil, nil, err
	}

	bm25Cfg := store.DefaultBM25Config()
	bm25Cfg.K1 = cfg.Store.BM25K1
	bm25Cfg.B = cfg.Store.BM25B
	bm25 := store.NewBM25Index(chunks, bm25Cfg)

	stats := bm25.Stats()
	logger.Info("corpus loaded",
		slog.Int("chunks", chunks.Len()),
		slog.Int("procedures", chunks.NumProcedures()),
		slog.Int("vocab", stats.VocabSize))
	return chunks, bm25, nil
}

// newApp wires the full retrieval service. The vector index must already
// exist; run 'thutuc index' first.
func newApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logger, logCleanup, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.cleanup = append(a.cleanup, logCleanup)

	a.chunks, a.bm25, err = loadCorpus(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: cfg.Store.Dimensions})
	if err != nil {
		a.close()
		return nil, err
	}
	indexPath := filepath.Join(cfg.Store.IndexDir, vectorIndexFile)
	if err := vectors.Load(indexPath); err != nil {
		a.close()
		return nil, therrors.New(therrors.CodeIndexCorrupt,
			fmt.Sprintf("load vector index %s (run 'thutuc index' first)", indexPath), err)
	}
	a.vectors = vectors
	a.cleanup = append(a.cleanup, func() { _ = vectors.Close() })

	ollama := embed.NewOllamaEmbedder(embed.OllamaConfig{
		Host:       cfg.Models.OllamaHost,
		Model:      cfg.Models.EmbedModel,
		Dimensions: cfg.Store.Dimensions,
	})
	a.embedder = embed.NewCachedEmbedder(
		embed.NewRetryingEmbedder(ollama, therrors.DefaultRetryConfig()),
		cfg.Models.EmbedCacheSize,
	)
	a.cleanup = append(a.cleanup, func() { _ = a.embedder.Close() })

	llm := analyse.NewOllamaLLM(analyse.OllamaLLMConfig{
		Host:  cfg.Models.OllamaHost,
		Model: cfg.Models.AnalyseModel,
	})
	analyser := analyse.NewAnalyser(llm, logger)

	var encoder search.CrossEncoder
	if cfg.Ensemble.CrossEncoderURL != "" {
		encoder = search.NewHTTPCrossEncoder(cfg.Ensemble.CrossEncoderURL)
	}
	reranker := search.NewEnsembleReranker(search.EnsembleConfig{
		DenseWeight:        cfg.Ensemble.DenseWeight,
		LexicalWeight:      cfg.Ensemble.LexicalWeight,
		CrossEncoderWeight: cfg.Ensemble.CrossEncoderWeight,
	}, encoder, logger)

	if cfg.Telemetry.Enabled {
		a.collector = telemetry.NewCollector()
		if cfg.Telemetry.DBPath != "" {
			telStore, err := telemetry.OpenSQLiteStore(cfg.Telemetry.DBPath)
			if err != nil {
				logger.Warn("telemetry store unavailable, keeping metrics in memory",
					slog.String("error", err.Error()))
			} else {
				a.telStore = telStore
				a.cleanup = append(a.cleanup, func() {
					_ = telStore.Flush(a.collector.Drain())
					_ = telStore.Close()
				})
			}
		}
	}

	semCache := cache.New[*retrieval.RetrievalResult](cache.Config{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		MaxEntries:          cfg.Cache.MaxEntries,
		TTL:                 cfg.CacheTTL(),
	})

	a.pipeline = retrieval.NewPipeline(retrieval.Options{
		Analyser:  analyser,
		Embedder:  a.embedder,
		Chunks:    a.chunks,
		Vectors:   a.vectors,
		Lexical:   retrieval.NewLexicalAdapter(a.bm25),
		Reranker:  reranker,
		Cache:     semCache,
		Telemetry: a.collector,
		Config: retrieval.Config{
			TopKParent:       cfg.Retrieval.TopKParent,
			TopKChild:        cfg.Retrieval.TopKChild,
			CrossTierPenalty: cfg.Retrieval.CrossTierPenalty,
			Fusion: search.FusionConfig{
				K:                cfg.Retrieval.RRFK,
				BM25Boost:        cfg.Retrieval.BM25Boost,
				JaccardThreshold: search.DefaultJaccardThreshold,
			},
			MaxChunkTokens: cfg.Retrieval.MaxChunkTokens,
			Timeouts: retrieval.Timeouts{
				Embedder:    cfg.Timeouts.Embedder,
				VectorStore: cfg.Timeouts.VectorStore,
				LLM:         cfg.Timeouts.LLM,
				Reranker:    cfg.Timeouts.CrossEncoder,
				Overall:     cfg.Timeouts.Overall,
			},
		},
		Logger: logger,
	})

	return a, nil
}

// reloadCorpus rebuilds the chunk store and BM25 index from disk and swaps
// them into the pipeline. Called by the file watcher.
func (a *app) reloadCorpus() {
	chunks, bm25, err := loadCorpus(a.cfg, a.logger)
	if err != nil {
		a.logger.Error("corpus reload failed, keeping previous corpus",
			slog.String("error", err.Error()))
		return
	}
	a.chunks, a.bm25 = chunks, bm25
	a.pipeline.SwapCorpus(chunks, retrieval.NewLexicalAdapter(bm25))
}

// close runs cleanups in reverse registration order.
func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
