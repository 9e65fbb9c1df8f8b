// Package config loads the retrieval service configuration from YAML files
// and THUTUC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
// Precedence, lowest to highest: defaults, user config
// (~/.config/thutuc/config.yaml), project config (thutuc.yaml), environment.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Ensemble  EnsembleConfig  `yaml:"ensemble" json:"ensemble"`
	Models    ModelsConfig    `yaml:"models" json:"models"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts" json:"timeouts"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	LogLevel  string          `yaml:"log_level" json:"log_level"`
}

// StoreConfig locates the chunk corpus and the vector index.
type StoreConfig struct {
	// ChunksFile is the JSON file holding the full chunk corpus.
	ChunksFile string `yaml:"chunks_file" json:"chunks_file"`
	// IndexDir is the directory owned by the vector store adapter.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
	// BM25K1 and BM25B are the Okapi parameters.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`
	// Dimensions is the embedding dimensionality of the vector index.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// WatchReload enables reloading the chunk store when the file changes.
	WatchReload bool `yaml:"watch_reload" json:"watch_reload"`
	// WatchDebounce coalesces bursts of file writes (e.g. "500ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// CacheConfig configures the semantic answer cache.
type CacheConfig struct {
	// SimilarityThreshold is the cosine similarity for a semantic hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	// MaxEntries bounds the cache; exceeding it evicts the LRU entry.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// TTLHours is the entry lifetime in hours.
	TTLHours int `yaml:"ttl_hours" json:"ttl_hours"`
}

// RetrievalConfig configures the candidate generation stages.
type RetrievalConfig struct {
	// TopKParent is the parent-tier dense retrieval depth.
	TopKParent int `yaml:"top_k_parent" json:"top_k_parent"`
	// TopKChild is the child-tier dense retrieval depth.
	TopKChild int `yaml:"top_k_child" json:"top_k_child"`
	// CrossTierPenalty is the multiplicative score penalty applied to
	// child candidates whose procedure is outside the parent set.
	CrossTierPenalty float64 `yaml:"cross_tier_penalty" json:"cross_tier_penalty"`
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
	// BM25Boost scales lexical contributions during fusion.
	BM25Boost float64 `yaml:"bm25_boost" json:"bm25_boost"`
	// MaxChunkTokens is the per-chunk token ceiling at assembly time.
	MaxChunkTokens int `yaml:"max_chunk_tokens" json:"max_chunk_tokens"`
}

// EnsembleConfig configures the reranking ensemble.
type EnsembleConfig struct {
	// DenseWeight, LexicalWeight and CrossEncoderWeight are normalized to
	// sum to 1 before scoring.
	DenseWeight        float64 `yaml:"dense_weight" json:"dense_weight"`
	LexicalWeight      float64 `yaml:"lexical_weight" json:"lexical_weight"`
	CrossEncoderWeight float64 `yaml:"cross_encoder_weight" json:"cross_encoder_weight"`
	// CrossEncoderURL is the scoring endpoint; empty disables the
	// cross-encoder regardless of its weight.
	CrossEncoderURL string `yaml:"cross_encoder_url" json:"cross_encoder_url"`
}

// ModelsConfig configures the Ollama-served models.
type ModelsConfig struct {
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// EmbedModel produces the dense query and chunk embeddings.
	EmbedModel string `yaml:"embed_model" json:"embed_model"`
	// AnalyseModel classifies intent and paraphrases queries.
	AnalyseModel string `yaml:"analyse_model" json:"analyse_model"`
	// EmbedCacheSize bounds the in-process embedding LRU cache.
	EmbedCacheSize int `yaml:"embed_cache_size" json:"embed_cache_size"`
}

// TimeoutsConfig sets per-collaborator deadlines.
type TimeoutsConfig struct {
	Embedder     time.Duration `yaml:"embedder" json:"embedder"`
	VectorStore  time.Duration `yaml:"vector_store" json:"vector_store"`
	LLM          time.Duration `yaml:"llm" json:"llm"`
	CrossEncoder time.Duration `yaml:"cross_encoder" json:"cross_encoder"`
	Overall      time.Duration `yaml:"overall" json:"overall"`
}

// TelemetryConfig configures query metrics persistence.
type TelemetryConfig struct {
	// Enabled turns on query telemetry collection.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// DBPath is the SQLite database file; empty keeps metrics in memory only.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// NewConfig returns a Config populated with the documented defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			ChunksFile:    "data/chunks.json",
			IndexDir:      "data/index",
			BM25K1:        1.5,
			BM25B:         0.75,
			Dimensions:    1024,
			WatchReload:   false,
			WatchDebounce: "500ms",
		},
		Cache: CacheConfig{
			SimilarityThreshold: 0.92,
			MaxEntries:          100,
			TTLHours:            24,
		},
		Retrieval: RetrievalConfig{
			TopKParent:       5,
			TopKChild:        100,
			CrossTierPenalty: 0.8,
			RRFK:             60,
			BM25Boost:        1.2,
			MaxChunkTokens:   1200,
		},
		Ensemble: EnsembleConfig{
			DenseWeight:        0.55,
			LexicalWeight:      0.35,
			CrossEncoderWeight: 0.10,
			CrossEncoderURL:    "",
		},
		Models: ModelsConfig{
			OllamaHost:     "http://localhost:11434",
			EmbedModel:     "bge-m3",
			AnalyseModel:   "qwen2.5:7b",
			EmbedCacheSize: 1000,
		},
		Timeouts: TimeoutsConfig{
			Embedder:     10 * time.Second,
			VectorStore:  5 * time.Second,
			LLM:          60 * time.Second,
			CrossEncoder: 15 * time.Second,
			Overall:      180 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			DBPath:  defaultTelemetryPath(),
		},
		LogLevel: "info",
	}
}

func defaultTelemetryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".thutuc", "telemetry.db")
	}
	return filepath.Join(home, ".thutuc", "telemetry.db")
}

// GetUserConfigPath returns the user configuration path following the XDG
// Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "thutuc", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "thutuc", "config.yaml")
	}
	return filepath.Join(home, ".config", "thutuc", "config.yaml")
}

// Load builds the configuration for the given project directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	for _, name := range []string{"thutuc.yaml", "thutuc.yml", ".thutuc.yaml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML loads a YAML file and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	if other.Store.ChunksFile != "" {
		c.Store.ChunksFile = other.Store.ChunksFile
	}
	if other.Store.IndexDir != "" {
		c.Store.IndexDir = other.Store.IndexDir
	}
	if other.Store.BM25K1 != 0 {
		c.Store.BM25K1 = other.Store.BM25K1
	}
	if other.Store.BM25B != 0 {
		c.Store.BM25B = other.Store.BM25B
	}
	if other.Store.Dimensions != 0 {
		c.Store.Dimensions = other.Store.Dimensions
	}
	if other.Store.WatchReload {
		c.Store.WatchReload = true
	}
	if other.Store.WatchDebounce != "" {
		c.Store.WatchDebounce = other.Store.WatchDebounce
	}

	if other.Cache.SimilarityThreshold != 0 {
		c.Cache.SimilarityThreshold = other.Cache.SimilarityThreshold
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}
	if other.Cache.TTLHours != 0 {
		c.Cache.TTLHours = other.Cache.TTLHours
	}

	if other.Retrieval.TopKParent != 0 {
		c.Retrieval.TopKParent = other.Retrieval.TopKParent
	}
	if other.Retrieval.TopKChild != 0 {
		c.Retrieval.TopKChild = other.Retrieval.TopKChild
	}
	if other.Retrieval.CrossTierPenalty != 0 {
		c.Retrieval.CrossTierPenalty = other.Retrieval.CrossTierPenalty
	}
	if other.Retrieval.RRFK != 0 {
		c.Retrieval.RRFK = other.Retrieval.RRFK
	}
	if other.Retrieval.BM25Boost != 0 {
		c.Retrieval.BM25Boost = other.Retrieval.BM25Boost
	}
	if other.Retrieval.MaxChunkTokens != 0 {
		c.Retrieval.MaxChunkTokens = other.Retrieval.MaxChunkTokens
	}

	// Ensemble weights merge together so a partial override keeps the
	// written zero for a weight explicitly set to 0.
	if other.Ensemble.DenseWeight != 0 || other.Ensemble.LexicalWeight != 0 || other.Ensemble.CrossEncoderWeight != 0 {
		c.Ensemble.DenseWeight = other.Ensemble.DenseWeight
		c.Ensemble.LexicalWeight = other.Ensemble.LexicalWeight
		c.Ensemble.CrossEncoderWeight = other.Ensemble.CrossEncoderWeight
	}
	if other.Ensemble.CrossEncoderURL != "" {
		c.Ensemble.CrossEncoderURL = other.Ensemble.CrossEncoderURL
	}

	if other.Models.OllamaHost != "" {
		c.Models.OllamaHost = other.Models.OllamaHost
	}
	if other.Models.EmbedModel != "" {
		c.Models.EmbedModel = other.Models.EmbedModel
	}
	if other.Models.AnalyseModel != "" {
		c.Models.AnalyseModel = other.Models.AnalyseModel
	}
	if other.Models.EmbedCacheSize != 0 {
		c.Models.EmbedCacheSize = other.Models.EmbedCacheSize
	}

	if other.Timeouts.Embedder != 0 {
		c.Timeouts.Embedder = other.Timeouts.Embedder
	}
	if other.Timeouts.VectorStore != 0 {
		c.Timeouts.VectorStore = other.Timeouts.VectorStore
	}
	if other.Timeouts.LLM != 0 {
		c.Timeouts.LLM = other.Timeouts.LLM
	}
	if other.Timeouts.CrossEncoder != 0 {
		c.Timeouts.CrossEncoder = other.Timeouts.CrossEncoder
	}
	if other.Timeouts.Overall != 0 {
		c.Timeouts.Overall = other.Timeouts.Overall
	}

	if other.Telemetry.DBPath != "" {
		c.Telemetry.DBPath = other.Telemetry.DBPath
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}
}

// applyEnvOverrides applies THUTUC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("THUTUC_CHUNKS_FILE"); v != "" {
		c.Store.ChunksFile = v
	}
	if v := os.Getenv("THUTUC_INDEX_DIR"); v != "" {
		c.Store.IndexDir = v
	}
	if v := os.Getenv("THUTUC_OLLAMA_HOST"); v != "" {
		c.Models.OllamaHost = v
	}
	if v := os.Getenv("THUTUC_EMBED_MODEL"); v != "" {
		c.Models.EmbedModel = v
	}
	if v := os.Getenv("THUTUC_ANALYSE_MODEL"); v != "" {
		c.Models.AnalyseModel = v
	}
	if v := os.Getenv("THUTUC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("THUTUC_CROSS_ENCODER_URL"); v != "" {
		c.Ensemble.CrossEncoderURL = v
	}
	if v := os.Getenv("THUTUC_SIM_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t > 0 && t <= 1 {
			c.Cache.SimilarityThreshold = t
		}
	}
	if v := os.Getenv("THUTUC_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("THUTUC_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.TTLHours = n
		}
	}
	if v := os.Getenv("THUTUC_BM25_K1"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 {
			c.Store.BM25K1 = f
		}
	}
	if v := os.Getenv("THUTUC_BM25_B"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Store.BM25B = f
		}
	}
	if v := os.Getenv("THUTUC_RRF_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.RRFK = n
		}
	}
	if v := os.Getenv("THUTUC_CROSS_TIER_PENALTY"); v != "" {
		if f, err := parseFloat64(v); err == nil && f > 0 && f <= 1 {
			c.Retrieval.CrossTierPenalty = f
		}
	}
	if v := os.Getenv("THUTUC_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks the final configuration for out-of-range values.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in (0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Store.BM25K1 <= 0 {
		return fmt.Errorf("store.bm25_k1 must be positive, got %v", c.Store.BM25K1)
	}
	if c.Store.BM25B < 0 || c.Store.BM25B > 1 {
		return fmt.Errorf("store.bm25_b must be in [0, 1], got %v", c.Store.BM25B)
	}
	if c.Retrieval.CrossTierPenalty <= 0 || c.Retrieval.CrossTierPenalty > 1 {
		return fmt.Errorf("retrieval.cross_tier_penalty must be in (0, 1], got %v", c.Retrieval.CrossTierPenalty)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Ensemble.DenseWeight < 0 || c.Ensemble.LexicalWeight < 0 || c.Ensemble.CrossEncoderWeight < 0 {
		return fmt.Errorf("ensemble weights must be non-negative")
	}
	if c.Ensemble.DenseWeight+c.Ensemble.LexicalWeight+c.Ensemble.CrossEncoderWeight == 0 {
		return fmt.Errorf("ensemble weights must not all be zero")
	}
	if c.Retrieval.TopKParent <= 0 || c.Retrieval.TopKChild <= 0 {
		return fmt.Errorf("retrieval top_k values must be positive")
	}
	if c.Store.Dimensions <= 0 {
		return fmt.Errorf("store.dimensions must be positive, got %d", c.Store.Dimensions)
	}
	if _, err := time.ParseDuration(c.Store.WatchDebounce); c.Store.WatchDebounce != "" && err != nil {
		return fmt.Errorf("store.watch_debounce: %w", err)
	}
	return nil
}

// Snapshot returns a detached copy of the effective configuration for
// display. Config holds only value types, so a plain copy is complete.
func (c *Config) Snapshot() Config {
	return *c
}

// WatchDebounceDuration parses the debounce window, falling back to 500ms.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Store.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// CacheTTL returns the cache entry lifetime as a Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
