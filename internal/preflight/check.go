package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhdandz/ThuTucHanhChinh/internal/config"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// vectorIndexFile matches the filename the index builder writes.
const vectorIndexFile = "vectors.hnsw"

// Checker validates the environment against one resolved configuration.
type Checker struct {
	cfg     *config.Config
	client  *http.Client
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables per-check detail output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer for PrintResults.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithHTTPClient overrides the client used for collaborator probes.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every preflight check and returns the results.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckCorpusFile(),
		c.CheckIndexDir(),
		c.CheckDiskSpace(),
		c.CheckIndexDimensions(),
		c.CheckOllama(ctx),
	}
	if c.cfg.Ensemble.CrossEncoderURL != "" {
		results = append(results, c.CheckCrossEncoder(ctx))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus condenses the results into ready, ready_with_warnings or
// failed.
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckCorpusFile verifies the chunk corpus exists and is a regular file.
func (c *Checker) CheckCorpusFile() CheckResult {
	result := CheckResult{Name: "corpus_file", Required: true}

	info, err := os.Stat(c.cfg.Store.ChunksFile)
	switch {
	case os.IsNotExist(err):
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s not found", c.cfg.Store.ChunksFile)
	case err != nil:
		result.Status = StatusFail
		result.Message = err.Error()
	case info.IsDir():
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is a directory", c.cfg.Store.ChunksFile)
	case info.Size() == 0:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is empty", c.cfg.Store.ChunksFile)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (%s)", c.cfg.Store.ChunksFile, formatBytes(uint64(info.Size())))
	}
	return result
}

// CheckIndexDir verifies the index directory exists (or can be created) and
// is writable.
func (c *Checker) CheckIndexDir() CheckResult {
	result := CheckResult{Name: "index_dir", Required: true}

	if err := os.MkdirAll(c.cfg.Store.IndexDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	probe := filepath.Join(c.cfg.Store.IndexDir, ".thutuc-preflight")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = c.cfg.Store.IndexDir
	return result
}

// CheckIndexDimensions verifies a persisted vector index matches the
// configured embedding dimensionality. A missing index is a warning; the
// index command builds it.
func (c *Checker) CheckIndexDimensions() CheckResult {
	result := CheckResult{Name: "vector_index", Required: true}

	indexPath := filepath.Join(c.cfg.Store.IndexDir, vectorIndexFile)
	dims, err := store.ReadHNSWStoreDimensions(indexPath)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("index unreadable: %v", err)
	case dims == 0:
		result.Status = StatusWarn
		result.Required = false
		result.Message = "no index found, run 'thutuc index' to build one"
	case dims != c.cfg.Store.Dimensions:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("index has %d dimensions, config expects %d", dims, c.cfg.Store.Dimensions)
		result.Details = "rebuild with 'thutuc index --force' after changing the embed model"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d dimensions", dims)
	}
	return result
}

// ollamaTagsResponse is the subset of GET /api/tags used here.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// CheckOllama probes the Ollama endpoint and verifies the configured models
// are pulled. Ollama being down is not critical; retrieval degrades to the
// lexical channel.
func (c *Checker) CheckOllama(ctx context.Context) CheckResult {
	result := CheckResult{Name: "ollama", Required: false}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Models.OllamaHost+"/api/tags", nil)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreachable at %s, dense retrieval and analysis will degrade", c.cfg.Models.OllamaHost)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, c.cfg.Models.OllamaHost)
		return result
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("malformed tags response: %v", err)
		return result
	}

	missing := missingModels(tags, c.cfg.Models.EmbedModel, c.cfg.Models.AnalyseModel)
	if len(missing) > 0 {
		result.Status = StatusWarn
		result.Message = "models not pulled: " + strings.Join(missing, ", ")
		result.Details = "run 'ollama pull <model>' for each"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("reachable, %s and %s available", c.cfg.Models.EmbedModel, c.cfg.Models.AnalyseModel)
	return result
}

// missingModels returns the wanted models absent from the tags listing.
// Ollama reports names with an explicit tag suffix, so "bge-m3" matches
// "bge-m3:latest".
func missingModels(tags ollamaTagsResponse, wanted ...string) []string {
	available := make(map[string]struct{}, len(tags.Models))
	for _, m := range tags.Models {
		available[m.Name] = struct{}{}
		if base, _, ok := strings.Cut(m.Name, ":"); ok {
			available[base] = struct{}{}
		}
	}
	var missing []string
	for _, w := range wanted {
		if _, ok := available[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}

// CheckCrossEncoder probes the configured cross-encoder endpoint. Failure is
// a warning; the ensemble redistributes its weight.
func (c *Checker) CheckCrossEncoder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "cross_encoder", Required: false}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Ensemble.CrossEncoderURL, nil)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreachable at %s, reranking falls back to dense and lexical signals", c.cfg.Ensemble.CrossEncoderURL)
		return result
	}
	defer resp.Body.Close()

	result.Status = StatusPass
	result.Message = c.cfg.Ensemble.CrossEncoderURL
	return result
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	for _, r := range results {
		fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}
	fmt.Fprintf(c.output, "\nStatus: %s\n", strings.ToUpper(SummaryStatus(results)))
}
