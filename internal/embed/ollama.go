package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// OllamaConfig configures the Ollama embedding client.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected output dimensionality. Zero means trust
	// whatever the model returns on the first call.
	Dimensions int
	// PoolSize bounds idle HTTP connections.
	PoolSize int
}

// OllamaEmbedder generates embeddings through Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama-backed embedder. No health check is
// performed here; the first Embed call surfaces connectivity problems as a
// retryable collaborator error.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	// Deadlines come from the per-request context, never a static client
	// timeout, so callers keep control over stage budgets.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for multiple texts, in input order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, therrors.New(therrors.CodeInternal, "encode embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, therrors.New(therrors.CodeInternal, "create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := therrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, therrors.New(therrors.CodeEmbedderUnavailable, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, therrors.New(therrors.CodeEmbedderUnavailable,
			fmt.Sprintf("embedding request returned status %d: %s", resp.StatusCode, string(detail)), nil)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, therrors.New(therrors.CodeEmbedderUnavailable, "decode embed response", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, therrors.New(therrors.CodeEmbedderUnavailable,
			fmt.Sprintf("embedding count mismatch: want %d, got %d", len(texts), len(parsed.Embeddings)), nil)
	}
	if e.config.Dimensions > 0 {
		for _, v := range parsed.Embeddings {
			if len(v) != e.config.Dimensions {
				return nil, therrors.New(therrors.CodeEmbedderUnavailable,
					fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.config.Dimensions, len(v)), nil)
			}
		}
	}

	return parsed.Embeddings, nil
}

// Dimensions returns the configured embedding dimensionality.
func (e *OllamaEmbedder) Dimensions() int {
	if e.config.Dimensions > 0 {
		return e.config.Dimensions
	}
	return DefaultDimensions
}

// ModelName returns the embedding model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
