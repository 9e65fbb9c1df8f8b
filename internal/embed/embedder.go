// Package embed produces dense query and chunk embeddings via Ollama, with
// an in-process LRU cache in front of the HTTP client.
package embed

import "context"

// Default Ollama settings.
const (
	DefaultOllamaHost = "http://localhost:11434"
	DefaultModel      = "bge-m3"
	DefaultDimensions = 1024
)

// Embedder generates dense embeddings for text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
