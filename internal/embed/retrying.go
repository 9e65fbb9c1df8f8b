package embed

import (
	"context"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// RetryingEmbedder retries transient collaborator failures with exponential
// backoff. Non-retryable errors pass through unchanged.
type RetryingEmbedder struct {
	inner Embedder
	cfg   therrors.RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with the given retry policy.
func NewRetryingEmbedder(inner Embedder, cfg therrors.RetryConfig) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return therrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return therrors.RetryWithResult(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

func (r *RetryingEmbedder) Dimensions() int   { return r.inner.Dimensions() }
func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }
func (r *RetryingEmbedder) Close() error      { return r.inner.Close() }
