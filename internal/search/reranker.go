package search

import (
	"context"
	"log/slog"
	"sort"
)

// Default ensemble weights: dense cosine, lexical BM25, cross-encoder.
const (
	DefaultDenseWeight        = 0.55
	DefaultLexicalWeight      = 0.35
	DefaultCrossEncoderWeight = 0.10
)

// RerankInput is one candidate handed to the reranker.
type RerankInput struct {
	ChunkID      string
	Text         string
	DenseScore   float64
	LexicalScore float64
}

// RerankResult is a candidate with its final ensemble score.
type RerankResult struct {
	ChunkID string
	Score   float64
}

// Reranker reorders fused candidates by a final relevance score.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankInput) ([]RerankResult, error)
}

// EnsembleConfig configures the weighted ensemble.
type EnsembleConfig struct {
	DenseWeight        float64
	LexicalWeight      float64
	CrossEncoderWeight float64
}

// DefaultEnsembleConfig returns the standard ensemble weights.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		DenseWeight:        DefaultDenseWeight,
		LexicalWeight:      DefaultLexicalWeight,
		CrossEncoderWeight: DefaultCrossEncoderWeight,
	}
}

// EnsembleReranker scores candidates as a weighted sum of min-max
// normalized dense, lexical and cross-encoder signals. Weights are
// normalized to sum to 1. The cross-encoder is never called when its
// weight is zero or no encoder is configured.
type EnsembleReranker struct {
	cfg     EnsembleConfig
	encoder CrossEncoder
	logger  *slog.Logger
}

var _ Reranker = (*EnsembleReranker)(nil)

// NewEnsembleReranker creates the ensemble. encoder may be nil, which
// redistributes its weight over the other signals.
func NewEnsembleReranker(cfg EnsembleConfig, encoder CrossEncoder, logger *slog.Logger) *EnsembleReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnsembleReranker{cfg: cfg, encoder: encoder, logger: logger}
}

// Rerank computes final scores and returns candidates best first.
func (r *EnsembleReranker) Rerank(ctx context.Context, query string, candidates []RerankInput) ([]RerankResult, error) {
	if len(candidates) == 0 {
		return []RerankResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wDense, wLex, wCE := r.cfg.DenseWeight, r.cfg.LexicalWeight, r.cfg.CrossEncoderWeight
	if r.encoder == nil {
		wCE = 0
	}
	if sum := wDense + wLex + wCE; sum != 1 && sum > 0 {
		wDense /= sum
		wLex /= sum
		wCE /= sum
	}

	denseNorm := minMaxNormalize(candidates, func(c RerankInput) float64 { return c.DenseScore })
	lexNorm := minMaxNormalize(candidates, func(c RerankInput) float64 { return c.LexicalScore })

	var ceNorm []float64
	if wCE > 0 {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Text
		}
		scores, err := r.encoder.Score(ctx, query, texts)
		if err != nil || len(scores) != len(candidates) {
			// Degrade to the two-signal ensemble rather than failing
			// the stage.
			if err != nil {
				r.logger.Warn("cross-encoder scoring failed, continuing without it",
					slog.String("error", err.Error()))
			}
			redistribute := wDense + wLex
			if redistribute > 0 {
				wDense /= redistribute
				wLex /= redistribute
			}
			wCE = 0
		} else {
			ceNorm = minMaxNormalizeSlice(scores)
		}
	}

	results := make([]RerankResult, len(candidates))
	for i, c := range candidates {
		score := wDense*denseNorm[i] + wLex*lexNorm[i]
		if wCE > 0 {
			score += wCE * ceNorm[i]
		}
		results[i] = RerankResult{ChunkID: c.ChunkID, Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}

// minMaxNormalize maps a signal into [0,1] within the candidate set. A flat
// signal normalizes to all ones so it neither helps nor hurts anyone.
func minMaxNormalize(candidates []RerankInput, get func(RerankInput) float64) []float64 {
	values := make([]float64, len(candidates))
	for i, c := range candidates {
		values[i] = get(c)
	}
	return minMaxNormalizeSlice(values)
}

func minMaxNormalizeSlice(values []float64) []float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(values))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
