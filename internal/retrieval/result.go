// Package retrieval orchestrates the staged pipeline: cache probe, query
// analysis, exact-code fast path, hybrid candidate generation, fusion,
// reranking and context assembly.
package retrieval

import (
	"github.com/nhdandz/ThuTucHanhChinh/internal/analyse"
	"github.com/nhdandz/ThuTucHanhChinh/internal/search"
	"github.com/nhdandz/ThuTucHanhChinh/internal/store"
)

// RetrievedChunk is one chunk in the final result with its score and the
// channel that last touched it.
type RetrievedChunk struct {
	Chunk     *store.Chunk  `json:"chunk"`
	Score     float64       `json:"score"`
	Source    search.Source `json:"source"`
	CrossTier bool          `json:"cross_tier,omitempty"`
}

// RetrievalResult is the pipeline's answer to one question.
type RetrievalResult struct {
	Chunks      []RetrievedChunk  `json:"chunks"`
	ContextText string            `json:"context_text"`
	Confidence  float64           `json:"confidence"`
	Intent      analyse.Intent    `json:"intent"`
	Plan        analyse.QueryPlan `json:"plan"`
	Degraded    bool              `json:"degraded"`
	// Metadata carries operational flags for the caller: "degraded",
	// "error", "exact_code".
	Metadata map[string]string `json:"metadata,omitempty"`
}

// withMeta sets a metadata key, allocating the map on first use.
func (r *RetrievalResult) withMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}
