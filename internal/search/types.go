// Package search implements candidate fusion and ensemble reranking over
// the dense and lexical retrieval channels.
package search

// Source identifies which retrieval channel produced a candidate.
type Source string

const (
	SourceDense    Source = "dense"
	SourceLexical  Source = "lexical"
	SourceFused    Source = "fused"
	SourceReranked Source = "reranked"
)

// Candidate is one scored chunk inside a ranked list. Rank is implied by
// position.
type Candidate struct {
	ChunkID string
	Score   float64
	// CrossTier marks a child candidate whose procedure fell outside the
	// parent set; its score already carries the penalty.
	CrossTier bool
}

// RankedList is one channel's ordered output, best first.
type RankedList struct {
	Source     Source
	Candidates []Candidate
}

// FusedCandidate is the per-chunk result of reciprocal rank fusion.
type FusedCandidate struct {
	ChunkID  string
	RRFScore float64
	// DenseScore and LexicalScore carry the best raw score seen per
	// channel, for the ensemble reranker.
	DenseScore   float64
	LexicalScore float64
	// DenseRank and LexicalRank are the best (1-based) ranks per channel,
	// 0 when the channel never surfaced the chunk.
	DenseRank    int
	LexicalRank  int
	SourceCount  int
	CrossTier    bool
}
