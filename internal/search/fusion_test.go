package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func denseList(ids ...string) RankedList {
	return rankedList(SourceDense, ids...)
}

func lexicalList(ids ...string) RankedList {
	return rankedList(SourceLexical, ids...)
}

func rankedList(src Source, ids ...string) RankedList {
	list := RankedList{Source: src}
	for i, id := range ids {
		list.Candidates = append(list.Candidates, Candidate{
			ChunkID: id,
			Score:   1.0 - float64(i)*0.1,
		})
	}
	return list
}

func fusedIDs(fused []FusedCandidate) []string {
	ids := make([]string, len(fused))
	for i, fc := range fused {
		ids[i] = fc.ChunkID
	}
	return ids
}

func TestFuse_RRFScores(t *testing.T) {
	cfg := FusionConfig{K: 60, BM25Boost: 1.0}
	fused := Fuse([]RankedList{
		denseList("a", "b"),
		lexicalList("b", "c"),
	}, cfg, nil)

	require.Len(t, fused, 3)

	byID := map[string]FusedCandidate{}
	for _, fc := range fused {
		byID[fc.ChunkID] = fc
	}

	// a: dense rank 1 only. b: dense rank 2 + lexical rank 1. c: lexical rank 2.
	assert.InDelta(t, 1.0/61, byID["a"].RRFScore, 1e-9)
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].RRFScore, 1e-9)
	assert.InDelta(t, 1.0/62, byID["c"].RRFScore, 1e-9)

	// b appears in both channels, so it outranks everyone.
	assert.Equal(t, "b", fused[0].ChunkID)
	assert.Equal(t, 2, byID["b"].SourceCount)
	assert.Equal(t, 1, byID["a"].SourceCount)
	assert.Equal(t, 2, byID["b"].DenseRank)
	assert.Equal(t, 1, byID["b"].LexicalRank)
}

func TestFuse_BM25Boost(t *testing.T) {
	cfg := FusionConfig{K: 60, BM25Boost: 1.2}
	fused := Fuse([]RankedList{
		denseList("dense-only"),
		lexicalList("lex-only"),
	}, cfg, nil)

	byID := map[string]FusedCandidate{}
	for _, fc := range fused {
		byID[fc.ChunkID] = fc
	}
	assert.InDelta(t, 1.0/61, byID["dense-only"].RRFScore, 1e-9)
	assert.InDelta(t, 1.2/61, byID["lex-only"].RRFScore, 1e-9)
	// Equal rank, but the boosted lexical hit wins.
	assert.Equal(t, "lex-only", fused[0].ChunkID)
}

func TestFuse_BestRankAndScoreCarryAcrossExpansions(t *testing.T) {
	// The same chunk surfaces in two dense lists (two query expansions) at
	// different ranks and scores; the better of each must be kept and the
	// dense channel counted once.
	listA := RankedList{Source: SourceDense, Candidates: []Candidate{
		{ChunkID: "x", Score: 0.5},
		{ChunkID: "y", Score: 0.4},
	}}
	listB := RankedList{Source: SourceDense, Candidates: []Candidate{
		{ChunkID: "y", Score: 0.9},
		{ChunkID: "x", Score: 0.3},
	}}

	fused := Fuse([]RankedList{listA, listB}, DefaultFusionConfig(), nil)

	byID := map[string]FusedCandidate{}
	for _, fc := range fused {
		byID[fc.ChunkID] = fc
	}
	assert.Equal(t, 1, byID["x"].DenseRank)
	assert.InDelta(t, 0.5, byID["x"].DenseScore, 1e-9)
	assert.Equal(t, 1, byID["y"].DenseRank)
	assert.InDelta(t, 0.9, byID["y"].DenseScore, 1e-9)
	assert.Equal(t, 1, byID["x"].SourceCount)
	assert.Equal(t, 1, byID["y"].SourceCount)
}

func TestFuse_CrossTierFlagSurvivesFusion(t *testing.T) {
	list := RankedList{Source: SourceDense, Candidates: []Candidate{
		{ChunkID: "a", Score: 0.5, CrossTier: true},
	}}
	fused := Fuse([]RankedList{list, lexicalList("a")}, DefaultFusionConfig(), nil)
	require.Len(t, fused, 1)
	assert.True(t, fused[0].CrossTier)
}

func TestFuse_Tiebreaks(t *testing.T) {
	// Same RRF score and source count; the chunk id decides.
	fused := Fuse([]RankedList{
		{Source: SourceDense, Candidates: []Candidate{{ChunkID: "b", Score: 0.5}}},
		{Source: SourceDense, Candidates: []Candidate{{ChunkID: "a", Score: 0.5}}},
	}, FusionConfig{K: 60, BM25Boost: 1.0}, nil)
	assert.Equal(t, []string{"a", "b"}, fusedIDs(fused))
}

func TestFuse_NearDuplicateRemoval(t *testing.T) {
	sets := map[string]map[string]struct{}{
		"orig": wordSetOf("cấp", "giấy", "phép", "xây", "dựng", "nhà", "ở", "riêng", "lẻ", "tại", "đô", "thị"),
		"dup":  wordSetOf("cấp", "giấy", "phép", "xây", "dựng", "nhà", "ở", "riêng", "lẻ", "tại", "đô", "thị"),
		"diff": wordSetOf("lệ", "phí", "trước", "bạ", "xe", "máy"),
	}
	wordSet := func(id string) map[string]struct{} { return sets[id] }

	fused := Fuse([]RankedList{
		denseList("orig", "dup", "diff"),
	}, DefaultFusionConfig(), wordSet)

	assert.Equal(t, []string{"orig", "diff"}, fusedIDs(fused))
}

func TestFuse_EmptyInput(t *testing.T) {
	assert.Empty(t, Fuse(nil, DefaultFusionConfig(), nil))
	assert.Empty(t, Fuse([]RankedList{{Source: SourceDense}}, DefaultFusionConfig(), nil))
}

func TestJaccard(t *testing.T) {
	a := wordSetOf("một", "hai", "ba")
	b := wordSetOf("hai", "ba", "bốn")

	assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.InDelta(t, 1.0, jaccard(nil, nil), 1e-9)
	assert.InDelta(t, 0.0, jaccard(a, nil), 1e-9)
}

func wordSetOf(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
