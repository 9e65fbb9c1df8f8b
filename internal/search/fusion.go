package search

import "sort"

// Fusion defaults.
const (
	DefaultRRFK             = 60
	DefaultBM25Boost        = 1.2
	DefaultJaccardThreshold = 0.95
)

// FusionConfig configures reciprocal rank fusion.
type FusionConfig struct {
	// K is the RRF smoothing constant.
	K int
	// BM25Boost multiplies lexical contributions.
	BM25Boost float64
	// JaccardThreshold removes near-duplicate chunks whose word sets
	// overlap at or above it. Zero disables deduplication.
	JaccardThreshold float64
}

// DefaultFusionConfig returns the standard fusion parameters.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K:                DefaultRRFK,
		BM25Boost:        DefaultBM25Boost,
		JaccardThreshold: DefaultJaccardThreshold,
	}
}

// Fuse combines ranked lists by RRF(d) = sum over lists of 1/(k + rank).
// Lexical contributions are boosted, duplicates keep the best rank per
// channel, and near-duplicate chunks (by word-set Jaccard) are removed.
// wordSet supplies each chunk's content words; nil disables deduplication.
func Fuse(lists []RankedList, cfg FusionConfig, wordSet func(chunkID string) map[string]struct{}) []FusedCandidate {
	if cfg.K <= 0 {
		cfg.K = DefaultRRFK
	}
	if cfg.BM25Boost <= 0 {
		cfg.BM25Boost = DefaultBM25Boost
	}

	byID := make(map[string]*FusedCandidate)
	for _, list := range lists {
		boost := 1.0
		if list.Source == SourceLexical {
			boost = cfg.BM25Boost
		}
		for i, c := range list.Candidates {
			rank := i + 1
			fc, ok := byID[c.ChunkID]
			if !ok {
				fc = &FusedCandidate{ChunkID: c.ChunkID}
				byID[c.ChunkID] = fc
			}
			fc.RRFScore += boost / float64(cfg.K+rank)

			switch list.Source {
			case SourceLexical:
				if fc.LexicalRank == 0 {
					fc.SourceCount++
				}
				if fc.LexicalRank == 0 || rank < fc.LexicalRank {
					fc.LexicalRank = rank
				}
				if c.Score > fc.LexicalScore {
					fc.LexicalScore = c.Score
				}
			default:
				if fc.DenseRank == 0 {
					fc.SourceCount++
				}
				if fc.DenseRank == 0 || rank < fc.DenseRank {
					fc.DenseRank = rank
				}
				if c.Score > fc.DenseScore {
					fc.DenseScore = c.Score
				}
				if c.CrossTier {
					fc.CrossTier = true
				}
			}
		}
	}

	fused := make([]FusedCandidate, 0, len(byID))
	for _, fc := range byID {
		fused = append(fused, *fc)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.SourceCount != b.SourceCount {
			return a.SourceCount > b.SourceCount
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.ChunkID < b.ChunkID
	})

	if cfg.JaccardThreshold > 0 && wordSet != nil {
		fused = dedupeNearIdentical(fused, cfg.JaccardThreshold, wordSet)
	}
	return fused
}

// dedupeNearIdentical keeps the better-ranked of any pair of chunks whose
// content word sets overlap at or above the threshold.
func dedupeNearIdentical(fused []FusedCandidate, threshold float64, wordSet func(string) map[string]struct{}) []FusedCandidate {
	kept := make([]FusedCandidate, 0, len(fused))
	keptSets := make([]map[string]struct{}, 0, len(fused))

	for _, fc := range fused {
		ws := wordSet(fc.ChunkID)
		dup := false
		for _, prev := range keptSets {
			if jaccard(ws, prev) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, fc)
			keptSets = append(keptSets, ws)
		}
	}
	return kept
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
