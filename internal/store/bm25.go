package store

import (
	"math"
	"sort"
)

// posting records a term frequency for one document.
type posting struct {
	doc int // index into docs
	tf  int
}

// BM25Index is an in-memory Okapi BM25 inverted index over the chunk corpus.
// Built once from a ChunkStore; immutable afterwards.
type BM25Index struct {
	cfg       BM25Config
	stopWords map[string]struct{}

	docs      []string // chunk ids in index order
	docLens   []int    // token counts after stop-word removal
	avgDocLen float64
	postings  map[string][]posting
	idf       map[string]float64
}

// NewBM25Index builds the inverted index over every chunk in the store.
func NewBM25Index(s *ChunkStore, cfg BM25Config) *BM25Index {
	idx := &BM25Index{
		cfg:       cfg,
		stopWords: BuildStopWordMap(cfg.StopWords),
		postings:  make(map[string][]posting),
		idf:       make(map[string]float64),
	}

	var totalLen int
	for _, c := range s.All() {
		doc := len(idx.docs)
		idx.docs = append(idx.docs, c.ID)

		tokens := Tokenize(c.Content, idx.stopWords)
		idx.docLens = append(idx.docLens, len(tokens))
		totalLen += len(tokens)

		tfs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tfs[t]++
		}
		for term, tf := range tfs {
			idx.postings[term] = append(idx.postings[term], posting{doc: doc, tf: tf})
		}
	}

	n := float64(len(idx.docs))
	if n > 0 {
		idx.avgDocLen = float64(totalLen) / n
	}

	// Precompute IDF, clamped at zero so very common terms never push a
	// document's score negative.
	for term, ps := range idx.postings {
		df := float64(len(ps))
		idf := math.Log((n - df + 0.5) / (df + 0.5))
		if idf < 0 {
			idf = 0
		}
		idx.idf[term] = idf
	}

	return idx
}

// Search scores every document containing at least one query term and
// returns the top k by descending score, ties broken by chunk id.
func (idx *BM25Index) Search(query string, k int) []BM25Result {
	if k <= 0 || len(idx.docs) == 0 {
		return nil
	}

	tokens := Tokenize(query, idx.stopWords)
	if len(tokens) == 0 {
		return nil
	}

	k1, b := idx.cfg.K1, idx.cfg.B
	scores := make(map[int]float64)
	for _, term := range tokens {
		idf := idx.idf[term]
		if idf == 0 {
			continue
		}
		for _, p := range idx.postings[term] {
			tf := float64(p.tf)
			norm := 1 - b + b*float64(idx.docLens[p.doc])/idx.avgDocLen
			scores[p.doc] += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
	}

	results := make([]BM25Result, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, BM25Result{ChunkID: idx.docs[doc], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Stats returns corpus-level statistics for diagnostics.
func (idx *BM25Index) Stats() LexicalStats {
	return LexicalStats{
		NumDocs:      len(idx.docs),
		AvgDocLength: idx.avgDocLen,
		VocabSize:    len(idx.postings),
		K1:           idx.cfg.K1,
		B:            idx.cfg.B,
	}
}
