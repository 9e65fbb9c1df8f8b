// Package store provides the chunk store, the BM25 lexical index, and the
// HNSW vector store. This is the read-only data layer the retrieval pipeline
// is built on: everything here is constructed once at startup and swapped
// wholesale on reload.
package store

import (
	"fmt"
)

// Tier identifies the level of a chunk in the two-tier hierarchy.
type Tier string

const (
	// TierParent marks procedure-level overview chunks.
	TierParent Tier = "parent"
	// TierChild marks section-level detail chunks.
	TierChild Tier = "child"
)

// ChunkType identifies the semantic section a chunk carries.
// Parent chunks always carry ChunkTypeOverview; child chunks carry exactly
// one of the other values.
type ChunkType string

const (
	ChunkTypeOverview     ChunkType = "overview"
	ChunkTypeDocuments    ChunkType = "documents"
	ChunkTypeRequirements ChunkType = "requirements"
	ChunkTypeProcess      ChunkType = "process"
	ChunkTypeLegal        ChunkType = "legal"
	ChunkTypeFeesTiming   ChunkType = "fees_timing"
	ChunkTypeAgencies     ChunkType = "agencies"
)

// childTypeOrder is the stable ordering used by ByProcedure.
var childTypeOrder = map[ChunkType]int{
	ChunkTypeDocuments:    0,
	ChunkTypeRequirements: 1,
	ChunkTypeProcess:      2,
	ChunkTypeLegal:        3,
	ChunkTypeFeesTiming:   4,
	ChunkTypeAgencies:     5,
}

// ValidChunkType reports whether t is one of the closed set of chunk types.
func ValidChunkType(t ChunkType) bool {
	if t == ChunkTypeOverview {
		return true
	}
	_, ok := childTypeOrder[t]
	return ok
}

// Chunk is an immutable unit of retrievable text. ChunkIDs are stable across
// runs; the pair (ProcedureID, overview) uniquely identifies a parent, while
// several children may share (ProcedureID, Type) when a section was split.
type Chunk struct {
	ID            string            `json:"chunk_id"`
	ProcedureID   string            `json:"procedure_id"`
	Tier          Tier              `json:"tier"`
	Type          ChunkType         `json:"chunk_type"`
	Content       string            `json:"content"`
	TokenCount    int               `json:"token_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ParentContext string            `json:"parent_context,omitempty"`
}

// ProcedureName returns the human-readable procedure name from metadata.
func (c *Chunk) ProcedureName() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["procedure_name"]
}

// Domain returns the administrative domain from metadata (e.g. "Hộ tịch").
func (c *Chunk) Domain() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["domain"]
}

// BM25Result is a single lexical search hit.
type BM25Result struct {
	ChunkID string
	Score   float64
}

// VectorResult is a single dense search hit.
type VectorResult struct {
	ChunkID  string
	Distance float32
	Score    float32
}

// Filter is a conjunction over chunk metadata applied by the vector store.
// Zero-value fields match everything.
type Filter struct {
	Tier         Tier
	Types        []ChunkType
	ProcedureIDs []string
}

// Matches reports whether the chunk satisfies every set predicate.
func (f *Filter) Matches(c *Chunk) bool {
	if f == nil {
		return true
	}
	if f.Tier != "" && c.Tier != f.Tier {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if c.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.ProcedureIDs) > 0 {
		found := false
		for _, id := range f.ProcedureIDs {
			if c.ProcedureID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BM25Config holds the Okapi BM25 tunables.
type BM25Config struct {
	// K1 controls term-frequency saturation. Default 1.5; docs elsewhere have
	// used 1.2, so this is deliberately configurable.
	K1 float64
	// B controls document-length normalization. Default 0.75.
	B float64
	// StopWords overrides the built-in Vietnamese stopword list when non-nil.
	StopWords []string
}

// DefaultBM25Config returns the documented defaults.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// LexicalStats describes the state of the BM25 index.
type LexicalStats struct {
	NumDocs      int     `json:"num_docs"`
	AvgDocLength float64 `json:"avg_doc_length"`
	VocabSize    int     `json:"vocab_size"`
	K1           float64 `json:"k1"`
	B            float64 `json:"b"`
}

// VectorStoreConfig holds the HNSW store tunables.
type VectorStoreConfig struct {
	// Dimensions is the embedding width. The corpus is indexed at 1024.
	Dimensions int
	// Metric is "cos" or "l2".
	Metric string
	// M is the HNSW connectivity parameter.
	M int
	// EfSearch is the HNSW search breadth parameter.
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults matching the indexed corpus.
func DefaultVectorStoreConfig() VectorStoreConfig {
	return VectorStoreConfig{Dimensions: 1024, Metric: "cos", M: 16, EfSearch: 40}
}

// ErrDimensionMismatch is returned when a vector's width does not match the
// store's configured dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index has %d dimensions, got %d", e.Expected, e.Got)
}
