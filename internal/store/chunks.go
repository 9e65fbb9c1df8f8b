package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// ChunkStore keeps the full chunk corpus addressable by id and by procedure.
// It is immutable after construction; reloads build a fresh store and swap it
// into the pipeline.
type ChunkStore struct {
	path        string
	chunks      []*Chunk
	byID        map[string]*Chunk
	byProcedure map[string][]*Chunk // parent first, children in stable type order
}

// chunkFile is the on-disk shape. The ingestion job writes either a bare
// array or a wrapper object with a "chunks" key.
type chunkFile struct {
	Chunks []*Chunk `json:"chunks"`
}

// LoadChunkStore reads the chunk corpus from a single JSON file and validates
// the store invariants. Any violation fails startup with a coded error.
func LoadChunkStore(path string) (*ChunkStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, therrors.Wrap(therrors.CodeStoreCorrupt, fmt.Errorf("read chunk store %s: %w", path, err))
	}

	chunks, err := decodeChunks(data)
	if err != nil {
		return nil, therrors.Wrap(therrors.CodeStoreCorrupt, fmt.Errorf("decode chunk store %s: %w", path, err))
	}

	s, err := NewChunkStore(chunks)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewChunkStore builds a store from an already-decoded chunk slice.
func NewChunkStore(chunks []*Chunk) (*ChunkStore, error) {
	s := &ChunkStore{
		chunks:      chunks,
		byID:        make(map[string]*Chunk, len(chunks)),
		byProcedure: make(map[string][]*Chunk),
	}

	for _, c := range chunks {
		if err := validateChunk(c); err != nil {
			return nil, err
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, therrors.New(therrors.CodeStoreInvariant,
				"duplicate chunk_id "+c.ID, nil)
		}
		s.byID[c.ID] = c
		s.byProcedure[c.ProcedureID] = append(s.byProcedure[c.ProcedureID], c)
	}

	if err := s.validateProcedures(); err != nil {
		return nil, err
	}

	for proc := range s.byProcedure {
		sortProcedureChunks(s.byProcedure[proc])
	}

	return s, nil
}

func decodeChunks(data []byte) ([]*Chunk, error) {
	var chunks []*Chunk
	if err := json.Unmarshal(data, &chunks); err == nil {
		return chunks, nil
	}
	var wrapped chunkFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Chunks, nil
}

func validateChunk(c *Chunk) error {
	switch {
	case c.ID == "":
		return therrors.New(therrors.CodeStoreInvariant, "chunk with empty chunk_id", nil)
	case c.ProcedureID == "":
		return therrors.New(therrors.CodeStoreInvariant, "chunk "+c.ID+" has empty procedure_id", nil)
	case c.Content == "":
		return therrors.New(therrors.CodeStoreInvariant, "chunk "+c.ID+" has empty content", nil)
	case c.TokenCount <= 0:
		return therrors.New(therrors.CodeStoreInvariant, "chunk "+c.ID+" has non-positive token_count", nil)
	case c.Tier != TierParent && c.Tier != TierChild:
		return therrors.New(therrors.CodeStoreInvariant, "chunk "+c.ID+" has unknown tier "+string(c.Tier), nil)
	case !ValidChunkType(c.Type):
		return therrors.New(therrors.CodeStoreInvariant, "chunk "+c.ID+" has unknown chunk_type "+string(c.Type), nil)
	case c.Tier == TierParent && c.Type != ChunkTypeOverview:
		return therrors.New(therrors.CodeStoreInvariant, "parent chunk "+c.ID+" must carry overview, got "+string(c.Type), nil)
	case c.Tier == TierChild && c.Type == ChunkTypeOverview:
		return therrors.New(therrors.CodeStoreInvariant, "child chunk "+c.ID+" may not carry overview", nil)
	}
	return nil
}

// validateProcedures checks that every procedure has exactly one parent
// overview and that every child references an existing parent.
func (s *ChunkStore) validateProcedures() error {
	for proc, chunks := range s.byProcedure {
		parents := 0
		for _, c := range chunks {
			if c.Tier == TierParent {
				parents++
			}
		}
		if parents == 0 {
			return therrors.New(therrors.CodeStoreInvariant,
				"procedure "+proc+" has child chunks but no parent overview", nil)
		}
		if parents > 1 {
			return therrors.New(therrors.CodeStoreInvariant,
				"procedure "+proc+" has more than one parent overview", nil)
		}
	}
	return nil
}

// sortProcedureChunks orders parent first, then children by stable type
// order, then by id for splits within the same type.
func sortProcedureChunks(chunks []*Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.Tier != b.Tier {
			return a.Tier == TierParent
		}
		oa, ob := childTypeOrder[a.Type], childTypeOrder[b.Type]
		if oa != ob {
			return oa < ob
		}
		return a.ID < b.ID
	})
}

// Get returns the chunk with the given id.
func (s *ChunkStore) Get(chunkID string) (*Chunk, error) {
	c, ok := s.byID[chunkID]
	if !ok {
		return nil, therrors.NotFound(chunkID)
	}
	return c, nil
}

// ByProcedure returns all chunks of a procedure, parent first, children in
// stable chunk-type order.
func (s *ChunkStore) ByProcedure(procedureID string) ([]*Chunk, error) {
	chunks, ok := s.byProcedure[procedureID]
	if !ok {
		return nil, therrors.ProcedureNotFound(procedureID)
	}
	return chunks, nil
}

// Parent returns the parent overview chunk of a procedure.
func (s *ChunkStore) Parent(procedureID string) (*Chunk, error) {
	chunks, err := s.ByProcedure(procedureID)
	if err != nil {
		return nil, err
	}
	// Parent is always first after sorting.
	if chunks[0].Tier != TierParent {
		return nil, therrors.ProcedureNotFound(procedureID)
	}
	return chunks[0], nil
}

// HasProcedure reports whether the procedure exists in the store.
func (s *ChunkStore) HasProcedure(procedureID string) bool {
	_, ok := s.byProcedure[procedureID]
	return ok
}

// All returns every chunk in load order. Callers must not mutate.
func (s *ChunkStore) All() []*Chunk {
	return s.chunks
}

// Len returns the number of chunks.
func (s *ChunkStore) Len() int {
	return len(s.chunks)
}

// NumProcedures returns the number of distinct procedures.
func (s *ChunkStore) NumProcedures() int {
	return len(s.byProcedure)
}

// Path returns the file the store was loaded from, if any.
func (s *ChunkStore) Path() string {
	return s.path
}
