package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// testChunk builds a valid chunk with the given coordinates.
func testChunk(id, procID string, tier Tier, ct ChunkType, content string) *Chunk {
	return &Chunk{
		ID:          id,
		ProcedureID: procID,
		Tier:        tier,
		Type:        ct,
		Content:     content,
		TokenCount:  len(content)/4 + 1,
		Metadata: map[string]string{
			"procedure_name": "Thủ tục đăng ký khai sinh",
			"procedure_code": "1.000689",
			"domain":         "Hộ tịch",
		},
	}
}

// testProcedure builds one complete procedure: a parent plus children.
func testProcedure(procID string, childTypes ...ChunkType) []*Chunk {
	chunks := []*Chunk{
		testChunk(procID+"-overview", procID, TierParent, ChunkTypeOverview, "Tổng quan thủ tục "+procID),
	}
	for _, ct := range childTypes {
		chunks = append(chunks,
			testChunk(procID+"-"+string(ct), procID, TierChild, ct, "Nội dung "+string(ct)+" của "+procID))
	}
	return chunks
}

func TestNewChunkStore(t *testing.T) {
	t.Run("valid corpus", func(t *testing.T) {
		chunks := append(
			testProcedure("proc-1", ChunkTypeDocuments, ChunkTypeProcess),
			testProcedure("proc-2", ChunkTypeFeesTiming)...,
		)
		s, err := NewChunkStore(chunks)
		require.NoError(t, err)
		assert.Equal(t, 5, s.Len())
		assert.Equal(t, 2, s.NumProcedures())
	})

	t.Run("duplicate chunk id rejected", func(t *testing.T) {
		chunks := testProcedure("proc-1", ChunkTypeDocuments)
		chunks = append(chunks, chunks[1])
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
		assert.Equal(t, therrors.CodeStoreInvariant, therrors.GetCode(err))
	})

	t.Run("procedure without parent rejected", func(t *testing.T) {
		chunks := []*Chunk{
			testChunk("c1", "proc-1", TierChild, ChunkTypeDocuments, "hồ sơ"),
		}
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})

	t.Run("two parents for one procedure rejected", func(t *testing.T) {
		chunks := testProcedure("proc-1")
		chunks = append(chunks,
			testChunk("extra-overview", "proc-1", TierParent, ChunkTypeOverview, "lặp"))
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})

	t.Run("parent with non-overview type rejected", func(t *testing.T) {
		chunks := []*Chunk{
			testChunk("c1", "proc-1", TierParent, ChunkTypeDocuments, "sai tier"),
		}
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})

	t.Run("child with overview type rejected", func(t *testing.T) {
		chunks := testProcedure("proc-1")
		chunks = append(chunks,
			testChunk("c2", "proc-1", TierChild, ChunkTypeOverview, "sai type"))
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})

	t.Run("empty content rejected", func(t *testing.T) {
		chunks := testProcedure("proc-1")
		chunks[0].Content = ""
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})

	t.Run("non-positive token count rejected", func(t *testing.T) {
		chunks := testProcedure("proc-1")
		chunks[0].TokenCount = 0
		_, err := NewChunkStore(chunks)
		require.Error(t, err)
	})
}

func TestChunkStore_Get(t *testing.T) {
	s, err := NewChunkStore(testProcedure("proc-1", ChunkTypeDocuments))
	require.NoError(t, err)

	got, err := s.Get("proc-1-documents")
	require.NoError(t, err)
	assert.Equal(t, ChunkTypeDocuments, got.Type)

	_, err = s.Get("missing")
	require.Error(t, err)
	assert.Equal(t, therrors.CodeChunkNotFound, therrors.GetCode(err))
}

func TestChunkStore_ByProcedure_Ordering(t *testing.T) {
	// Insert children out of section order; ByProcedure must return the
	// parent first and children in the fixed section order.
	chunks := []*Chunk{
		testChunk("p-legal", "p", TierChild, ChunkTypeLegal, "căn cứ pháp lý"),
		testChunk("p-documents", "p", TierChild, ChunkTypeDocuments, "thành phần hồ sơ"),
		testChunk("p-overview", "p", TierParent, ChunkTypeOverview, "tổng quan"),
		testChunk("p-process", "p", TierChild, ChunkTypeProcess, "trình tự thực hiện"),
	}
	s, err := NewChunkStore(chunks)
	require.NoError(t, err)

	got, err := s.ByProcedure("p")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, ChunkTypeOverview, got[0].Type)
	assert.Equal(t, ChunkTypeDocuments, got[1].Type)
	assert.Equal(t, ChunkTypeProcess, got[2].Type)
	assert.Equal(t, ChunkTypeLegal, got[3].Type)

	_, err = s.ByProcedure("missing")
	require.Error(t, err)
	assert.Equal(t, therrors.CodeProcedureNotFound, therrors.GetCode(err))
}

func TestChunkStore_Parent(t *testing.T) {
	s, err := NewChunkStore(testProcedure("proc-1", ChunkTypeDocuments))
	require.NoError(t, err)

	parent, err := s.Parent("proc-1")
	require.NoError(t, err)
	assert.Equal(t, TierParent, parent.Tier)
	assert.True(t, s.HasProcedure("proc-1"))
	assert.False(t, s.HasProcedure("proc-9"))
}

func TestLoadChunkStore(t *testing.T) {
	writeCorpus := func(t *testing.T, v any) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "chunks.json")
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0644))
		return path
	}

	t.Run("bare array", func(t *testing.T) {
		path := writeCorpus(t, testProcedure("proc-1", ChunkTypeDocuments))
		s, err := LoadChunkStore(path)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, path, s.Path())
	})

	t.Run("wrapped object", func(t *testing.T) {
		path := writeCorpus(t, map[string]any{"chunks": testProcedure("proc-1")})
		s, err := LoadChunkStore(path)
		require.NoError(t, err)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadChunkStore(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Equal(t, therrors.CodeStoreCorrupt, therrors.GetCode(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, err := LoadChunkStore(path)
		require.Error(t, err)
		assert.Equal(t, therrors.CodeStoreCorrupt, therrors.GetCode(err))
	})
}

func TestChunkMetadataAccessors(t *testing.T) {
	c := testChunk("c1", "p1", TierParent, ChunkTypeOverview, "nội dung")
	assert.Equal(t, "Thủ tục đăng ký khai sinh", c.ProcedureName())
	assert.Equal(t, "Hộ tịch", c.Domain())

	bare := &Chunk{}
	assert.Empty(t, bare.ProcedureName())
	assert.Empty(t, bare.Domain())
}
