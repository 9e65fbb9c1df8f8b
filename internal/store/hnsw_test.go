package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func newTestHNSW(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// axisVector returns a unit vector along one axis, slightly perturbed so
// every vector is distinct.
func axisVector(axis int, jitter float32) []float32 {
	v := make([]float32, testDims)
	v[axis] = 1
	v[(axis+1)%testDims] = jitter
	return v
}

func addTestChunks(t *testing.T, s *HNSWStore, chunks []*Chunk, vectors [][]float32) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(), chunks, vectors))
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	s := newTestHNSW(t)
	chunks := []*Chunk{
		testChunk("a", "p1", TierParent, ChunkTypeOverview, "a"),
		testChunk("b", "p1", TierChild, ChunkTypeDocuments, "b"),
		testChunk("c", "p2", TierChild, ChunkTypeProcess, "c"),
	}
	addTestChunks(t, s, chunks, [][]float32{
		axisVector(0, 0.01),
		axisVector(0, 0.2),
		axisVector(2, 0.01),
	})

	assert.Equal(t, 3, s.Count())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))

	results, err := s.Search(context.Background(), axisVector(0, 0), 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
	// Cosine scores stay within [0,1] and descend.
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.LessOrEqual(t, results[0].Score, float32(1.0))
}

func TestHNSWStore_FilteredSearch(t *testing.T) {
	s := newTestHNSW(t)

	// Many parents near the query, one child further away. A filtered
	// search must widen past the parents and still find the child.
	var chunks []*Chunk
	var vectors [][]float32
	for i := 0; i < 8; i++ {
		chunks = append(chunks,
			testChunk(fmt.Sprintf("parent-%d", i), fmt.Sprintf("p%d", i), TierParent, ChunkTypeOverview, "x"))
		vectors = append(vectors, axisVector(0, float32(i)*0.01))
	}
	chunks = append(chunks, testChunk("child-1", "p0", TierChild, ChunkTypeDocuments, "x"))
	vectors = append(vectors, axisVector(1, 0.3))
	addTestChunks(t, s, chunks, vectors)

	results, err := s.Search(context.Background(), axisVector(0, 0), 3,
		&Filter{Tier: TierChild})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "child-1", results[0].ChunkID)

	t.Run("chunk type filter", func(t *testing.T) {
		results, err := s.Search(context.Background(), axisVector(1, 0), 5,
			&Filter{Tier: TierChild, Types: []ChunkType{ChunkTypeProcess}})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("procedure filter", func(t *testing.T) {
		results, err := s.Search(context.Background(), axisVector(0, 0), 5,
			&Filter{ProcedureIDs: []string{"p3"}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "parent-3", results[0].ChunkID)
	})
}

func TestHNSWStore_ReAddReplacesVector(t *testing.T) {
	s := newTestHNSW(t)
	c := testChunk("a", "p1", TierChild, ChunkTypeDocuments, "a")

	addTestChunks(t, s, []*Chunk{c}, [][]float32{axisVector(0, 0)})
	addTestChunks(t, s, []*Chunk{c}, [][]float32{axisVector(2, 0)})
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(context.Background(), axisVector(2, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestHNSW(t)
	c := testChunk("a", "p1", TierChild, ChunkTypeDocuments, "a")

	err := s.Add(context.Background(), []*Chunk{c}, [][]float32{{1, 2}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, testDims, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(context.Background(), []float32{1}, 5, nil)
	require.Error(t, err)
}

func TestHNSWStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newTestHNSW(t)
	addTestChunks(t, s, []*Chunk{
		testChunk("a", "p1", TierParent, ChunkTypeOverview, "a"),
		testChunk("b", "p1", TierChild, ChunkTypeDocuments, "b"),
	}, [][]float32{axisVector(0, 0.1), axisVector(1, 0.1)})
	require.NoError(t, s.Save(path))

	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, testDims, dims)

	loaded, err := NewHNSWStore(VectorStoreConfig{Dimensions: testDims})
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(context.Background(), axisVector(1, 0), 1,
		&Filter{Tier: TierChild})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestReadHNSWStoreDimensions_Missing(t *testing.T) {
	dims, err := ReadHNSWStoreDimensions(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.NoError(t, err)
	assert.Zero(t, dims)
}

func TestHNSWStore_Closed(t *testing.T) {
	s := newTestHNSW(t)
	require.NoError(t, s.Close())

	err := s.Add(context.Background(), []*Chunk{testChunk("a", "p", TierParent, ChunkTypeOverview, "a")},
		[][]float32{axisVector(0, 0)})
	require.Error(t, err)
	_, err = s.Search(context.Background(), axisVector(0, 0), 1, nil)
	require.Error(t, err)
	assert.Zero(t, s.Count())
	require.NoError(t, s.Close())
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	normalizeVectorInPlace(v)
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	zero := []float32{0, 0, 0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0, 0, 0}, zero)
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, float64(distanceToScore(0, "cos")), 1e-6)
	assert.InDelta(t, 0.5, float64(distanceToScore(1, "cos")), 1e-6)
	assert.InDelta(t, 0.0, float64(distanceToScore(2, "cos")), 1e-6)
	assert.InDelta(t, 0.5, float64(distanceToScore(1, "l2")), 1e-6)
}
