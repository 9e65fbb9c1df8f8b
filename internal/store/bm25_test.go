package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bm25Corpus builds a store whose child chunks carry the given contents.
func bm25Corpus(t *testing.T, contents ...string) *ChunkStore {
	t.Helper()
	chunks := []*Chunk{
		testChunk("p-overview", "p", TierParent, ChunkTypeOverview, "Tổng quan thủ tục hành chính"),
	}
	for i, content := range contents {
		chunks = append(chunks,
			testChunk(fmt.Sprintf("p-doc-%d", i), "p", TierChild, ChunkTypeDocuments, content))
	}
	s, err := NewChunkStore(chunks)
	require.NoError(t, err)
	return s
}

func TestBM25Index_Search(t *testing.T) {
	s := bm25Corpus(t,
		"giấy khai sinh bản sao chứng thực",
		"giấy phép xây dựng nhà ở riêng lẻ",
		"lệ phí trước bạ phương tiện giao thông",
	)
	idx := NewBM25Index(s, DefaultBM25Config())

	t.Run("matches the right document", func(t *testing.T) {
		results := idx.Search("khai sinh", 10)
		require.NotEmpty(t, results)
		assert.Equal(t, "p-doc-0", results[0].ChunkID)
	})

	t.Run("scores descend", func(t *testing.T) {
		results := idx.Search("giấy khai sinh", 10)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
	})

	t.Run("k truncates", func(t *testing.T) {
		results := idx.Search("giấy", 1)
		assert.LessOrEqual(t, len(results), 1)
	})

	t.Run("no hits for unseen term", func(t *testing.T) {
		assert.Empty(t, idx.Search("passport", 10))
	})

	t.Run("zero k returns nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("giấy", 0))
	})

	t.Run("stopword-only query returns nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("và của là", 10))
	})
}

// Adding or removing stopwords from a query must not change the ranking,
// since the tokenizer drops them before scoring.
func TestBM25Index_StopWordInvariance(t *testing.T) {
	s := bm25Corpus(t,
		"hồ sơ đăng ký khai sinh gồm tờ khai bản chính",
		"trình tự thực hiện thủ tục cấp hộ chiếu phổ thông",
		"thời hạn giải quyết hồ sơ cấp đổi giấy phép lái xe",
	)
	idx := NewBM25Index(s, DefaultBM25Config())

	plain := idx.Search("hồ sơ khai sinh", 10)
	padded := idx.Search("hồ sơ và của khai sinh là được", 10)

	require.Equal(t, len(plain), len(padded))
	for i := range plain {
		assert.Equal(t, plain[i].ChunkID, padded[i].ChunkID)
		assert.InDelta(t, plain[i].Score, padded[i].Score, 1e-9)
	}
}

// A term present in every document gets its IDF clamped to zero and must
// not contribute to any score, so a query of only such terms returns empty.
func TestBM25Index_IDFClamp(t *testing.T) {
	s := bm25Corpus(t,
		"giấy khai sinh giấy",
		"giấy phép xây dựng giấy",
		"giấy đăng ký xe giấy",
	)
	idx := NewBM25Index(s, DefaultBM25Config())

	// "giấy" appears in all child chunks but not the overview, so its
	// df=3 out of n=4: log((4-3+0.5)/(3+0.5)) < 0, clamped to 0.
	assert.Empty(t, idx.Search("giấy", 10))
}

func TestBM25Index_Stats(t *testing.T) {
	s := bm25Corpus(t, "giấy khai sinh", "giấy phép xây dựng")
	cfg := DefaultBM25Config()
	idx := NewBM25Index(s, cfg)

	stats := idx.Stats()
	assert.Equal(t, 3, stats.NumDocs)
	assert.Greater(t, stats.VocabSize, 0)
	assert.Greater(t, stats.AvgDocLength, 0.0)
	assert.Equal(t, cfg.K1, stats.K1)
	assert.Equal(t, cfg.B, stats.B)
}

func TestTokenize(t *testing.T) {
	stop := BuildStopWordMap(DefaultVietnameseStopWords)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lowercases", "Giấy Khai Sinh", []string{"giấy", "khai", "sinh"}},
		{"splits on punctuation", "hồ sơ, giấy tờ.", []string{"hồ", "sơ", "giấy", "tờ"}},
		{"drops stopwords", "hồ sơ và giấy tờ", []string{"hồ", "sơ", "giấy", "tờ"}},
		{"drops single characters", "a hồ sơ b", []string{"hồ", "sơ"}},
		{"keeps digits", "mã 1.004946 của thủ tục", []string{"mã", "004946", "thủ", "tục"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input, stop))
		})
	}
}

func TestWordSet(t *testing.T) {
	set := WordSet("giấy khai sinh giấy")
	assert.Len(t, set, 3)
	_, ok := set["giấy"]
	assert.True(t, ok)
}
