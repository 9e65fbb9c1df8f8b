package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the cache's notion of time in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(cfg Config) (*SemanticCache[string], *fakeClock) {
	c := New[string](cfg)
	clock := &fakeClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	c.now = clock.now
	return c, clock
}

func TestSemanticCache_ExactHit(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())

	c.Put("thủ tục khai sinh", []float32{1, 0}, "answer")

	got, ok := c.Get("thủ tục khai sinh", nil)
	require.True(t, ok)
	assert.Equal(t, "answer", got)

	_, ok = c.Get("thủ tục kết hôn", nil)
	assert.False(t, ok)
}

func TestSemanticCache_SemanticHit(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	c.Put("hồ sơ khai sinh gồm gì", []float32{1, 0, 0}, "answer")

	t.Run("similar embedding hits", func(t *testing.T) {
		// cos ≈ 0.995, above the 0.92 threshold.
		got, ok := c.Get("giấy tờ cần cho khai sinh", []float32{1, 0.1, 0})
		require.True(t, ok)
		assert.Equal(t, "answer", got)
	})

	t.Run("dissimilar embedding misses", func(t *testing.T) {
		_, ok := c.Get("lệ phí trước bạ", []float32{0, 1, 0})
		assert.False(t, ok)
	})

	t.Run("nil embedding skips the scan", func(t *testing.T) {
		_, ok := c.Get("giấy tờ cần cho khai sinh", nil)
		assert.False(t, ok)
	})
}

// Answering the same question twice must hit the cache the second time,
// whether the string matches exactly or only semantically.
func TestSemanticCache_RepeatLookupIsStable(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	emb := []float32{0.6, 0.8}
	c.Put("câu hỏi", emb, "v1")

	for i := 0; i < 3; i++ {
		got, ok := c.Get("câu hỏi", emb)
		require.True(t, ok)
		assert.Equal(t, "v1", got)
	}
	assert.Equal(t, uint64(3), c.Stats().Hits)
}

func TestSemanticCache_BestMatchWins(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	c.Put("a", []float32{1, 0.05}, "near")
	c.Put("b", []float32{1, 0.3}, "far")

	got, ok := c.Get("c", []float32{1, 0})
	require.True(t, ok)
	assert.Equal(t, "near", got)
}

func TestSemanticCache_TTLExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	c, clock := newTestCache(cfg)

	c.Put("q", []float32{1, 0}, "v")

	clock.advance(59 * time.Minute)
	_, ok := c.Get("q", nil)
	assert.True(t, ok)

	clock.advance(2 * time.Minute)
	_, ok = c.Get("q", nil)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Expired)
}

// Updating an entry resets its creation time, so the TTL measures from the
// latest Put.
func TestSemanticCache_PutRefreshesTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	c, clock := newTestCache(cfg)

	c.Put("q", []float32{1, 0}, "v1")
	clock.advance(50 * time.Minute)
	c.Put("q", []float32{1, 0}, "v2")
	clock.advance(50 * time.Minute)

	got, ok := c.Get("q", nil)
	require.True(t, ok)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, c.Len())
}

func TestSemanticCache_LRUEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 3
	c, clock := newTestCache(cfg)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("q%d", i), []float32{1, float32(i)}, fmt.Sprintf("v%d", i))
		clock.advance(time.Second)
	}

	// Touch q0 so q1 becomes the least recently used.
	_, ok := c.Get("q0", nil)
	require.True(t, ok)
	clock.advance(time.Second)

	c.Put("q3", []float32{1, 3}, "v3")

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("q1", nil)
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = c.Get("q0", nil)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestSemanticCache_ClearExpired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	c, clock := newTestCache(cfg)

	c.Put("old", []float32{1, 0}, "v")
	clock.advance(2 * time.Hour)
	c.Put("fresh", []float32{0, 1}, "v")

	assert.Equal(t, 1, c.ClearExpired())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh", nil)
	assert.True(t, ok)
}

func TestSemanticCache_Stats(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	c.Put("q", []float32{1, 0}, "v")

	c.Get("q", nil)
	c.Get("missing", nil)

	s := c.Stats()
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 0.5, s.HitRate, 1e-9)
	assert.Equal(t, uint64(2), s.TotalQueries)

	c.Clear()
	assert.Zero(t, c.Len())
	// Clear drops entries but keeps counters.
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scale invariant", []float32{2, 0}, []float32{7, 0}, 1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
