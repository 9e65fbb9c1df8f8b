// Package cache implements the semantic answer cache: an exact-string fast
// path backed by cosine similarity matching over query embeddings, with LRU
// eviction and TTL expiry.
package cache

import (
	"math"
	"sync"
	"time"
)

// Defaults for the semantic cache.
const (
	DefaultSimilarityThreshold = 0.92
	DefaultMaxEntries          = 100
	DefaultTTL                 = 24 * time.Hour
)

// Config configures a SemanticCache.
type Config struct {
	// SimilarityThreshold is the cosine similarity at which two questions
	// are considered the same.
	SimilarityThreshold float64
	// MaxEntries bounds the cache; inserting past it evicts the least
	// recently used entry.
	MaxEntries int
	// TTL is the entry lifetime measured from creation.
	TTL time.Duration
}

// DefaultConfig returns the documented cache defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxEntries:          DefaultMaxEntries,
		TTL:                 DefaultTTL,
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size         int     `json:"size"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	Evictions    uint64  `json:"evictions"`
	Expired      uint64  `json:"expired"`
	TotalQueries uint64  `json:"total_queries"`
}

type entry[V any] struct {
	question   string
	embedding  []float32
	value      V
	createdAt  time.Time
	lastAccess time.Time
}

// SemanticCache caches retrieval results keyed by question. A lookup first
// tries the exact question string, then scans for any entry whose embedding
// has cosine similarity at or above the threshold.
//
// A single mutex guards everything; internal helpers never re-lock.
type SemanticCache[V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry[V]

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64

	now func() time.Time // overridable in tests
}

// New creates a semantic cache with the given configuration.
func New[V any](cfg Config) *SemanticCache[V] {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &SemanticCache[V]{
		cfg:     cfg,
		entries: make(map[string]*entry[V]),
		now:     time.Now,
	}
}

// Get looks up a cached value for the question. embedding may be nil, which
// restricts the lookup to the exact-string fast path.
func (c *SemanticCache[V]) Get(question string, embedding []float32) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if e, ok := c.entries[question]; ok {
		if c.isExpired(e, now) {
			delete(c.entries, question)
			c.expired++
		} else {
			e.lastAccess = now
			c.hits++
			return e.value, true
		}
	}

	if embedding != nil {
		var best *entry[V]
		bestSim := c.cfg.SimilarityThreshold
		for q, e := range c.entries {
			if c.isExpired(e, now) {
				delete(c.entries, q)
				c.expired++
				continue
			}
			if sim := cosineSimilarity(embedding, e.embedding); sim >= bestSim {
				best, bestSim = e, sim
			}
		}
		if best != nil {
			best.lastAccess = now
			c.hits++
			return best.value, true
		}
	}

	c.misses++
	var zero V
	return zero, false
}

// Put stores a value for the question, evicting the least recently used
// entry when the cache is full.
func (c *SemanticCache[V]) Put(question string, embedding []float32, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if e, ok := c.entries[question]; ok {
		e.embedding = embedding
		e.value = value
		e.createdAt = now
		e.lastAccess = now
		return
	}

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictLRU()
	}

	c.entries[question] = &entry[V]{
		question:   question,
		embedding:  embedding,
		value:      value,
		createdAt:  now,
		lastAccess: now,
	}
}

// evictLRU removes the entry with the smallest last_access.
// Caller holds the mutex.
func (c *SemanticCache[V]) evictLRU() {
	var victim string
	var oldest time.Time
	first := true
	for q, e := range c.entries {
		if first || e.lastAccess.Before(oldest) {
			victim, oldest = q, e.lastAccess
			first = false
		}
	}
	if !first {
		delete(c.entries, victim)
		c.evictions++
	}
}

func (c *SemanticCache[V]) isExpired(e *entry[V], now time.Time) bool {
	return now.Sub(e.createdAt) > c.cfg.TTL
}

// ClearExpired removes every expired entry and returns how many were
// dropped.
func (c *SemanticCache[V]) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for q, e := range c.entries {
		if c.isExpired(e, now) {
			delete(c.entries, q)
			c.expired++
			removed++
		}
	}
	return removed
}

// Clear removes every entry without touching the counters.
func (c *SemanticCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// Len returns the number of live entries.
func (c *SemanticCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *SemanticCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:         len(c.entries),
		Hits:         c.hits,
		Misses:       c.misses,
		HitRate:      hitRate,
		Evictions:    c.evictions,
		Expired:      c.expired,
		TotalQueries: total,
	}
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
