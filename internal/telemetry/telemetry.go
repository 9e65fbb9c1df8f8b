// Package telemetry records query patterns for retrieval tuning. All data
// stays local; nothing is reported externally.
package telemetry

import (
	"sync"
	"time"
)

// LatencyBucket is a histogram bucket for end-to-end retrieval latency.
type LatencyBucket string

const (
	BucketUnder50ms   LatencyBucket = "lt50ms"
	BucketUnder200ms  LatencyBucket = "lt200ms"
	BucketUnder500ms  LatencyBucket = "lt500ms"
	BucketUnder2s     LatencyBucket = "lt2s"
	BucketOver2s      LatencyBucket = "ge2s"
)

// AllLatencyBuckets lists buckets in ascending order for reporting.
var AllLatencyBuckets = []LatencyBucket{
	BucketUnder50ms, BucketUnder200ms, BucketUnder500ms, BucketUnder2s, BucketOver2s,
}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketUnder50ms
	case ms < 200:
		return BucketUnder200ms
	case ms < 500:
		return BucketUnder500ms
	case ms < 2000:
		return BucketUnder2s
	default:
		return BucketOver2s
	}
}

// QueryEvent describes one completed retrieval for recording.
type QueryEvent struct {
	Question    string
	Intent      string
	CacheHit    bool
	Degraded    bool
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the retrieval produced no chunks.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// zeroResultCap bounds the retained zero-result questions.
const zeroResultCap = 100

// Collector aggregates query events in memory. A nil *Collector is a no-op,
// so call sites never need to guard on telemetry being enabled.
type Collector struct {
	mu sync.Mutex

	intentCounts  map[string]map[string]int64 // date -> intent -> count
	latencyCounts map[string]map[LatencyBucket]int64
	zeroResults   []string
	zeroHead      int
	zeroSize      int

	cacheHits   int64
	cacheMisses int64
	degraded    int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		intentCounts:  make(map[string]map[string]int64),
		latencyCounts: make(map[string]map[LatencyBucket]int64),
		zeroResults:   make([]string, zeroResultCap),
	}
}

// Record aggregates one event.
func (c *Collector) Record(e QueryEvent) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	date := ts.Format("2006-01-02")

	if c.intentCounts[date] == nil {
		c.intentCounts[date] = make(map[string]int64)
	}
	c.intentCounts[date][e.Intent]++

	if c.latencyCounts[date] == nil {
		c.latencyCounts[date] = make(map[LatencyBucket]int64)
	}
	c.latencyCounts[date][LatencyToBucket(e.Latency)]++

	if e.CacheHit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
	if e.Degraded {
		c.degraded++
	}

	if e.IsZeroResult() {
		c.zeroResults[c.zeroHead] = e.Question
		c.zeroHead = (c.zeroHead + 1) % zeroResultCap
		if c.zeroSize < zeroResultCap {
			c.zeroSize++
		}
	}
}

// Snapshot is the collector's aggregate state for flushing or display.
type Snapshot struct {
	IntentCounts  map[string]map[string]int64
	LatencyCounts map[string]map[LatencyBucket]int64
	ZeroResults   []string
	CacheHits     int64
	CacheMisses   int64
	Degraded      int64
}

// Drain returns the aggregated state and resets the per-date counters.
// Cache and degradation counters are cumulative and survive the drain.
func (c *Collector) Drain() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		IntentCounts:  c.intentCounts,
		LatencyCounts: c.latencyCounts,
		ZeroResults:   c.zeroResultsLocked(),
		CacheHits:     c.cacheHits,
		CacheMisses:   c.cacheMisses,
		Degraded:      c.degraded,
	}
	c.intentCounts = make(map[string]map[string]int64)
	c.latencyCounts = make(map[string]map[LatencyBucket]int64)
	return snap
}

// zeroResultsLocked returns the zero-result questions oldest first.
// Caller holds the mutex.
func (c *Collector) zeroResultsLocked() []string {
	if c.zeroSize == 0 {
		return nil
	}
	out := make([]string, 0, c.zeroSize)
	if c.zeroSize < zeroResultCap {
		out = append(out, c.zeroResults[:c.zeroSize]...)
	} else {
		out = append(out, c.zeroResults[c.zeroHead:]...)
		out = append(out, c.zeroResults[:c.zeroHead]...)
	}
	return out
}
