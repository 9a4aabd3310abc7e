package cache

import "sync/atomic"

// Metrics tracks cache performance for observability, in the style of
// StoreMy's tablecache cacheMetrics. Values are read with Snapshot; the
// underlying counters are safe for concurrent use.
type Metrics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	puts      atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters.
type MetricsSnapshot struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Puts      int64
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Puts:      m.puts.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 if there have been no lookups.
func (s MetricsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
