package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single counter or histogram slot.
type MetricID uint16

const (
	// MetricPlanBuilt counts plans materialized by the planner (cache
	// misses and forced replans).
	MetricPlanBuilt MetricID = iota
	// MetricPlanCacheHit counts plan requests served from the cache.
	MetricPlanCacheHit
	// MetricPlanCacheMiss counts plan requests that required resolution.
	MetricPlanCacheMiss
	// MetricPlanCacheBypass counts forced replans that skipped the cache read.
	MetricPlanCacheBypass
	// MetricPlanCacheFallback counts plans resolved directly because the
	// cache store was unreachable.
	MetricPlanCacheFallback
	// MetricPolicyPass counts passing policy evaluations.
	MetricPolicyPass
	// MetricPolicyFail counts failing policy evaluations.
	MetricPolicyFail
	// MetricPolicyError counts policy evaluations that degraded to a
	// fail-closed result after an internal error or panic.
	MetricPolicyError
	// MetricPolicyDirectGrant counts policy bindings decided by a direct
	// user/group grant without evaluating the policy.
	MetricPolicyDirectGrant
	// MetricBindingExcludedPolicy counts stage bindings excluded by a
	// failing policy set.
	MetricBindingExcludedPolicy
	// MetricBindingExcludedRestriction counts stage bindings excluded by a
	// target user/group restriction mismatch.
	MetricBindingExcludedRestriction
	// MetricBindingDanglingStage counts stage bindings skipped because the
	// referenced stage no longer exists.
	MetricBindingDanglingStage
	// MetricInvalidationFlow counts cache purges triggered by flow mutations.
	MetricInvalidationFlow
	// MetricInvalidationStage counts cache purges triggered by stage mutations.
	MetricInvalidationStage
	// MetricInvalidationBinding counts cache purges triggered by stage
	// binding mutations.
	MetricInvalidationBinding
	// MetricInvalidationKeysDeleted counts cache keys removed by invalidation.
	MetricInvalidationKeysDeleted
	// MetricInvalidationFailure counts invalidation attempts that could not
	// reach the cache store.
	MetricInvalidationFailure
	// MetricImpersonatedPlan counts plans built for an impersonated principal.
	MetricImpersonatedPlan
	// MetricPlanLatency is the plan() latency histogram.
	MetricPlanLatency
	// MetricIDCount is the number of defined metric IDs.
	MetricIDCount
)

const (
	// HistBucketCount is the fixed histogram bucket count.
	HistBucketCount = 8
	cacheLineSize   = 64
)

type histogram struct {
	buckets [HistBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls metric collection.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and the optional plan latency histogram.
// The write path is lock-free and allocation-free.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// New creates a Metrics instance. When cfg.Enabled is false all operations
// are no-ops.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

// Enabled reports whether collection is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is active.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments a counter by one.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a plan latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricPlanLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// TakeSnapshot copies all counters and histogram buckets.
func (m *Metrics) TakeSnapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, int(MetricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, HistBucketCount)
		for i := 0; i < HistBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricPlanLatency].buckets[i])
		}
		s.Histograms[MetricPlanLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
