// Package observability implements the performance monitor of §4.I: an
// in-process rolling-stats tracker for storage and cache call latencies,
// mirrored onto a Prometheus registry for external scraping, plus baseline
// regression detection (see baseline.go).
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names an instrumented call site. Kept as a plain string rather
// than an enum so new call sites can be added without touching this package.
type Operation string

const (
	OperationStorageRead   Operation = "storage_read"
	OperationStorageWrite  Operation = "storage_write"
	OperationCacheRead     Operation = "cache_read"
	OperationEventIngest   Operation = "event_ingest"
	OperationTriggerEval   Operation = "trigger_eval"
	OperationAward         Operation = "award"
	OperationNotifyDeliver Operation = "notify_deliver"
)

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "achievement_engine_operation_duration_seconds",
		Help:    "Duration of instrumented storage/cache/engine operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	callTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "achievement_engine_operation_total",
		Help: "Total instrumented operations, labeled by operation and outcome",
	}, []string{"operation", "outcome"})

	cacheHitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "achievement_engine_cache_result_total",
		Help: "Cache hit/miss/eviction counts by type",
	}, []string{"cache_type", "result"})
)

// opStats accumulates latency samples for one Operation.
type opStats struct {
	mu        sync.Mutex
	count     int64
	successes int64
	failures  int64
	total     time.Duration
	samples   []time.Duration // bounded, for percentile estimation
}

const maxSamplesPerOperation = 2048

func (s *opStats) record(d time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.total += d
	if success {
		s.successes++
	} else {
		s.failures++
	}
	if len(s.samples) >= maxSamplesPerOperation {
		s.samples = s.samples[1:]
	}
	s.samples = append(s.samples, d)
}

func (s *opStats) snapshot() OperationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := OperationSnapshot{
		Count:     s.count,
		Successes: s.successes,
		Failures:  s.failures,
	}
	if s.count > 0 {
		snap.AvgDuration = s.total / time.Duration(s.count)
	}
	if len(s.samples) == 0 {
		return snap
	}

	sorted := make([]time.Duration, len(s.samples))
	copy(sorted, s.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	snap.P50 = percentile(sorted, 0.50)
	snap.P95 = percentile(sorted, 0.95)
	snap.P99 = percentile(sorted, 0.99)
	snap.Max = sorted[len(sorted)-1]
	return snap
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// OperationSnapshot is a point-in-time view of one operation's stats.
type OperationSnapshot struct {
	Count       int64
	Successes   int64
	Failures    int64
	AvgDuration time.Duration
	P50, P95, P99, Max time.Duration
}

// Snapshot is a point-in-time view of every tracked operation.
type Snapshot struct {
	Timestamp  time.Time
	Operations map[Operation]OperationSnapshot
}

// Monitor tracks rolling latency/outcome stats per Operation and mirrors
// every recorded sample onto the package's Prometheus collectors.
type Monitor struct {
	mu   sync.RWMutex
	ops  map[Operation]*opStats
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{ops: make(map[Operation]*opStats)}
}

// Record logs one completed call to op, taking d and succeeding or failing.
// A nil Monitor records nothing, so components can hold an optional monitor
// without a separate nil check at every call site.
func (m *Monitor) Record(op Operation, d time.Duration, success bool) {
	if m == nil {
		return
	}

	m.statsFor(op).record(d, success)

	callDuration.WithLabelValues(string(op)).Observe(d.Seconds())
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	callTotal.WithLabelValues(string(op), outcome).Inc()
}

// Track wraps fn, recording its duration and whether it returned a non-nil
// error as op's outcome. The error, if any, is returned unchanged. A nil
// Monitor still runs fn, it just skips recording.
func (m *Monitor) Track(op Operation, fn func() error) error {
	if m == nil {
		return fn()
	}

	start := time.Now()
	err := fn()
	m.Record(op, time.Since(start), err == nil)
	return err
}

// RecordCacheResult mirrors a cache manager hit/miss/eviction onto the
// Prometheus counters; the in-process cache.Manager already tracks these
// locally (see internal/infrastructure/cache).
func RecordCacheResult(cacheType, result string) {
	cacheHitTotal.WithLabelValues(cacheType, result).Inc()
}

func (m *Monitor) statsFor(op Operation) *opStats {
	m.mu.RLock()
	s, ok := m.ops[op]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.ops[op]; ok {
		return s
	}
	s = &opStats{}
	m.ops[op] = s
	return s
}

// Snapshot returns a point-in-time view of every operation the monitor has
// recorded at least one sample for.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Timestamp:  time.Now(),
		Operations: make(map[Operation]OperationSnapshot, len(m.ops)),
	}
	for op, stats := range m.ops {
		snap.Operations[op] = stats.snapshot()
	}
	return snap
}
