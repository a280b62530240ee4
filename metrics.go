package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter. The set is fixed at compile time so counters
// live in a flat array with no lookup on the hot path.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricAccountLockout
	MetricAccountUnlock
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricLogoutAll
	MetricAuthenticateSuccess
	MetricAuthenticateFailure
	MetricTokenRevokedRejection
	MetricAuthorizeAllow
	MetricAuthorizeDeny
	MetricPasswordChangeSuccess
	MetricPasswordChangeRejected
	MetricPasswordExpiredLogin
	MetricNotifyFailure
	MetricStoreRetry
	// MetricAuthenticateLatency is the only histogram-backed metric.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// histBoundsMs are the upper bounds of the first seven buckets in
// milliseconds; everything slower lands in the last bucket.
var histBoundsMs = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

func (h *metricHistogram) observe(d time.Duration) {
	ms := d.Milliseconds()
	idx := histBucketCount - 1
	for i, bound := range histBoundsMs {
		if ms <= bound {
			idx = i
			break
		}
	}
	atomic.AddUint64(&h.buckets[idx], 1)
}

func (h *metricHistogram) snapshot() []uint64 {
	out := make([]uint64, histBucketCount)
	for i := range out {
		out[i] = atomic.LoadUint64(&h.buckets[i])
	}
	return out
}

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics never false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's counter set. A nil or disabled receiver makes
// every operation a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       metricHistogram
}

// MetricsSnapshot is a point-in-time copy for exporters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the histogram-backed metric.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricAuthenticateLatency {
		return
	}
	m.latency.observe(d)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
// Maps are non-nil even when metrics are disabled so exporters never
// nil-check.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		s.Histograms[MetricAuthenticateLatency] = m.latency.snapshot()
	}
	return s
}
