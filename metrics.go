package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLockoutTriggered
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricAccountCreationSuccess
	MetricAccountCreationDuplicate
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricEmailVerificationRequest
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricAccountDisabled
	MetricAccountEnabled
	MetricAccountUnlocked
	MetricValidateSuccess
	MetricValidateFailure
	MetricSweepRun
	MetricSweepFailure
	// MetricValidateLatency is the only histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
// The last bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil or disabled Metrics ignores updates.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

// CounterIDs lists every counter in declaration order. MetricValidateLatency
// is a histogram and is not included.
func CounterIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount)-1)
	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricValidateLatency {
			ids = append(ids, id)
		}
	}
	return ids
}

// MetricName returns the exporter name of id without namespace or suffix.
func MetricName(id MetricID) string {
	if int(id) < len(metricNames) {
		return metricNames[id]
	}
	return ""
}

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:                "login_success",
	MetricLoginFailure:                "login_failure",
	MetricLoginRateLimited:            "login_rate_limited",
	MetricLockoutTriggered:            "lockout_triggered",
	MetricRefreshSuccess:              "refresh_success",
	MetricRefreshFailure:              "refresh_failure",
	MetricRefreshReuseDetected:        "refresh_reuse_detected",
	MetricRateLimitHit:                "rate_limit_hit",
	MetricSessionCreated:              "session_created",
	MetricSessionInvalidated:          "session_invalidated",
	MetricLogout:                      "logout",
	MetricLogoutAll:                   "logout_all",
	MetricAccountCreationSuccess:      "account_creation_success",
	MetricAccountCreationDuplicate:    "account_creation_duplicate",
	MetricPasswordResetRequest:        "password_reset_request",
	MetricPasswordResetConfirmSuccess: "password_reset_confirm_success",
	MetricPasswordResetConfirmFailure: "password_reset_confirm_failure",
	MetricEmailVerificationRequest:    "email_verification_request",
	MetricEmailVerificationSuccess:    "email_verification_success",
	MetricEmailVerificationFailure:    "email_verification_failure",
	MetricAccountDisabled:             "account_disabled",
	MetricAccountEnabled:              "account_enabled",
	MetricAccountUnlocked:             "account_unlocked",
	MetricValidateSuccess:             "validate_success",
	MetricValidateFailure:             "validate_failure",
	MetricSweepRun:                    "sweep_run",
	MetricSweepFailure:                "sweep_failure",
	MetricValidateLatency:             "validate_latency",
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
