package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSignInSuccess counts successful sign-ins.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts rejected sign-ins of any internal kind.
	MetricSignInFailure
	// MetricVerifySuccess counts access tokens accepted by Verify.
	MetricVerifySuccess
	// MetricVerifyRevoked counts tokens rejected by the tag cross-check.
	MetricVerifyRevoked
	// MetricVerifyRejected counts tokens rejected before the tag check
	// (expired, malformed, bad signature).
	MetricVerifyRejected
	// MetricRefreshSuccess counts successful refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes.
	MetricRefreshFailure
	// MetricSignOut counts single-device sign-outs.
	MetricSignOut
	// MetricSignOutEverywhere counts account-wide sign-outs.
	MetricSignOutEverywhere
	// MetricOneTimeIssued counts issued one-time tokens.
	MetricOneTimeIssued
	// MetricOneTimeRedeemed counts successful redemptions.
	MetricOneTimeRedeemed
	// MetricOneTimeRejected counts failed redemptions.
	MetricOneTimeRejected

	metricCount
)

// Metrics is a fixed-size lock-free counter set.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricCount),
	}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
