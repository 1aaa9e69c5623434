// Package monitoring - metrics.go provides simple atomic counters for
// operational metrics, grounded on the teacher's MetricsCollector.
//
// DESIGN: Lightweight in-memory counters — no Prometheus dependency in the
// pack, so this stays a plain atomic-counter collector like the teacher's.
package monitoring

import "sync/atomic"

// MetricsCollector collects dispatcher/credential/rate-limit operational
// counters.
type MetricsCollector struct {
	requests          atomic.Int64
	successes         atomic.Int64
	retries           atomic.Int64
	rateLimited       atomic.Int64
	credentialRefresh atomic.Int64
	credentialCoalesced atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records a dispatched request and whether it ultimately
// succeeded (after any retries).
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordRetry records one retry attempt taken by the dispatcher (C7).
func (mc *MetricsCollector) RecordRetry() { mc.retries.Add(1) }

// RecordRateLimited records a rate-limiter admission rejection (C5).
func (mc *MetricsCollector) RecordRateLimited() { mc.rateLimited.Add(1) }

// RecordCredentialRefresh records a credential refresh actually issued
// upstream (C4).
func (mc *MetricsCollector) RecordCredentialRefresh() { mc.credentialRefresh.Add(1) }

// RecordCredentialCoalesced records a caller that observed an in-flight
// refresh and waited for it instead of issuing its own (C4, spec.md §8
// property 2).
func (mc *MetricsCollector) RecordCredentialCoalesced() { mc.credentialCoalesced.Add(1) }

// Stats returns a snapshot of current counters.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":             mc.requests.Load(),
		"successes":            mc.successes.Load(),
		"retries":              mc.retries.Load(),
		"rate_limited":         mc.rateLimited.Load(),
		"credential_refresh":   mc.credentialRefresh.Load(),
		"credential_coalesced": mc.credentialCoalesced.Load(),
	}
}
