package model

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProxyStats holds monotonically increasing request counters for a running
// proxy instance. Counters are owned exclusively by the proxy server and
// reset only on restart.
//
// Design decision: Total counters are atomics because every request touches
// them concurrently; the per-method map is guarded by a mutex because it is
// written rarely relative to reads and a sync.Map would obscure the
// iteration in Snapshot.
type ProxyStats struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	lastRequest   atomic.Int64 // unix nanos, zero until first request

	mu        sync.Mutex
	perMethod map[string]int64

	// StartedAt is when the proxy began listening. Set once at start.
	startedAt time.Time
}

// NewProxyStats creates stats anchored at the given start time.
func NewProxyStats(startedAt time.Time) *ProxyStats {
	return &ProxyStats{
		perMethod: make(map[string]int64),
		startedAt: startedAt,
	}
}

// RecordRequest counts one request for the given method.
func (s *ProxyStats) RecordRequest(method string, at time.Time) {
	s.totalRequests.Add(1)
	s.lastRequest.Store(at.UnixNano())
	if method == "" {
		return
	}
	s.mu.Lock()
	s.perMethod[method]++
	s.mu.Unlock()
}

// RecordError counts one failed request.
func (s *ProxyStats) RecordError() {
	s.totalErrors.Add(1)
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	TotalRequests   int64            `json:"totalRequests"`
	TotalErrors     int64            `json:"totalErrors"`
	PerMethod       map[string]int64 `json:"perMethod"`
	LastRequestTime time.Time        `json:"lastRequestTime"`
	Uptime          time.Duration    `json:"uptime"`
}

// Snapshot returns a consistent copy of the current counters.
func (s *ProxyStats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalRequests: s.totalRequests.Load(),
		TotalErrors:   s.totalErrors.Load(),
		PerMethod:     make(map[string]int64),
		Uptime:        time.Since(s.startedAt),
	}
	if nanos := s.lastRequest.Load(); nanos != 0 {
		snap.LastRequestTime = time.Unix(0, nanos)
	}
	s.mu.Lock()
	for method, count := range s.perMethod {
		snap.PerMethod[method] = count
	}
	s.mu.Unlock()
	return snap
}
