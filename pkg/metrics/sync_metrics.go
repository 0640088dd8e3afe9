// Package metrics tracks sync cycle counters and latencies.
package metrics

import (
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Sync Metrics
// =============================================================================

// SyncMetrics counts engine activity. The zero value is ready to use.
type SyncMetrics struct {
	cyclesRun       atomic.Int64
	cyclesFailed    atomic.Int64
	cyclesSkipped   atomic.Int64
	uploaded        atomic.Int64
	uploadFailed    atomic.Int64
	downloaded      atomic.Int64
	downloadSkipped atomic.Int64
	undecodable     atomic.Int64
	retried         atomic.Int64
	realtimeEvents  atomic.Int64

	cycleLatency *LatencyTracker
	once         sync.Once
}

func NewSyncMetrics() *SyncMetrics {
	m := &SyncMetrics{}
	m.latency()
	return m
}

func (m *SyncMetrics) latency() *LatencyTracker {
	m.once.Do(func() { m.cycleLatency = NewLatencyTracker(500) })
	return m.cycleLatency
}

// RecordCycle records a finished cycle.
func (m *SyncMetrics) RecordCycle(d time.Duration, failed bool) {
	m.cyclesRun.Add(1)
	if failed {
		m.cyclesFailed.Add(1)
	}
	m.latency().Record(d)
}

// RecordSkip records a cycle refused by the circuit breaker.
func (m *SyncMetrics) RecordSkip() { m.cyclesSkipped.Add(1) }

func (m *SyncMetrics) RecordUpload(succeeded, failed int) {
	m.uploaded.Add(int64(succeeded))
	m.uploadFailed.Add(int64(failed))
}

func (m *SyncMetrics) RecordDownload(applied, skipped, undecodable int) {
	m.downloaded.Add(int64(applied))
	m.downloadSkipped.Add(int64(skipped))
	m.undecodable.Add(int64(undecodable))
}

func (m *SyncMetrics) RecordRetried(n int)  { m.retried.Add(int64(n)) }
func (m *SyncMetrics) RecordRealtimeEvent() { m.realtimeEvents.Add(1) }

// SyncStats is a point-in-time copy of SyncMetrics.
type SyncStats struct {
	CyclesRun       int64        `json:"cycles_run"`
	CyclesFailed    int64        `json:"cycles_failed"`
	CyclesSkipped   int64        `json:"cycles_skipped"`
	Uploaded        int64        `json:"uploaded"`
	UploadFailed    int64        `json:"upload_failed"`
	Downloaded      int64        `json:"downloaded"`
	DownloadSkipped int64        `json:"download_skipped"`
	Undecodable     int64        `json:"undecodable"`
	Retried         int64        `json:"retried"`
	RealtimeEvents  int64        `json:"realtime_events"`
	CycleLatency    LatencyStats `json:"cycle_latency"`
}

func (m *SyncMetrics) Snapshot() SyncStats {
	return SyncStats{
		CyclesRun:       m.cyclesRun.Load(),
		CyclesFailed:    m.cyclesFailed.Load(),
		CyclesSkipped:   m.cyclesSkipped.Load(),
		Uploaded:        m.uploaded.Load(),
		UploadFailed:    m.uploadFailed.Load(),
		Downloaded:      m.downloaded.Load(),
		DownloadSkipped: m.downloadSkipped.Load(),
		Undecodable:     m.undecodable.Load(),
		Retried:         m.retried.Load(),
		RealtimeEvents:  m.realtimeEvents.Load(),
		CycleLatency:    m.latency().Stats(),
	}
}

// =============================================================================
// Latency Tracker
// =============================================================================

// LatencyTracker keeps a sliding window of samples for percentile reporting.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// Drop the oldest 10% at once to avoid shifting on every insert.
		drop := max(lt.maxSamples/10, 1)
		lt.samples = lt.samples[drop:]
	}
	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{}
	}
	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}
	at := func(p float64) time.Duration {
		return time.Duration(lt.samples[int(float64(n-1)*p)]) * time.Microsecond
	}
	return LatencyStats{
		Count: int64(n),
		Min:   time.Duration(lt.samples[0]) * time.Microsecond,
		Max:   time.Duration(lt.samples[n-1]) * time.Microsecond,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   at(0.50),
		P95:   at(0.95),
		P99:   at(0.99),
	}
}

// =============================================================================
// Database Pool Stats
// =============================================================================

// DBPoolStats is reported by the health endpoint for each open database.
type DBPoolStats struct {
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	MaxOpenConnections int           `json:"max_open_connections"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

func GetDBPoolStats(db *sql.DB) DBPoolStats {
	if db == nil {
		return DBPoolStats{}
	}
	s := db.Stats()
	return DBPoolStats{
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		MaxOpenConnections: s.MaxOpenConnections,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}
