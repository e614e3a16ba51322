// Package observability aggregates runtime metrics for the introspection
// endpoints. Counters only; it never influences coordinator behavior.
package observability

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is the snapshot served to operators.
type Stats struct {
	SessionCount         int     `json:"session_count"`
	ConnectionCount      int     `json:"connection_count"`
	EventsPublished      uint64  `json:"events_published"`
	EventsDropped        uint64  `json:"events_dropped"`
	DeliveryErrors       uint64  `json:"delivery_errors"`
	OrchestratorCalls    uint64  `json:"orchestrator_calls"`
	OrchestratorFailures uint64  `json:"orchestrator_failures"`
	AllocMemMb           uint64  `json:"alloc_mem_mb"`
	NumGC                uint32  `json:"num_gc"`
	ProcessCPUPercent    float64 `json:"process_cpu_percent"`
	ProcessRSSMb         uint64  `json:"process_rss_mb"`
	UptimeSeconds        int64   `json:"uptime_seconds"`
}

type Monitor struct {
	startedAt time.Time
	proc      *process.Process

	eventsPublished      uint64
	eventsDropped        uint64
	deliveryErrors       uint64
	orchestratorCalls    uint64
	orchestratorFailures uint64
}

func NewMonitor() *Monitor {
	// Process handle may be unavailable in exotic environments; stats
	// then simply omit CPU/RSS.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Monitor{startedAt: time.Now().UTC(), proc: proc}
}

func (m *Monitor) IncrEventsPublished()      { atomic.AddUint64(&m.eventsPublished, 1) }
func (m *Monitor) IncrEventsDropped()        { atomic.AddUint64(&m.eventsDropped, 1) }
func (m *Monitor) IncrDeliveryErrors()       { atomic.AddUint64(&m.deliveryErrors, 1) }
func (m *Monitor) IncrOrchestratorCalls()    { atomic.AddUint64(&m.orchestratorCalls, 1) }
func (m *Monitor) IncrOrchestratorFailures() { atomic.AddUint64(&m.orchestratorFailures, 1) }

// Snapshot merges counters with Go and OS process metrics.
// Session and connection counts are injected by the caller because the
// monitor owns no reference to the coordinator.
func (m *Monitor) Snapshot(sessionCount, connectionCount int) Stats {
	stats := Stats{
		SessionCount:         sessionCount,
		ConnectionCount:      connectionCount,
		EventsPublished:      atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:        atomic.LoadUint64(&m.eventsDropped),
		DeliveryErrors:       atomic.LoadUint64(&m.deliveryErrors),
		OrchestratorCalls:    atomic.LoadUint64(&m.orchestratorCalls),
		OrchestratorFailures: atomic.LoadUint64(&m.orchestratorFailures),
		UptimeSeconds:        int64(time.Since(m.startedAt).Seconds()),
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC

	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			stats.ProcessCPUPercent = cpu
		}
		if info, err := m.proc.MemoryInfo(); err == nil {
			stats.ProcessRSSMb = info.RSS / 1024 / 1024
		}
	}
	return stats
}
