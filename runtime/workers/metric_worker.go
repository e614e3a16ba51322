package workers

import (
	"context"
	"log/slog"
	"time"

	"discussion-lab/observability"
)

// MetricWorker periodically logs a stats snapshot. The session and
// connection counts are read through callbacks so the worker stays
// decoupled from the coordinator.
type MetricWorker struct {
	log             *slog.Logger
	monitor         *observability.Monitor
	interval        time.Duration
	sessionCount    func() int
	connectionCount func() int
}

func NewMetricWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration,
	sessionCount, connectionCount func() int) *MetricWorker {
	return &MetricWorker{
		log:             log,
		monitor:         monitor,
		interval:        interval,
		sessionCount:    sessionCount,
		connectionCount: connectionCount,
	}
}

func (w *MetricWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping metric worker")
			return nil
		case <-ticker.C:
			stats := w.monitor.Snapshot(w.sessionCount(), w.connectionCount())
			w.log.Info("stats",
				"sessions", stats.SessionCount,
				"connections", stats.ConnectionCount,
				"events_published", stats.EventsPublished,
				"events_dropped", stats.EventsDropped,
				"delivery_errors", stats.DeliveryErrors,
				"orchestrator_calls", stats.OrchestratorCalls,
				"orchestrator_failures", stats.OrchestratorFailures,
				"alloc_mem_mb", stats.AllocMemMb,
				"process_cpu_percent", stats.ProcessCPUPercent,
			)
		}
	}
}
