package workers

import (
	"sync"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
	"go.uber.org/zap"
)

// StatusMonitor periodically snapshots the registry's worker statuses,
// logs them, and exports them as gauges.
type StatusMonitor struct {
	registry *Registry
	metrics  ports.MetricsCollector
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewStatusMonitor creates a status monitor. Metrics may be nil.
func NewStatusMonitor(registry *Registry, metrics ports.MetricsCollector, interval time.Duration, logger *zap.Logger) *StatusMonitor {
	return &StatusMonitor{
		registry: registry,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monitoring loop. Safe to call once.
func (m *StatusMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop halts the monitoring loop.
func (m *StatusMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
}

func (m *StatusMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *StatusMonitor) check() {
	counts := m.registry.StatusCounts()

	m.logger.Info("worker status snapshot",
		zap.Int("ready", counts[domain.WorkerStatusReady]),
		zap.Int("busy", counts[domain.WorkerStatusBusy]),
		zap.Int("starting", counts[domain.WorkerStatusStarting]),
		zap.Int("error", counts[domain.WorkerStatusError]))

	if m.metrics != nil {
		m.metrics.RecordWorkerStatuses(counts)
	}

	if counts[domain.WorkerStatusError] > 0 {
		m.logger.Warn("workers in error state",
			zap.Int("count", counts[domain.WorkerStatusError]))
	}
}
