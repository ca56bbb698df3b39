package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/httputil"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/monitoring"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/worker"
)

const probeTimeout = 5 * time.Second

// Monitor schedules reachability probes for every registered provider
// on a fixed interval, fanning the checks out over a worker pool.
type Monitor struct {
	registry *registry.Registry
	tracker  *Tracker
	metrics  *monitoring.Metrics
	client   *http.Client
	logger   *slog.Logger

	interval time.Duration
	workers  int

	cancel   context.CancelFunc
	jobQueue chan worker.Job
	poolWG   *sync.WaitGroup
	loopWG   sync.WaitGroup
}

func NewMonitor(
	reg *registry.Registry,
	tracker *Tracker,
	metrics *monitoring.Metrics,
	interval time.Duration,
	workers int,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		registry: reg,
		tracker:  tracker,
		metrics:  metrics,
		client:   httputil.NewClient(nil),
		logger:   logger,
		interval: interval,
		workers:  workers,
	}
}

// Start launches the worker pool and the scheduling loop.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.jobQueue = make(chan worker.Job, m.registry.Count())
	m.poolWG = worker.SpawnPool(ctx, m.workers, m.jobQueue, m.logger)

	m.loopWG.Add(1)
	go m.loop(ctx)

	m.logger.Info("reachability monitor started",
		"interval", m.interval,
		"workers", m.workers,
		"providers", m.registry.Count(),
	)
}

// Stop cancels the loop and waits for in-flight probes to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.loopWG.Wait()
	close(m.jobQueue)
	m.poolWG.Wait()
	m.logger.Info("reachability monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.enqueueAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.enqueueAll(ctx)
		}
	}
}

func (m *Monitor) enqueueAll(ctx context.Context) {
	for _, p := range m.registry.All() {
		job := &probeJob{monitor: m, provider: p}
		select {
		case m.jobQueue <- job:
		case <-ctx.Done():
			return
		default:
			// Previous round still running; skip rather than pile up.
			m.logger.Debug("probe skipped, queue full", "provider", p.ID)
		}
	}
}

type probeJob struct {
	monitor  *Monitor
	provider registry.Provider
}

func (j *probeJob) Execute(ctx context.Context) error {
	m := j.monitor
	p := j.provider

	err := m.check(ctx, p.Endpoint)
	if err != nil {
		m.metrics.UpdateReachability(p.ID, false)
		if m.tracker.RecordFailure(p.ID) {
			m.logger.Warn("provider endpoint became unreachable",
				"provider", p.ID,
				"endpoint", p.Endpoint,
				"error", err,
			)
		}
		return nil
	}

	m.metrics.UpdateReachability(p.ID, true)
	if m.tracker.RecordSuccess(p.ID) {
		m.logger.Info("provider endpoint reachable again",
			"provider", p.ID,
			"endpoint", p.Endpoint,
		)
	}
	return nil
}

// check issues an unauthenticated HEAD request. Any HTTP response means
// the endpoint is reachable; 4xx from a provider that dislikes HEAD is
// still a live endpoint.
func (m *Monitor) check(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	resp.Body.Close()

	return nil
}
