package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

const (
	metricsStreamName = "METRICS"
	metricsSubject    = "metrics.pipeline"
)

// RunLister exposes the orchestrator's run registry to the collector
type RunLister interface {
	List() []*model.ETLRun
}

// MetricsCollector periodically publishes pipeline throughput and
// host resource usage for external dashboards
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	runs     RunLister
	interval time.Duration
	stop     chan struct{}
}

// NewMetricsCollector creates the collector and ensures the metrics
// stream exists
func NewMetricsCollector(js nats.JetStreamContext, runs RunLister, interval time.Duration, logger *zap.Logger) (*MetricsCollector, error) {
	_, err := js.StreamInfo(metricsStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     metricsStreamName,
			Subjects: []string{"metrics.*"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics stream: %w", err)
		}
	}

	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		runs:     runs,
		interval: interval,
		stop:     make(chan struct{}),
	}, nil
}

// Start starts the collection loop
func (c *MetricsCollector) Start(ctx context.Context) {
	c.logger.Info("Starting metrics collector",
		zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
}

// Stop stops the collection loop
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Snapshot aggregates the current registry into pipeline stats
func (c *MetricsCollector) Snapshot() model.PipelineStats {
	stats := model.PipelineStats{CollectedAt: time.Now().UTC()}

	for _, run := range c.runs.List() {
		switch run.Status {
		case model.RunStatusCompleted:
			stats.CompletedRuns++
		case model.RunStatusFailed:
			stats.FailedRuns++
		default:
			stats.ActiveRuns++
		}
		stats.EventsLoaded += run.Counters.Loaded
		stats.AlertsRaised += run.Counters.CriticalCount
	}

	return stats
}

func (c *MetricsCollector) collect() {
	stats := c.Snapshot()

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	stats.CPUUsage = cpuPercent[0]
	stats.MemoryUsage = memInfo.UsedPercent

	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish(metricsSubject, data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics published",
		zap.Int("active_runs", stats.ActiveRuns),
		zap.Float64("cpu_usage", stats.CPUUsage),
		zap.Float64("memory_usage", stats.MemoryUsage))
}
