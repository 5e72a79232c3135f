package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

// CronRunner submits recurring background pipeline runs on cron
// expressions. The runner owns its schedule records; getters hand out
// snapshots so callers never race the cron goroutine.
type CronRunner struct {
	logger *zap.Logger
	orch   *Orchestrator
	cron   *cron.Cron

	mu        sync.RWMutex
	schedules map[string]*model.PipelineSchedule
	entryIDs  map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronRunner creates a cron runner bound to the orchestrator
func NewCronRunner(orch *Orchestrator, logger *zap.Logger) *CronRunner {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &CronRunner{
		logger:    logger.Named("cron-runner"),
		orch:      orch,
		cron:      cron.New(cron.WithChain(cron.Recover(cl))),
		schedules: make(map[string]*model.PipelineSchedule),
		entryIDs:  make(map[string]cron.EntryID),
	}
}

// Start starts the cron loop
func (r *CronRunner) Start() {
	r.cron.Start()
	r.logger.Info("Cron runner started")
}

// Stop stops the cron loop, waiting for an in-flight submission
func (r *CronRunner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Cron runner stopped")
}

// AddSchedule registers a recurring run. The schedule's date range is
// recomputed at fire time as a trailing window of the same width.
func (r *CronRunner) AddSchedule(schedule *model.PipelineSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	schedule.CreatedAt = time.Now().UTC()
	schedule.UpdatedAt = schedule.CreatedAt

	entryID, err := r.cron.AddFunc(schedule.Expression, func() {
		r.fire(schedule.ID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.Expression, err)
	}

	next := r.cron.Entry(entryID).Next
	if !next.IsZero() {
		schedule.NextRunTime = &next
	}

	r.mu.Lock()
	r.schedules[schedule.ID] = schedule.Clone()
	r.entryIDs[schedule.ID] = entryID
	r.mu.Unlock()

	r.logger.Info("Schedule added",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression))
	return nil
}

// RemoveSchedule unregisters a recurring run
func (r *CronRunner) RemoveSchedule(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entryID, ok := r.entryIDs[id]
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	r.cron.Remove(entryID)
	delete(r.entryIDs, id)
	delete(r.schedules, id)
	return nil
}

// GetSchedule returns a snapshot of a schedule by ID
func (r *CronRunner) GetSchedule(id string) (*model.PipelineSchedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return schedule.Clone(), nil
}

// ListSchedules returns snapshots of all registered schedules
func (r *CronRunner) ListSchedules() []*model.PipelineSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*model.PipelineSchedule, 0, len(r.schedules))
	for _, schedule := range r.schedules {
		schedules = append(schedules, schedule.Clone())
	}
	return schedules
}

func (r *CronRunner) fire(scheduleID string) {
	r.mu.RLock()
	schedule, ok := r.schedules[scheduleID]
	var cfg model.RunConfig
	if ok {
		cfg = schedule.Clone().Config
	}
	r.mu.RUnlock()
	if !ok {
		return
	}

	// Shift the configured window forward so every firing covers the
	// same trailing span ending today
	window := cfg.EndDate.Sub(cfg.StartDate)
	cfg.EndDate = time.Now().UTC().Truncate(24 * time.Hour)
	cfg.StartDate = cfg.EndDate.Add(-window)

	runID, err := r.orch.Submit(context.Background(), cfg, true)
	if err != nil {
		r.logger.Error("Scheduled run submission failed",
			zap.String("schedule_id", scheduleID),
			zap.Error(err))
		return
	}

	now := time.Now().UTC()

	r.mu.Lock()
	if schedule, ok := r.schedules[scheduleID]; ok {
		schedule.LastRunID = runID
		schedule.LastRunTime = &now
		schedule.UpdatedAt = now
		if entryID, ok := r.entryIDs[scheduleID]; ok {
			next := r.cron.Entry(entryID).Next
			if !next.IsZero() {
				schedule.NextRunTime = &next
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("Scheduled run submitted",
		zap.String("schedule_id", scheduleID),
		zap.String("run_id", runID))
}
