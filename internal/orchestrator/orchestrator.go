package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/connector"
	"github.com/t77yq/conflictwatch/internal/detector"
	"github.com/t77yq/conflictwatch/internal/model"
	"github.com/t77yq/conflictwatch/internal/storage"
	"github.com/t77yq/conflictwatch/internal/transform"
)

// AlertSink receives detected critical events after they have been
// persisted. Delivery is at-least-once; publish failures are recorded
// on the run but never fail it.
type AlertSink interface {
	PublishAlerts(ctx context.Context, alerts []model.CriticalEvent) error
}

// Orchestrator drives pipeline runs end to end: fan-out extraction,
// normalization, reconciliation, load, and detection. Each run owns
// its record; the registry serves concurrent status pollers.
type Orchestrator struct {
	logger     *zap.Logger
	connectors []connector.Connector
	normalizer *transform.Normalizer
	reconciler *transform.Reconciler
	detector   *detector.Detector
	store      storage.Store
	sink       AlertSink

	mu      sync.RWMutex
	runs    map[string]*model.ETLRun
	cancels map[string]context.CancelFunc

	wg sync.WaitGroup
}

// New creates an orchestrator. The connector list order is the
// deduplication precedence: when two sources report the same event,
// the earlier connector wins.
func New(logger *zap.Logger, connectors []connector.Connector, normalizer *transform.Normalizer,
	reconciler *transform.Reconciler, det *detector.Detector, store storage.Store) *Orchestrator {
	return &Orchestrator{
		logger:     logger.Named("orchestrator"),
		connectors: connectors,
		normalizer: normalizer,
		reconciler: reconciler,
		detector:   det,
		store:      store,
		runs:       make(map[string]*model.ETLRun),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetAlertSink attaches an optional downstream alert publisher
func (o *Orchestrator) SetAlertSink(sink AlertSink) {
	o.sink = sink
}

// Submit validates the config and creates a run. In background mode
// it returns immediately with the run executing on its own goroutine;
// otherwise it blocks until the run is terminal.
func (o *Orchestrator) Submit(ctx context.Context, cfg model.RunConfig, background bool) (string, error) {
	if err := validateConfig(cfg); err != nil {
		return "", err
	}

	run := &model.ETLRun{
		RunID:     uuid.New().String(),
		Config:    cfg,
		Status:    model.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	o.runs[run.RunID] = run
	o.mu.Unlock()

	o.logger.Info("Run submitted",
		zap.String("run_id", run.RunID),
		zap.Bool("background", background),
		zap.Int("sources", len(cfg.Sources)))

	if background {
		runCtx, cancel := context.WithCancel(context.Background())
		o.mu.Lock()
		o.cancels[run.RunID] = cancel
		o.mu.Unlock()

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			defer cancel()
			if err := o.Execute(runCtx, run.RunID); err != nil {
				o.logger.Error("Background run failed",
					zap.String("run_id", run.RunID),
					zap.Error(err))
			}
		}()
		return run.RunID, nil
	}

	return run.RunID, o.Execute(ctx, run.RunID)
}

// Execute runs the pipeline phases for a pending run. Attempting to
// execute a run that already left pending is rejected; status is
// strictly monotonic.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	o.mu.Lock()
	run, ok := o.runs[runID]
	if !ok {
		o.mu.Unlock()
		return ErrRunNotFound
	}
	if run.Status != model.RunStatusPending {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrRunAlreadyStarted, runID, run.Status)
	}
	run.Status = model.RunStatusRunning
	run.CurrentPhase = model.RunPhaseExtract
	o.mu.Unlock()

	err := o.execute(ctx, runID, run)
	if err != nil {
		o.finish(runID, model.RunStatusFailed, err.Error())
		return err
	}
	o.finish(runID, model.RunStatusCompleted, "")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, run *model.ETLRun) error {
	cfg := run.Config

	// Extract
	raw := o.extract(ctx, runID, cfg)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled during extract: %w", err)
	}
	o.update(runID, func(r *model.ETLRun) {
		r.Counters.Extracted = len(raw)
		r.CurrentPhase = model.RunPhaseTransform
	})
	if len(raw) == 0 {
		return ErrNoDataExtracted
	}

	// Transform
	normalized, dropped := o.normalizer.Normalize(raw)
	if dropped > 0 {
		o.logger.Info("Records dropped during normalization",
			zap.String("run_id", runID),
			zap.Int("dropped", dropped))
	}
	result := o.reconciler.WithThreshold(cfg.AlertThreshold).Reconcile(normalized)
	o.update(runID, func(r *model.ETLRun) {
		r.Counters.Transformed = len(result.Events)
		r.CurrentPhase = model.RunPhaseLoad
	})
	if len(result.Events) == 0 {
		return ErrNoValidData
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled during transform: %w", err)
	}

	// Load
	loaded, err := o.store.Load(ctx, result.Events)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	o.update(runID, func(r *model.ETLRun) {
		r.Counters.Loaded = loaded
		r.CurrentPhase = model.RunPhaseDetect
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled during load: %w", err)
	}

	// Detect
	alerts := o.detector.WithThreshold(cfg.AlertThreshold).Detect(result.Events)
	if len(alerts) > 0 {
		if err := o.store.SaveAlerts(ctx, alerts); err != nil {
			return fmt.Errorf("failed to save alerts: %w", err)
		}
		if o.sink != nil {
			if err := o.sink.PublishAlerts(ctx, alerts); err != nil {
				o.recordError(runID, fmt.Sprintf("alert publish: %v", err))
			}
		}
	}
	o.update(runID, func(r *model.ETLRun) {
		r.Counters.CriticalCount = len(alerts)
	})

	return nil
}

// extract fans out one fetch per configured connector on a worker
// pool bounded by the source count, then flattens the results in
// connector order so deduplication precedence stays deterministic.
func (o *Orchestrator) extract(ctx context.Context, runID string, cfg model.RunConfig) []connector.RawRecord {
	active := o.selectConnectors(cfg.Sources)
	query := connector.Query{
		Dates:        connector.DateRange{Start: cfg.StartDate, End: cfg.EndDate},
		RegionFilter: cfg.RegionFilter,
		PageSize:     cfg.BatchSize,
	}

	results := make([][]connector.RawRecord, len(active))
	var wg sync.WaitGroup
	sem := make(chan struct{}, len(active))

	for i, conn := range active {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, conn connector.Connector) {
			defer wg.Done()
			defer func() { <-sem }()

			records, err := conn.Fetch(ctx, query)
			if err != nil {
				if errors.Is(err, connector.ErrNoCredentials) {
					o.logger.Info("Source skipped, no credentials",
						zap.String("run_id", runID),
						zap.String("source", string(conn.Source())))
					return
				}
				o.recordError(runID, fmt.Sprintf("%s: %v", conn.Source(), err))
				o.logger.Warn("Connector fetch failed",
					zap.String("run_id", runID),
					zap.String("source", string(conn.Source())),
					zap.Error(err))
				return
			}
			results[idx] = records
		}(i, conn)
	}
	wg.Wait()

	var raw []connector.RawRecord
	for _, records := range results {
		raw = append(raw, records...)
	}
	return raw
}

func (o *Orchestrator) selectConnectors(sources []model.DataSource) []connector.Connector {
	var active []connector.Connector
	for _, conn := range o.connectors {
		for _, src := range sources {
			if conn.Source() == src {
				active = append(active, conn)
				break
			}
		}
	}
	return active
}

// finish transitions the run to a terminal state and persists the
// record. A failed run keeps every counter accumulated so far.
func (o *Orchestrator) finish(runID string, status model.RunStatus, errMsg string) {
	now := time.Now().UTC()
	var snapshot *model.ETLRun

	o.mu.Lock()
	if run, ok := o.runs[runID]; ok && !run.Status.Terminal() {
		run.Status = status
		run.CompletedAt = &now
		run.ErrorMessage = errMsg
		if status == model.RunStatusCompleted {
			run.CurrentPhase = model.RunPhaseDone
		}
		snapshot = run.Clone()
	}
	delete(o.cancels, runID)
	o.mu.Unlock()

	if snapshot == nil {
		return
	}

	o.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("loaded", snapshot.Counters.Loaded),
		zap.Int("critical", snapshot.Counters.CriticalCount),
		zap.Int("errors", snapshot.Counters.ErrorCount))

	// Persist with a fresh context so a cancelled run still records
	// its terminal state
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.SaveRun(saveCtx, snapshot); err != nil {
		o.logger.Error("Failed to persist run record",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

func (o *Orchestrator) update(runID string, fn func(*model.ETLRun)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run, ok := o.runs[runID]; ok {
		fn(run)
	}
}

func (o *Orchestrator) recordError(runID string, msg string) {
	o.update(runID, func(r *model.ETLRun) {
		r.Errors = append(r.Errors, msg)
		r.Counters.ErrorCount++
	})
}

// Status returns a snapshot of the run, falling back to the persisted
// record when the registry entry has been cleaned up
func (o *Orchestrator) Status(ctx context.Context, runID string) (*model.ETLRun, error) {
	o.mu.RLock()
	run, ok := o.runs[runID]
	var snapshot *model.ETLRun
	if ok {
		snapshot = run.Clone()
	}
	o.mu.RUnlock()

	if snapshot != nil {
		return snapshot, nil
	}

	persisted, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if persisted == nil {
		return nil, ErrRunNotFound
	}
	return persisted, nil
}

// List returns snapshots of every run in the registry
func (o *Orchestrator) List() []*model.ETLRun {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runs := make([]*model.ETLRun, 0, len(o.runs))
	for _, run := range o.runs {
		runs = append(runs, run.Clone())
	}
	return runs
}

// Cancel requests cooperative cancellation of a background run. The
// run stops at the next phase boundary; in-flight HTTP calls are left
// to their own timeouts.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.RLock()
	run, ok := o.runs[runID]
	cancel := o.cancels[runID]
	o.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if run.Status.Terminal() || cancel == nil {
		return ErrRunNotRunning
	}
	cancel()
	return nil
}

// Cleanup removes terminal runs older than maxAge from the registry
// and prunes the persisted run table. Conflict events and alerts are
// never touched.
func (o *Orchestrator) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0

	o.mu.Lock()
	for id, run := range o.runs {
		if run.Status.Terminal() && run.StartedAt.Before(cutoff) {
			delete(o.runs, id)
			removed++
		}
	}
	o.mu.Unlock()

	if removed > 0 {
		o.logger.Info("Cleaned up run registry", zap.Int("removed", removed))
	}

	return o.store.DeleteRunsBefore(ctx, cutoff)
}

// Wait blocks until every background run has finished, used during
// shutdown
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func validateConfig(cfg model.RunConfig) error {
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", ErrInvalidConfig)
	}
	for _, src := range cfg.Sources {
		switch src {
		case model.DataSourceACLED, model.DataSourceGDELT, model.DataSourceUCDP:
		default:
			return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, src)
		}
	}
	if cfg.StartDate.IsZero() || cfg.EndDate.IsZero() {
		return fmt.Errorf("%w: date range not set", ErrInvalidConfig)
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidConfig)
	}
	if cfg.AlertThreshold <= 0 {
		return fmt.Errorf("%w: alert threshold must be positive", ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}
