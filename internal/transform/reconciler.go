package transform

import (
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

// criticalSeverityScore is the severity at which an event is flagged
// critical regardless of its fatality count
const criticalSeverityScore = 0.7

// ReconcilerConfig carries the validation and scoring thresholds
type ReconcilerConfig struct {
	// DateFloor rejects events older than this date
	DateFloor time.Time

	// FutureTolerance allows events dated slightly ahead of now,
	// absorbing provider timezone skew
	FutureTolerance time.Duration

	// AlertThreshold is the fatality count that flags an event critical
	AlertThreshold int
}

// Reconciler merges normalized records from all connectors into one
// canonical event set: deduplicate, validate, score. It has no side
// effects and is deterministic for identical inputs.
type Reconciler struct {
	logger  *zap.Logger
	cfg     ReconcilerConfig
	scorers map[model.DataSource]SeverityScorer
}

// NewReconciler creates a reconciler with the given thresholds and
// the default per-source scoring strategies
func NewReconciler(logger *zap.Logger, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		logger:  logger.Named("reconciler"),
		cfg:     cfg,
		scorers: DefaultScorers(),
	}
}

// WithThreshold returns a reconciler scoring against the given
// fatality threshold, keeping every other setting. Runs carry their
// own threshold snapshot, which overrides the process default.
func (r *Reconciler) WithThreshold(threshold int) *Reconciler {
	if threshold <= 0 || threshold == r.cfg.AlertThreshold {
		return r
	}
	dup := *r
	dup.cfg.AlertThreshold = threshold
	return &dup
}

// ReconcileResult reports what the pass kept and what it rejected
type ReconcileResult struct {
	Events     []model.ConflictEvent
	Duplicates int
	Invalid    int
}

// Reconcile runs the merge pass. Input order is connector invocation
// order; the first occurrence of an event_id wins, which makes the
// outcome deterministic for a fixed connector list.
func (r *Reconciler) Reconcile(events []model.ConflictEvent) ReconcileResult {
	result := ReconcileResult{Events: make([]model.ConflictEvent, 0, len(events))}
	seen := make(map[string]struct{}, len(events))
	now := time.Now().UTC()

	for i := range events {
		ev := events[i]

		if _, dup := seen[ev.EventID]; dup {
			result.Duplicates++
			continue
		}
		seen[ev.EventID] = struct{}{}

		if !r.validDate(ev.EventDate, now) || !ev.ValidCoordinates() || ev.Fatalities < 0 {
			result.Invalid++
			continue
		}

		r.score(&ev)
		ev.CreatedAt = now
		ev.UpdatedAt = now
		result.Events = append(result.Events, ev)
	}

	r.logger.Info("Reconciliation complete",
		zap.Int("input", len(events)),
		zap.Int("kept", len(result.Events)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("invalid", result.Invalid))

	return result
}

func (r *Reconciler) validDate(date, now time.Time) bool {
	if date.Before(r.cfg.DateFloor) {
		return false
	}
	return !date.After(now.Add(r.cfg.FutureTolerance))
}

func (r *Reconciler) score(ev *model.ConflictEvent) {
	scorer, ok := r.scorers[ev.DataSource]
	if !ok {
		scorer = FatalitySeverity{}
	}
	ev.SeverityScore = scorer.Score(ev)
	ev.ConfidenceScore = ConfidenceFor(ev.DataSource)
	ev.DataQualityScore = QualityScore(ev)
	ev.IsCritical = ev.Fatalities >= r.cfg.AlertThreshold ||
		ev.SeverityScore >= criticalSeverityScore
}
