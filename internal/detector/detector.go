package detector

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

const (
	// severityScoreThreshold flags an event regardless of fatalities
	severityScoreThreshold = 0.7

	// criticalFatalityCount maps straight to the critical bucket
	criticalFatalityCount = 100
)

// Detector inspects reconciled events against the configured fatality
// threshold and emits critical-event alerts. Detection never mutates
// the source events.
type Detector struct {
	logger         *zap.Logger
	alertThreshold int
}

// NewDetector creates a detector with the given fatality threshold
func NewDetector(logger *zap.Logger, alertThreshold int) *Detector {
	return &Detector{
		logger:         logger.Named("detector"),
		alertThreshold: alertThreshold,
	}
}

// WithThreshold returns a detector using the given fatality
// threshold, keeping everything else. Runs carry their own threshold
// snapshot, which overrides the process default.
func (d *Detector) WithThreshold(threshold int) *Detector {
	if threshold <= 0 || threshold == d.alertThreshold {
		return d
	}
	dup := *d
	dup.alertThreshold = threshold
	return &dup
}

// Detect returns one alert per event that crosses a threshold
func (d *Detector) Detect(events []model.ConflictEvent) []model.CriticalEvent {
	now := time.Now().UTC()
	var alerts []model.CriticalEvent

	for i := range events {
		ev := &events[i]
		if !d.selects(ev) {
			continue
		}
		alerts = append(alerts, d.buildAlert(ev, now))
	}

	if len(alerts) > 0 {
		d.logger.Info("Critical events detected",
			zap.Int("alerts", len(alerts)),
			zap.Int("events", len(events)))
	}

	return alerts
}

func (d *Detector) selects(ev *model.ConflictEvent) bool {
	return ev.IsCritical ||
		ev.Fatalities >= d.alertThreshold ||
		ev.SeverityScore >= severityScoreThreshold
}

func (d *Detector) buildAlert(ev *model.ConflictEvent, now time.Time) model.CriticalEvent {
	alertType := model.AlertTypeHighSeverity
	if ev.Fatalities >= d.alertThreshold {
		alertType = model.AlertTypeHighFatality
	}

	var severity model.AlertSeverity
	switch {
	case ev.Fatalities >= criticalFatalityCount:
		severity = model.AlertSeverityCritical
	case ev.Fatalities >= d.alertThreshold:
		severity = model.AlertSeverityHigh
	default:
		severity = model.AlertSeverityMedium
	}

	description := ev.RawText
	if description == "" {
		description = fmt.Sprintf("%s in %s on %s",
			ev.EventType, ev.Location(), ev.EventDate.Format("2006-01-02"))
	}

	return model.CriticalEvent{
		EventID:     ev.EventID,
		AlertType:   alertType,
		Severity:    severity,
		Fatalities:  ev.Fatalities,
		Description: description,
		Location:    ev.Location(),
		DetectedAt:  now,
	}
}
