package transform

import (
	"math"

	"github.com/t77yq/conflictwatch/internal/model"
)

// SeverityScorer computes a severity score in [0,1] for one event.
// Curated and text-mined sources carry structurally different signal
// (fatality counts versus document tone), so each source binds its
// own strategy rather than sharing one formula.
type SeverityScorer interface {
	Score(ev *model.ConflictEvent) float64
}

// sourceConfidence is the fixed per-source confidence constant.
// Curated, human-reviewed sources score higher than automated
// text-mined ones.
var sourceConfidence = map[model.DataSource]float64{
	model.DataSourceACLED: 0.90,
	model.DataSourceUCDP:  0.85,
	model.DataSourceGDELT: 0.60,
}

// ConfidenceFor returns the fixed confidence for a source
func ConfidenceFor(source model.DataSource) float64 {
	if c, ok := sourceConfidence[source]; ok {
		return c
	}
	return 0.5
}

// eventTypeBonus adds a categorical severity bonus. Direct-violence
// categories weigh more than unrest categories.
func eventTypeBonus(eventType string) float64 {
	switch eventType {
	case "Battles", "Violence against civilians", "Explosions/Remote violence",
		"State-based conflict", "Non-state conflict", "One-sided violence":
		return 0.4
	case "Riots", "Strategic developments":
		return 0.2
	default:
		return 0.05
	}
}

// fatalityTerm damps the raw count with a square root and caps the
// contribution so a single mass-casualty event cannot saturate the
// score on its own
func fatalityTerm(fatalities int) float64 {
	if fatalities <= 0 {
		return 0
	}
	return math.Min(0.7, math.Sqrt(float64(fatalities))/20)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// FatalitySeverity scores curated sources from reported fatalities
// plus the event-type bonus
type FatalitySeverity struct{}

// Score implements SeverityScorer
func (FatalitySeverity) Score(ev *model.ConflictEvent) float64 {
	return clamp01(fatalityTerm(ev.Fatalities) + eventTypeBonus(ev.EventType))
}

// ToneSeverity scores text-mined sources from document tone. GDELT
// tone runs roughly -10..+10 with more negative meaning worse; the
// fatality term still applies on the rare records that carry counts.
type ToneSeverity struct{}

// Score implements SeverityScorer
func (ToneSeverity) Score(ev *model.ConflictEvent) float64 {
	toneTerm := 0.0
	if ev.Tone < 0 {
		toneTerm = math.Min(0.6, -ev.Tone/12)
	}
	base := math.Max(toneTerm, fatalityTerm(ev.Fatalities))
	return clamp01(base + eventTypeBonus(ev.EventType))
}

// DefaultScorers binds each source to its scoring strategy
func DefaultScorers() map[model.DataSource]SeverityScorer {
	return map[model.DataSource]SeverityScorer{
		model.DataSourceACLED: FatalitySeverity{},
		model.DataSourceUCDP:  FatalitySeverity{},
		model.DataSourceGDELT: ToneSeverity{},
	}
}

// Data-quality scoring constants
const (
	qualityActorPenalty   = 0.10
	qualitySubTypePenalty = 0.05
	qualityRegionPenalty  = 0.05
	qualityCoordBonus     = 0.10
	qualityTextBonus      = 0.10
	qualityMinTextLength  = 40
)

// QualityScore measures per-event completeness, independent of
// severity: start from 1.0, subtract a fixed penalty per absent
// field, add fixed bonuses for coordinates and descriptive text.
func QualityScore(ev *model.ConflictEvent) float64 {
	score := 1.0
	if ev.Actor1 == "" {
		score -= qualityActorPenalty
	}
	if ev.Actor2 == "" {
		score -= qualityActorPenalty
	}
	if ev.SubEventType == "" {
		score -= qualitySubTypePenalty
	}
	if ev.Region == "" {
		score -= qualityRegionPenalty
	}
	if ev.HasCoordinates() {
		score += qualityCoordBonus
	}
	if len(ev.RawText) >= qualityMinTextLength {
		score += qualityTextBonus
	}
	return clamp01(score)
}
