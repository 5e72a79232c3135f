package model

import "time"

// AlertSeverity represents the severity bucket of a critical event
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertType represents the condition that raised the alert
type AlertType string

const (
	AlertTypeHighFatality AlertType = "high_fatality"
	AlertTypeHighSeverity AlertType = "high_severity"
)

// CriticalEvent is the alert derived from a ConflictEvent that crossed
// a severity or fatality threshold. At most one alert is retained per
// event; Notified only ever transitions false to true.
type CriticalEvent struct {
	EventID     string        `json:"event_id"`
	AlertType   AlertType     `json:"alert_type"`
	Severity    AlertSeverity `json:"severity"`
	Fatalities  int           `json:"fatalities"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	DetectedAt  time.Time     `json:"detected_at"`
	Notified    bool          `json:"notified"`
}
