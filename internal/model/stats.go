package model

import "time"

// SeverityBucket maps a severity score into the coarse reporting
// buckets used by the analytics read paths
func SeverityBucket(score float64) AlertSeverity {
	switch {
	case score >= 0.9:
		return AlertSeverityCritical
	case score >= 0.7:
		return AlertSeverityHigh
	case score >= 0.4:
		return AlertSeverityMedium
	default:
		return AlertSeverityLow
	}
}

// EventStats is the aggregate view over a trailing window of events
type EventStats struct {
	WindowDays      int                   `json:"window_days"`
	TotalEvents     int                   `json:"total_events"`
	TotalFatalities int                   `json:"total_fatalities"`
	CriticalEvents  int                   `json:"critical_events"`
	ByCountry       map[string]int        `json:"by_country"`
	BySeverity      map[AlertSeverity]int `json:"by_severity"`
}

// PipelineStats is the point-in-time snapshot published by the
// metrics collector
type PipelineStats struct {
	ActiveRuns    int       `json:"active_runs"`
	CompletedRuns int       `json:"completed_runs"`
	FailedRuns    int       `json:"failed_runs"`
	EventsLoaded  int       `json:"events_loaded"`
	AlertsRaised  int       `json:"alerts_raised"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryUsage   float64   `json:"memory_usage"`
	CollectedAt   time.Time `json:"collected_at"`
}
