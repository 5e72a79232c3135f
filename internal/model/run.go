package model

import "time"

// RunStatus represents the lifecycle state of a pipeline run.
// Transitions are monotonic: pending -> running -> completed|failed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunPhase is the coarse progress marker polled by status callers
type RunPhase string

const (
	RunPhaseExtract   RunPhase = "extract"
	RunPhaseTransform RunPhase = "transform"
	RunPhaseLoad      RunPhase = "load"
	RunPhaseDetect    RunPhase = "detect"
	RunPhaseDone      RunPhase = "done"
)

// RunConfig is the immutable configuration snapshot taken when a run
// is submitted
type RunConfig struct {
	Sources        []DataSource `json:"sources"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	RegionFilter   string       `json:"region_filter,omitempty"`
	AlertThreshold int          `json:"alert_threshold"`
	BatchSize      int          `json:"batch_size"`
}

// RunCounters accumulates per-phase record counts for one run
type RunCounters struct {
	Extracted     int `json:"extracted"`
	Transformed   int `json:"transformed"`
	Loaded        int `json:"loaded"`
	CriticalCount int `json:"critical_count"`
	ErrorCount    int `json:"error_count"`
}

// ETLRun tracks one end-to-end execution of the pipeline
type ETLRun struct {
	RunID        string      `json:"run_id"`
	Config       RunConfig   `json:"config"`
	Status       RunStatus   `json:"status"`
	CurrentPhase RunPhase    `json:"current_phase,omitempty"`
	Counters     RunCounters `json:"counters"`
	Errors       []string    `json:"errors,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Clone returns a snapshot safe to hand to status pollers while the
// owning goroutine keeps mutating the original
func (r *ETLRun) Clone() *ETLRun {
	dup := *r
	dup.Config.Sources = append([]DataSource(nil), r.Config.Sources...)
	dup.Errors = append([]string(nil), r.Errors...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return &dup
}
