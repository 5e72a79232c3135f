package model

import "time"

// PipelineSchedule describes a recurring ingestion run driven by a
// cron expression
type PipelineSchedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	Config      RunConfig  `json:"config"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a snapshot safe to hand to callers while the cron
// goroutine keeps updating the original
func (s *PipelineSchedule) Clone() *PipelineSchedule {
	dup := *s
	dup.Config.Sources = append([]DataSource(nil), s.Config.Sources...)
	if s.LastRunTime != nil {
		t := *s.LastRunTime
		dup.LastRunTime = &t
	}
	if s.NextRunTime != nil {
		t := *s.NextRunTime
		dup.NextRunTime = &t
	}
	return &dup
}
