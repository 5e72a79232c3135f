package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/config"
	"github.com/t77yq/conflictwatch/internal/model"
	"github.com/t77yq/conflictwatch/internal/orchestrator"
	"github.com/t77yq/conflictwatch/internal/storage"
)

// SourceInfo describes one configured provider for the catalog
type SourceInfo struct {
	Name          model.DataSource `json:"name"`
	Description   string           `json:"description"`
	Curated       bool             `json:"curated"`
	RequiresKey   bool             `json:"requires_key"`
	CredentialsOK bool             `json:"credentials_ok"`
}

// Catalog is the static configuration description served to the web
// layer
type Catalog struct {
	Sources       []SourceInfo `json:"sources"`
	Regions       []string     `json:"regions"`
	ConflictTypes []string     `json:"conflict_types"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// ExecuteRequest triggers a pipeline run
type ExecuteRequest struct {
	Sources      []string `json:"sources,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	RegionFilter string   `json:"region_filter,omitempty"`
	Background   bool     `json:"background"`
}

// ExecuteResponse reports the submitted run
type ExecuteResponse struct {
	RunID  string          `json:"run_id"`
	Status model.RunStatus `json:"status"`
}

// SystemSummary is the aggregate status served when no run ID is given
type SystemSummary struct {
	Stats      *model.EventStats `json:"stats"`
	ActiveRuns int               `json:"active_runs"`
	RecentRuns []*model.ETLRun   `json:"recent_runs"`
}

// Analytics is the windowed aggregate view
type Analytics struct {
	Summary    AnalyticsSummary            `json:"summary"`
	BySeverity map[model.AlertSeverity]int `json:"by_severity"`
	ByCountry  map[string]int              `json:"by_country"`
}

// AnalyticsSummary holds the headline numbers
type AnalyticsSummary struct {
	WindowDays      int `json:"window_days"`
	TotalEvents     int `json:"total_events"`
	TotalFatalities int `json:"total_fatalities"`
	CriticalEvents  int `json:"critical_events"`
}

// Pipeline is the request/response boundary consumed by the external
// web layer
type Pipeline struct {
	logger *zap.Logger
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	store  storage.Store
}

// NewPipeline creates the service facade
func NewPipeline(logger *zap.Logger, cfg *config.Config, orch *orchestrator.Orchestrator, store storage.Store) *Pipeline {
	return &Pipeline{
		logger: logger.Named("pipeline-service"),
		cfg:    cfg,
		orch:   orch,
		store:  store,
	}
}

// DatasetsCatalog returns the static source/region/type description
func (p *Pipeline) DatasetsCatalog() Catalog {
	catalog := Catalog{
		Sources: []SourceInfo{
			{
				Name:          model.DataSourceACLED,
				Description:   "Armed Conflict Location & Event Data",
				Curated:       true,
				RequiresKey:   true,
				CredentialsOK: p.cfg.HasCredentials(model.DataSourceACLED),
			},
			{
				Name:          model.DataSourceGDELT,
				Description:   "GDELT 2.0 global news monitoring",
				Curated:       false,
				RequiresKey:   false,
				CredentialsOK: true,
			},
			{
				Name:          model.DataSourceUCDP,
				Description:   "Uppsala Conflict Data Program GED",
				Curated:       true,
				RequiresKey:   false,
				CredentialsOK: true,
			},
		},
		Regions: []string{
			"Western Africa", "Eastern Africa", "Middle Africa", "Northern Africa",
			"Southern Africa", "Middle East", "South Asia", "Southeast Asia",
			"East Asia", "Central Asia", "Europe", "Caucasus and Central Asia",
			"North America", "South America", "Central America", "Caribbean", "Oceania",
		},
		ConflictTypes: []string{
			"Battles", "Violence against civilians", "Explosions/Remote violence",
			"Riots", "Protests", "Strategic developments",
			"State-based conflict", "Non-state conflict", "One-sided violence",
		},
	}

	for _, src := range catalog.Sources {
		if src.RequiresKey && !src.CredentialsOK {
			catalog.Warnings = append(catalog.Warnings,
				fmt.Sprintf("%s credentials not configured; source will be skipped", src.Name))
		}
	}

	return catalog
}

// ExecutePipeline triggers a run, defaulting any field the request
// leaves empty from the configured pipeline settings
func (p *Pipeline) ExecutePipeline(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	cfg, err := p.buildRunConfig(req)
	if err != nil {
		return nil, err
	}

	runID, err := p.orch.Submit(ctx, cfg, req.Background)
	if err != nil {
		return nil, err
	}

	run, err := p.orch.Status(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &ExecuteResponse{RunID: runID, Status: run.Status}, nil
}

func (p *Pipeline) buildRunConfig(req ExecuteRequest) (model.RunConfig, error) {
	cfg := model.RunConfig{
		RegionFilter:   req.RegionFilter,
		AlertThreshold: p.cfg.AlertThreshold,
		BatchSize:      p.cfg.BatchSize,
	}

	if len(req.Sources) > 0 {
		for _, name := range req.Sources {
			cfg.Sources = append(cfg.Sources, model.DataSource(name))
		}
	} else {
		cfg.Sources = append(cfg.Sources, p.cfg.EnabledSources...)
	}

	start, end := p.cfg.DefaultDateRange(time.Now())
	cfg.StartDate, cfg.EndDate = start, end

	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return cfg, fmt.Errorf("%w: bad start_date %q", orchestrator.ErrInvalidConfig, req.StartDate)
		}
		cfg.StartDate = t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return cfg, fmt.Errorf("%w: bad end_date %q", orchestrator.ErrInvalidConfig, req.EndDate)
		}
		cfg.EndDate = t
	}

	return cfg, nil
}

// GetStatus returns the named run, or the system summary when runID
// is empty
func (p *Pipeline) GetStatus(ctx context.Context, runID string) (*model.ETLRun, *SystemSummary, error) {
	if runID != "" {
		run, err := p.orch.Status(ctx, runID)
		if err != nil {
			return nil, nil, err
		}
		return run, nil, nil
	}

	stats, err := p.store.Stats(ctx, p.cfg.DateRangeDays)
	if err != nil {
		return nil, nil, err
	}

	runs := p.orch.List()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	active := 0
	for _, run := range runs {
		if !run.Status.Terminal() {
			active++
		}
	}
	if len(runs) > 10 {
		runs = runs[:10]
	}

	return nil, &SystemSummary{
		Stats:      stats,
		ActiveRuns: active,
		RecentRuns: runs,
	}, nil
}

// GetCriticalEvents returns recent alerts joined to their events
func (p *Pipeline) GetCriticalEvents(ctx context.Context, limit int, severity model.AlertSeverity) ([]storage.CriticalEventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return p.store.RecentCriticalEvents(ctx, limit, severity)
}

// GetAnalytics returns windowed aggregates for dashboards
func (p *Pipeline) GetAnalytics(ctx context.Context, windowDays int) (*Analytics, error) {
	if windowDays <= 0 {
		windowDays = p.cfg.DateRangeDays
	}

	stats, err := p.store.Stats(ctx, windowDays)
	if err != nil {
		return nil, err
	}

	return &Analytics{
		Summary: AnalyticsSummary{
			WindowDays:      stats.WindowDays,
			TotalEvents:     stats.TotalEvents,
			TotalFatalities: stats.TotalFatalities,
			CriticalEvents:  stats.CriticalEvents,
		},
		BySeverity: stats.BySeverity,
		ByCountry:  stats.ByCountry,
	}, nil
}
