package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/config"
	"github.com/t77yq/conflictwatch/internal/detector"
	"github.com/t77yq/conflictwatch/internal/model"
	"github.com/t77yq/conflictwatch/internal/orchestrator"
	"github.com/t77yq/conflictwatch/internal/storage"
	"github.com/t77yq/conflictwatch/internal/transform"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:        "conflictwatch",
		AlertThreshold: 50,
		BatchSize:      500,
		MaxRetries:     3,
		Timeout:        30 * time.Second,
		DateRangeDays:  7,
		DateFloor:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		RunRetention:   72 * time.Hour,
		EnabledSources: []model.DataSource{
			model.DataSourceACLED, model.DataSourceGDELT, model.DataSourceUCDP,
		},
	}
}

func testPipeline(t *testing.T, cfg *config.Config) (*Pipeline, storage.Store) {
	t.Helper()
	logger := zap.NewNop()

	store, err := storage.NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reconciler := transform.NewReconciler(logger, transform.ReconcilerConfig{
		DateFloor:       cfg.DateFloor,
		FutureTolerance: 24 * time.Hour,
		AlertThreshold:  cfg.AlertThreshold,
	})
	orch := orchestrator.New(logger, nil,
		transform.NewNormalizer(logger), reconciler,
		detector.NewDetector(logger, cfg.AlertThreshold), store)

	return NewPipeline(logger, cfg, orch, store), store
}

func TestDatasetsCatalog_WarnsOnMissingCredentials(t *testing.T) {
	p, _ := testPipeline(t, testConfig())

	catalog := p.DatasetsCatalog()
	require.Len(t, catalog.Sources, 3)
	require.NotEmpty(t, catalog.Regions)
	require.NotEmpty(t, catalog.ConflictTypes)

	require.Equal(t, model.DataSourceACLED, catalog.Sources[0].Name)
	require.False(t, catalog.Sources[0].CredentialsOK)
	require.Len(t, catalog.Warnings, 1)
	require.Contains(t, catalog.Warnings[0], "acled")
}

func TestDatasetsCatalog_NoWarningsWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.ACLEDAPIKey = "key"
	cfg.ACLEDEmail = "team@example.org"
	p, _ := testPipeline(t, cfg)

	catalog := p.DatasetsCatalog()
	require.True(t, catalog.Sources[0].CredentialsOK)
	require.Empty(t, catalog.Warnings)
}

func TestBuildRunConfig_DefaultsFromSettings(t *testing.T) {
	p, _ := testPipeline(t, testConfig())

	cfg, err := p.buildRunConfig(ExecuteRequest{})
	require.NoError(t, err)
	require.Equal(t, []model.DataSource{
		model.DataSourceACLED, model.DataSourceGDELT, model.DataSourceUCDP,
	}, cfg.Sources)
	require.Equal(t, 50, cfg.AlertThreshold)
	require.Equal(t, 500, cfg.BatchSize)
	require.Equal(t, 7, int(cfg.EndDate.Sub(cfg.StartDate).Hours()/24))
}

func TestBuildRunConfig_ExplicitOverrides(t *testing.T) {
	p, _ := testPipeline(t, testConfig())

	cfg, err := p.buildRunConfig(ExecuteRequest{
		Sources:      []string{"ucdp"},
		StartDate:    "2024-03-01",
		EndDate:      "2024-03-08",
		RegionFilter: "Eastern Africa",
	})
	require.NoError(t, err)
	require.Equal(t, []model.DataSource{model.DataSourceUCDP}, cfg.Sources)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	require.Equal(t, "Eastern Africa", cfg.RegionFilter)
}

func TestBuildRunConfig_RejectsBadDates(t *testing.T) {
	p, _ := testPipeline(t, testConfig())

	_, err := p.buildRunConfig(ExecuteRequest{StartDate: "03/01/2024"})
	require.ErrorIs(t, err, orchestrator.ErrInvalidConfig)

	_, err = p.buildRunConfig(ExecuteRequest{EndDate: "not-a-date"})
	require.ErrorIs(t, err, orchestrator.ErrInvalidConfig)
}

func TestGetStatus_SystemSummary(t *testing.T) {
	p, _ := testPipeline(t, testConfig())
	ctx := context.Background()

	run, summary, err := p.GetStatus(ctx, "")
	require.NoError(t, err)
	require.Nil(t, run)
	require.NotNil(t, summary)
	require.Zero(t, summary.ActiveRuns)
	require.Zero(t, summary.Stats.TotalEvents)
	require.Equal(t, 7, summary.Stats.WindowDays)
}

func TestGetStatus_UnknownRun(t *testing.T) {
	p, _ := testPipeline(t, testConfig())

	_, _, err := p.GetStatus(context.Background(), "missing")
	require.ErrorIs(t, err, orchestrator.ErrRunNotFound)
}

func TestGetAnalytics_DefaultWindow(t *testing.T) {
	p, store := testPipeline(t, testConfig())
	ctx := context.Background()

	now := time.Now().UTC()
	events := []model.ConflictEvent{
		{
			EventID:    "e1",
			EventDate:  now.AddDate(0, 0, -1),
			Country:    "Sudan",
			EventType:  "Battles",
			Fatalities: 30,
			DataSource: model.DataSourceACLED,
			IsCritical: true, SeverityScore: 0.92,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			EventID:    "e2",
			EventDate:  now.AddDate(0, 0, -2),
			Country:    "Mali",
			EventType:  "Protests",
			DataSource: model.DataSourceGDELT,
			SeverityScore: 0.1,
			CreatedAt: now, UpdatedAt: now,
		},
	}
	_, err := store.Load(ctx, events)
	require.NoError(t, err)

	analytics, err := p.GetAnalytics(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 7, analytics.Summary.WindowDays)
	require.Equal(t, 2, analytics.Summary.TotalEvents)
	require.Equal(t, 30, analytics.Summary.TotalFatalities)
	require.Equal(t, 1, analytics.Summary.CriticalEvents)
	require.Equal(t, 1, analytics.ByCountry["Sudan"])
	require.Equal(t, 1, analytics.BySeverity[model.AlertSeverityCritical])
	require.Equal(t, 1, analytics.BySeverity[model.AlertSeverityLow])
}
