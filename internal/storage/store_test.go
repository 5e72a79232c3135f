package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store, err := NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func storedEvent(id string) model.ConflictEvent {
	now := time.Now().UTC()
	return model.ConflictEvent{
		EventID:          id,
		EventDate:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Country:          "Sudan",
		Region:           "Eastern Africa",
		Latitude:         15.5,
		Longitude:        32.56,
		EventType:        "Battles",
		SubEventType:     "Armed clash",
		Actor1:           "Military Forces",
		Actor2:           "Rebel Group",
		Fatalities:       12,
		DataSource:       model.DataSourceACLED,
		RawText:          "Armed clash reported",
		SeverityScore:    0.57,
		ConfidenceScore:  0.90,
		DataQualityScore: 0.95,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func storedAlert(id string) model.CriticalEvent {
	return model.CriticalEvent{
		EventID:     id,
		AlertType:   model.AlertTypeHighFatality,
		Severity:    model.AlertSeverityHigh,
		Fatalities:  60,
		Description: "Mass-casualty battle",
		Location:    "Eastern Africa, Sudan",
		DetectedAt:  time.Now().UTC(),
	}
}

func TestStore_LoadIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	events := []model.ConflictEvent{storedEvent("e1"), storedEvent("e2")}

	count, err := store.Load(ctx, events)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// Second load with mutated scores must not change stored rows
	reRun := []model.ConflictEvent{storedEvent("e1"), storedEvent("e2")}
	reRun[0].SeverityScore = 0.99
	reRun[0].Fatalities = 9999

	count, err = store.Load(ctx, reRun)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	stats, err := store.Stats(ctx, 365*10)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalEvents)
	require.Equal(t, 24, stats.TotalFatalities, "re-load must not duplicate or rewrite rows")
}

func TestStore_SaveAlertsUpsert(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, []model.ConflictEvent{storedEvent("e1")})
	require.NoError(t, err)

	alert := storedAlert("e1")
	require.NoError(t, store.SaveAlerts(ctx, []model.CriticalEvent{alert}))

	// Same event alerted again keeps a single row
	require.NoError(t, store.SaveAlerts(ctx, []model.CriticalEvent{alert}))

	records, err := store.RecentCriticalEvents(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "e1", records[0].Alert.EventID)
	require.Equal(t, "Sudan", records[0].Event.Country)
}

func TestStore_NotifiedNeverReverses(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, []model.ConflictEvent{storedEvent("e1")})
	require.NoError(t, err)
	require.NoError(t, store.SaveAlerts(ctx, []model.CriticalEvent{storedAlert("e1")}))

	require.NoError(t, store.MarkNotified(ctx, "e1"))

	// Re-detecting the same event must not reset the flag
	require.NoError(t, store.SaveAlerts(ctx, []model.CriticalEvent{storedAlert("e1")}))

	records, err := store.RecentCriticalEvents(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.True(t, records[0].Alert.Notified)
}

func TestStore_MarkNotifiedUnknownAlert(t *testing.T) {
	store := testStore(t)
	err := store.MarkNotified(context.Background(), "missing")
	require.Error(t, err)
}

func TestStore_RecentCriticalEventsFilter(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, []model.ConflictEvent{storedEvent("e1"), storedEvent("e2")})
	require.NoError(t, err)

	high := storedAlert("e1")
	critical := storedAlert("e2")
	critical.Severity = model.AlertSeverityCritical
	require.NoError(t, store.SaveAlerts(ctx, []model.CriticalEvent{high, critical}))

	records, err := store.RecentCriticalEvents(ctx, 10, model.AlertSeverityCritical)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "e2", records[0].Alert.EventID)
}

func TestStore_Stats(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	recent := storedEvent("recent")
	recent.EventDate = time.Now().UTC().AddDate(0, 0, -1)
	recent.IsCritical = true
	recent.SeverityScore = 0.95

	old := storedEvent("old")
	old.EventDate = time.Now().UTC().AddDate(0, 0, -60)
	old.Country = "Mali"

	_, err := store.Load(ctx, []model.ConflictEvent{recent, old})
	require.NoError(t, err)

	stats, err := store.Stats(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEvents)
	require.Equal(t, 1, stats.CriticalEvents)
	require.Equal(t, 1, stats.ByCountry["Sudan"])
	require.Zero(t, stats.ByCountry["Mali"])
	require.Equal(t, 1, stats.BySeverity[model.AlertSeverityCritical])
}

func TestStore_RunRecordRoundtrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	completed := time.Now().UTC()
	run := &model.ETLRun{
		RunID: "run-1",
		Config: model.RunConfig{
			Sources:        []model.DataSource{model.DataSourceACLED},
			StartDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
			AlertThreshold: 50,
			BatchSize:      500,
		},
		Status: model.RunStatusCompleted,
		Counters: model.RunCounters{
			Extracted:     100,
			Transformed:   90,
			Loaded:        90,
			CriticalCount: 3,
			ErrorCount:    1,
		},
		Errors:      []string{"gdelt: retries exhausted"},
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
	}

	require.NoError(t, store.SaveRun(ctx, run))

	// Update on conflict
	run.Counters.Loaded = 91
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, model.RunStatusCompleted, got.Status)
	require.Equal(t, 91, got.Counters.Loaded)
	require.Equal(t, []string{"gdelt: retries exhausted"}, got.Errors)
	require.Equal(t, []model.DataSource{model.DataSourceACLED}, got.Config.Sources)
	require.NotNil(t, got.CompletedAt)

	missing, err := store.GetRun(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStore_DeleteRunsBefore(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	old := &model.ETLRun{
		RunID:     "old-run",
		Config:    model.RunConfig{Sources: []model.DataSource{model.DataSourceUCDP}},
		Status:    model.RunStatusCompleted,
		StartedAt: time.Now().UTC().Add(-100 * time.Hour),
	}
	fresh := &model.ETLRun{
		RunID:     "fresh-run",
		Config:    model.RunConfig{Sources: []model.DataSource{model.DataSourceUCDP}},
		Status:    model.RunStatusCompleted,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRun(ctx, old))
	require.NoError(t, store.SaveRun(ctx, fresh))

	require.NoError(t, store.DeleteRunsBefore(ctx, time.Now().UTC().Add(-72*time.Hour)))

	gone, err := store.GetRun(ctx, "old-run")
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := store.GetRun(ctx, "fresh-run")
	require.NoError(t, err)
	require.NotNil(t, kept)
}
