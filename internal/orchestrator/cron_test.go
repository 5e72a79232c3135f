package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/connector"
	"github.com/t77yq/conflictwatch/internal/model"
)

func TestCronRunner_ScheduleLifecycle(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)
	runner := NewCronRunner(orch, zap.NewNop())
	runner.Start()
	defer runner.Stop()

	schedule := &model.PipelineSchedule{
		Name:       "daily-ingest",
		Expression: "0 6 * * *",
		Config:     testRunConfig(model.DataSourceUCDP),
	}
	require.NoError(t, runner.AddSchedule(schedule))
	require.NotEmpty(t, schedule.ID)
	require.NotNil(t, schedule.NextRunTime)
	require.False(t, schedule.CreatedAt.IsZero())

	got, err := runner.GetSchedule(schedule.ID)
	require.NoError(t, err)
	require.Equal(t, "daily-ingest", got.Name)

	require.Len(t, runner.ListSchedules(), 1)

	require.NoError(t, runner.RemoveSchedule(schedule.ID))
	require.Empty(t, runner.ListSchedules())

	_, err = runner.GetSchedule(schedule.ID)
	require.Error(t, err)
	require.Error(t, runner.RemoveSchedule(schedule.ID))
}

func TestCronRunner_GettersReturnSnapshots(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)
	runner := NewCronRunner(orch, zap.NewNop())
	runner.Start()
	defer runner.Stop()

	schedule := &model.PipelineSchedule{
		Name:       "daily-ingest",
		Expression: "0 6 * * *",
		Config:     testRunConfig(model.DataSourceUCDP),
	}
	require.NoError(t, runner.AddSchedule(schedule))

	// Mutating what the getters hand out must not leak back into the
	// runner's own record
	got, err := runner.GetSchedule(schedule.ID)
	require.NoError(t, err)
	got.Name = "renamed"
	got.LastRunID = "bogus-run"
	got.Config.Sources[0] = model.DataSourceGDELT

	listed := runner.ListSchedules()
	require.Len(t, listed, 1)
	require.Equal(t, "daily-ingest", listed[0].Name)
	require.Empty(t, listed[0].LastRunID)
	require.Equal(t, model.DataSourceUCDP, listed[0].Config.Sources[0])

	// The caller's struct is likewise detached after registration
	schedule.Name = "renamed-again"
	got, err = runner.GetSchedule(schedule.ID)
	require.NoError(t, err)
	require.Equal(t, "daily-ingest", got.Name)
}

func TestCronRunner_RejectsBadExpression(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil)
	runner := NewCronRunner(orch, zap.NewNop())

	err := runner.AddSchedule(&model.PipelineSchedule{
		Name:       "broken",
		Expression: "every day at dawn",
		Config:     testRunConfig(model.DataSourceUCDP),
	})
	require.Error(t, err)
	require.Empty(t, runner.ListSchedules())
}

func TestCronRunner_FiresScheduledRun(t *testing.T) {
	healthy := &stubConnector{
		source:  model.DataSourceACLED,
		records: []connector.RawRecord{acledRecord("1001", "Sudan", 5)},
	}
	orch, _ := newTestOrchestrator(t, []connector.Connector{healthy})

	runner := NewCronRunner(orch, zap.NewNop())
	runner.Start()
	defer runner.Stop()

	daily := &model.PipelineSchedule{
		Name:       "daily-ingest",
		Expression: "0 6 * * *",
		Config:     testRunConfig(model.DataSourceACLED),
	}
	require.NoError(t, runner.AddSchedule(daily))

	// Drive the schedule directly rather than waiting for the clock
	runner.fire(daily.ID)
	orch.Wait()

	fired, err := runner.GetSchedule(daily.ID)
	require.NoError(t, err)
	require.NotEmpty(t, fired.LastRunID)
	require.NotNil(t, fired.LastRunTime)

	run, err := orch.Status(context.Background(), fired.LastRunID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, run.Status)
	require.Equal(t, 1, run.Counters.Loaded)

	// The fired window keeps its configured width, ending today
	require.Equal(t, time.Now().UTC().Truncate(24*time.Hour), run.Config.EndDate)
	require.Equal(t, 7*24*time.Hour, run.Config.EndDate.Sub(run.Config.StartDate))
}
