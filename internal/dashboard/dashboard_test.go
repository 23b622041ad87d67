package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/pipetrack/internal/analytics"
	"github.com/talentops/pipetrack/internal/event"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/urgency"
)

const ws = "ws-1"

func setupDashboard(t *testing.T) (*Dashboard, *repository.MockEventRepository, *repository.MockTaskRepository, time.Time) {
	t.Helper()
	events := repository.NewMockEventRepository()
	tasks := repository.NewMockTaskRepository()

	d := NewDashboard(events, tasks, pipeline.Default())
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, events, tasks, now
}

func TestSummarize(t *testing.T) {
	d, events, tasks, now := setupDashboard(t)
	ctx := context.Background()
	terminal := pipeline.Default().TerminalStage()

	require.NoError(t, events.AppendEvents(ctx, []event.StageTransitionEvent{
		// Placed within the current month, 12k fee.
		{ID: "e1", WorkspaceID: ws, RoleID: "r1", Kind: event.KindStageEntered, Timestamp: now.Add(-20 * 24 * time.Hour), Stage: 4, FromStage: -1},
		{ID: "e2", WorkspaceID: ws, RoleID: "r1", Kind: event.KindStageChanged, Timestamp: now.Add(-10 * 24 * time.Hour), Stage: terminal, FromStage: 4, Fee: 12000},
		// Placed in the prior month window.
		{ID: "e3", WorkspaceID: ws, RoleID: "r2", Kind: event.KindStageChanged, Timestamp: now.Add(-45 * 24 * time.Hour), Stage: terminal, FromStage: 4, Fee: 8000},
		// Still open in Screening.
		{ID: "e4", WorkspaceID: ws, RoleID: "r3", Kind: event.KindStageEntered, Timestamp: now.Add(-2 * 24 * time.Hour), Stage: 1, FromStage: -1},
	}))
	require.NoError(t, tasks.CreateTask(ctx, urgency.NewTask(ws, "r3", "Check in: Screening", now, urgency.OriginAutoEscalation)))

	got := d.Summarize(ctx, ws, analytics.RangeMonth)

	assert.Equal(t, "month", got.Range)
	assert.Equal(t, 1, got.Placements)
	assert.Equal(t, 12000.0, got.CommissionTotal)
	require.NotNil(t, got.PlacementsDeltaPct)
	assert.Equal(t, 0.0, *got.PlacementsDeltaPct) // 1 -> 1

	assert.Equal(t, 3, got.TotalRoles)
	assert.Equal(t, 1, got.OpenRoles) // r1 and r2 sit in the terminal stage
	assert.Equal(t, 1, got.OpenTasks)
	require.NotNil(t, got.Comparison)

	require.Len(t, got.StageDistribution, 2)
	assert.Equal(t, 1, got.StageDistribution[0].Stage)
	assert.Equal(t, "Screening", got.StageDistribution[0].StageName)
	assert.Equal(t, 1, got.StageDistribution[0].Count)
	assert.Equal(t, terminal, got.StageDistribution[1].Stage)
	assert.Equal(t, 2, got.StageDistribution[1].Count)
}

func TestSummarize_AllRangeHasNoComparison(t *testing.T) {
	d, _, _, _ := setupDashboard(t)

	got := d.Summarize(context.Background(), ws, analytics.RangeAll)

	assert.Nil(t, got.Comparison)
	assert.Nil(t, got.PlacementsDeltaPct)
}

func TestSummarize_StoreFailureDegradesToZeros(t *testing.T) {
	d, events, _, _ := setupDashboard(t)
	events.PlacementError = assert.AnError

	got := d.Summarize(context.Background(), ws, analytics.RangeWeek)

	assert.Zero(t, got.Placements)
	assert.Zero(t, got.CommissionTotal)
	assert.Zero(t, got.TotalRoles)
	assert.Empty(t, got.StageDistribution)
	assert.Nil(t, got.Comparison)
}

func TestSummarize_DeltaBranches(t *testing.T) {
	d, events, _, now := setupDashboard(t)
	ctx := context.Background()
	terminal := pipeline.Default().TerminalStage()

	// Two placements this week, none last week.
	require.NoError(t, events.AppendEvents(ctx, []event.StageTransitionEvent{
		{ID: "e1", WorkspaceID: ws, RoleID: "r1", Kind: event.KindStageChanged, Timestamp: now.Add(-24 * time.Hour), Stage: terminal, FromStage: 4},
		{ID: "e2", WorkspaceID: ws, RoleID: "r2", Kind: event.KindStageChanged, Timestamp: now.Add(-48 * time.Hour), Stage: terminal, FromStage: 4},
	}))

	got := d.Summarize(ctx, ws, analytics.RangeWeek)

	assert.Equal(t, 2, got.Placements)
	require.NotNil(t, got.PlacementsDeltaPct)
	assert.Equal(t, 100.0, *got.PlacementsDeltaPct)
}
