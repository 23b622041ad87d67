package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentops/pipetrack/internal/event"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/response"
	"github.com/talentops/pipetrack/internal/urgency"
)

const ws = "ws-1"

func setupEngine(t *testing.T) (*Engine, *repository.MockEventRepository, *repository.MockTaskRepository, *response.Learner) {
	t.Helper()
	events := repository.NewMockEventRepository()
	tasks := repository.NewMockTaskRepository()
	learner := response.NewLearner(response.NewMemoryStore())

	engine := NewEngine(events, tasks, learner, pipeline.Default())
	return engine, events, tasks, learner
}

func seedRole(t *testing.T, events *repository.MockEventRepository, roleID string, stage int, enteredAt time.Time) {
	t.Helper()
	require.NoError(t, events.AppendEvents(context.Background(), []event.StageTransitionEvent{{
		ID:          roleID + "-seed",
		WorkspaceID: ws,
		RoleID:      roleID,
		Kind:        event.KindStageEntered,
		Timestamp:   enteredAt,
		Stage:       stage,
		FromStage:   -1,
	}}))
}

func TestEvaluateWorkspace_BreachCreatesOneTask(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	// Screening SLA is 72h; role has been there 100h.
	seedRole(t, events, "role-1", 1, now.Add(-100*time.Hour))

	summary, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RolesChecked)
	assert.Equal(t, 1, summary.UrgentRoles)
	assert.Equal(t, 1, summary.TasksCreated)
	assert.Equal(t, 1, tasks.OpenTaskCount("role-1", "Check in: Screening"))

	require.Len(t, tasks.Tasks, 1)
	assert.Equal(t, urgency.OriginAutoEscalation, tasks.Tasks[0].Origin)
}

func TestEvaluateWorkspace_RerunDoesNotDuplicate(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	seedRole(t, events, "role-1", 1, now.Add(-100*time.Hour))

	first, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)
	second, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 1, first.TasksCreated)
	assert.Equal(t, 0, second.TasksCreated)
	assert.Equal(t, first.UrgentRoles, second.UrgentRoles)
	assert.Equal(t, 1, tasks.OpenTaskCount("role-1", "Check in: Screening"))
}

func TestEvaluateWorkspace_WithinSLANotUrgent(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	seedRole(t, events, "role-1", 1, now.Add(-time.Hour))

	summary, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.UrgentRoles)
	assert.Empty(t, tasks.Tasks)
}

func TestEvaluateWorkspace_TotalAgeBreach(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	// Fresh in its current stage, but the role itself is 31 days old.
	created := now.Add(-31 * 24 * time.Hour)
	require.NoError(t, events.AppendEvents(context.Background(), []event.StageTransitionEvent{
		{ID: "e1", WorkspaceID: ws, RoleID: "role-1", Kind: event.KindStageEntered, Timestamp: created, Stage: 0, FromStage: -1},
		{ID: "e2", WorkspaceID: ws, RoleID: "role-1", Kind: event.KindStageChanged, Timestamp: now.Add(-time.Hour), Stage: 1, FromStage: 0},
	}))

	summary, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UrgentRoles)
	assert.Equal(t, 1, len(tasks.Tasks))
}

func TestEvaluateWorkspace_TerminalStageExempt(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	seedRole(t, events, "role-1", pipeline.Default().TerminalStage(), now.Add(-1000*time.Hour))

	summary, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.RolesChecked)
	assert.Empty(t, tasks.Tasks)
}

func TestEvaluateWorkspace_EscalationsDisabled(t *testing.T) {
	engine, events, tasks, _ := setupEngine(t)
	engine.cfg.Escalations = false
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	seedRole(t, events, "role-1", 1, now.Add(-100*time.Hour))

	summary, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.UrgentRoles)
	assert.Empty(t, tasks.Tasks)
}

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []*urgency.Task
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, t *urgency.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, t)
}

func TestEvaluateWorkspace_NotifierOnlyOnCreation(t *testing.T) {
	engine, events, _, _ := setupEngine(t)
	notifier := &recordingNotifier{}
	engine.SetNotifier(notifier)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	seedRole(t, events, "role-1", 1, now.Add(-100*time.Hour))

	_, err := engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)
	_, err = engine.EvaluateWorkspace(context.Background(), ws)
	require.NoError(t, err)

	assert.Len(t, notifier.tasks, 1)
}

func TestHandleTransition_ChaseScheduledOnAwaitingEntry(t *testing.T) {
	engine, _, tasks, _ := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	ev := event.StageTransitionEvent{
		WorkspaceID: ws,
		RoleID:      "role-1",
		Kind:        event.KindStageChanged,
		Timestamp:   now,
		Stage:       3, // Client Review
		FromStage:   2,
		ClientID:    "client-1",
	}

	engine.HandleTransition(context.Background(), ev)

	require.Len(t, tasks.Tasks, 1)
	assert.Equal(t, "Chase client feedback", tasks.Tasks[0].Title)
	assert.Equal(t, urgency.OriginAutoChase, tasks.Tasks[0].Origin)
	// No history for client-1, so the default 48h delay applies.
	assert.Equal(t, now.Add(response.DefaultChaseDelay), tasks.Tasks[0].DueAt)

	// A concurrent or repeated trigger does not duplicate.
	engine.HandleTransition(context.Background(), ev)
	assert.Equal(t, 1, tasks.OpenTaskCount("role-1", "Chase client feedback"))
}

func TestHandleTransition_ChaseUsesLearnedDelay(t *testing.T) {
	engine, _, tasks, learner := setupEngine(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	// Learned average of 40h -> 0.75*40h = 30h delay.
	_, err := learner.Observe(context.Background(), "client-1", 40*time.Hour)
	require.NoError(t, err)

	engine.HandleTransition(context.Background(), event.StageTransitionEvent{
		WorkspaceID: ws,
		RoleID:      "role-1",
		Kind:        event.KindStageChanged,
		Timestamp:   now,
		Stage:       3,
		FromStage:   2,
		ClientID:    "client-1",
	})

	require.Len(t, tasks.Tasks, 1)
	assert.Equal(t, now.Add(30*time.Hour), tasks.Tasks[0].DueAt)
}

func TestHandleTransition_SampleRecordedOnAwaitingExit(t *testing.T) {
	engine, events, _, learner := setupEngine(t)
	enter := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	exit := enter.Add(36 * time.Hour)

	require.NoError(t, events.AppendEvents(context.Background(), []event.StageTransitionEvent{
		{ID: "e1", WorkspaceID: ws, RoleID: "role-1", Kind: event.KindStageChanged, Timestamp: enter, Stage: 3, FromStage: 2, ClientID: "client-1"},
		{ID: "e2", WorkspaceID: ws, RoleID: "role-1", Kind: event.KindStageChanged, Timestamp: exit, Stage: 4, FromStage: 3},
	}))

	engine.HandleTransition(context.Background(), event.StageTransitionEvent{
		WorkspaceID: ws,
		RoleID:      "role-1",
		Kind:        event.KindStageChanged,
		Timestamp:   exit,
		Stage:       4,
		FromStage:   3,
	})

	// 36h sample recorded for client-1, recovered from event history.
	delay := learner.RecommendChaseDelay(context.Background(), "client-1")
	assert.Equal(t, 27*time.Hour, delay)
}

func TestHandleTransition_IgnoresNonAwaitingChanges(t *testing.T) {
	engine, _, tasks, _ := setupEngine(t)

	engine.HandleTransition(context.Background(), event.StageTransitionEvent{
		WorkspaceID: ws,
		RoleID:      "role-1",
		Kind:        event.KindStageChanged,
		Timestamp:   time.Now(),
		Stage:       1,
		FromStage:   0,
	})

	assert.Empty(t, tasks.Tasks)
}

func TestHandleTransition_ChaseDisabled(t *testing.T) {
	engine, _, tasks, _ := setupEngine(t)
	engine.cfg.ChaseTasks = false

	engine.HandleTransition(context.Background(), event.StageTransitionEvent{
		WorkspaceID: ws,
		RoleID:      "role-1",
		Kind:        event.KindStageChanged,
		Timestamp:   time.Now(),
		Stage:       3,
		FromStage:   2,
		ClientID:    "client-1",
	})

	assert.Empty(t, tasks.Tasks)
}
