// Package repository provides PostgreSQL persistence for the stage-event
// log and urgency tasks.
package repository

import (
	"context"
	"time"

	"github.com/talentops/pipetrack/internal/event"
	"github.com/talentops/pipetrack/internal/urgency"
)

// PlacementStats summarizes placements closed inside a time window.
type PlacementStats struct {
	Placements      int     `json:"placements"`
	CommissionTotal float64 `json:"commission_total"`
}

// EventRepository is the read/append boundary over the append-only
// stage-transition event log.
type EventRepository interface {
	AppendEvents(ctx context.Context, events []event.StageTransitionEvent) error
	EventsInRange(ctx context.Context, workspaceID string, from, to time.Time) ([]event.StageTransitionEvent, error)
	EventsForRole(ctx context.Context, workspaceID, roleID string) ([]event.StageTransitionEvent, error)
	AllEvents(ctx context.Context, workspaceID string) ([]event.StageTransitionEvent, error)
	Workspaces(ctx context.Context) ([]string, error)
	PlacementStats(ctx context.Context, workspaceID string, terminalStage int, from, to time.Time) (PlacementStats, error)
	Close() error
}

// TaskRepository stores urgency tasks. CreateTaskIfAbsent is the atomic
// check-then-create the rule engine relies on for dedup under concurrent
// triggers.
type TaskRepository interface {
	CreateTask(ctx context.Context, t *urgency.Task) error
	CreateTaskIfAbsent(ctx context.Context, t *urgency.Task) (bool, error)
	OpenTasks(ctx context.Context, workspaceID string) ([]urgency.Task, error)
	MarkDone(ctx context.Context, taskID string) error
	Close() error
}
