// Package urgency defines the follow-up task model produced by the SLA
// rule engine and by manual user actions.
package urgency

import (
	"time"

	"github.com/google/uuid"
)

type Origin string

const (
	OriginAutoChase      Origin = "auto-chase"
	OriginAutoEscalation Origin = "auto-escalation"
	OriginManual         Origin = "manual"
)

// Task is a follow-up action tied to a role. Auto tasks are deduplicated
// by (workspace, role, title) while open; tasks are marked done, never
// deleted.
type Task struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	RoleID      string    `json:"role_id"`
	Title       string    `json:"title"`
	DueAt       time.Time `json:"due_at"`
	Done        bool      `json:"done"`
	Origin      Origin    `json:"origin"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewTask(workspaceID, roleID, title string, dueAt time.Time, origin Origin) *Task {
	return &Task{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		RoleID:      roleID,
		Title:       title,
		DueAt:       dueAt,
		Origin:      origin,
		CreatedAt:   time.Now().UTC(),
	}
}
