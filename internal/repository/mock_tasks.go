package repository

import (
	"context"
	"database/sql"
	"sync"

	"github.com/talentops/pipetrack/internal/urgency"
)

// MockTaskRepository is an in-memory TaskRepository for tests, with the
// same open-task dedup semantics as the Postgres partial unique index.
type MockTaskRepository struct {
	mu                  sync.Mutex
	Tasks               []urgency.Task
	CreateCalls         int
	CreateIfAbsentCalls int
	CreateError         error
	QueryError          error
}

func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{}
}

func (m *MockTaskRepository) CreateTask(_ context.Context, t *urgency.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateError != nil {
		return m.CreateError
	}
	m.Tasks = append(m.Tasks, *t)
	return nil
}

func (m *MockTaskRepository) CreateTaskIfAbsent(_ context.Context, t *urgency.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateIfAbsentCalls++
	if m.CreateError != nil {
		return false, m.CreateError
	}
	for _, existing := range m.Tasks {
		if !existing.Done && existing.WorkspaceID == t.WorkspaceID && existing.RoleID == t.RoleID && existing.Title == t.Title {
			return false, nil
		}
	}
	m.Tasks = append(m.Tasks, *t)
	return true, nil
}

func (m *MockTaskRepository) OpenTasks(_ context.Context, workspaceID string) ([]urgency.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	var out []urgency.Task
	for _, t := range m.Tasks {
		if t.WorkspaceID == workspaceID && !t.Done {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockTaskRepository) MarkDone(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Tasks {
		if m.Tasks[i].ID == taskID {
			m.Tasks[i].Done = true
			return nil
		}
	}
	return sql.ErrNoRows
}

// OpenTaskCount reports open tasks for a role/title pair, for asserting
// dedup behavior.
func (m *MockTaskRepository) OpenTaskCount(roleID, title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.Tasks {
		if !t.Done && t.RoleID == roleID && t.Title == title {
			count++
		}
	}
	return count
}

func (m *MockTaskRepository) Close() error {
	return nil
}
