package repository

import (
	"context"
	"sync"
	"time"

	"github.com/talentops/pipetrack/internal/event"
)

// MockEventRepository is an in-memory EventRepository for tests.
type MockEventRepository struct {
	mu               sync.Mutex
	Events           []event.StageTransitionEvent
	AppendCalls      int
	AppendError      error
	QueryError       error
	PlacementResult  PlacementStats
	PlacementError   error
	WorkspacesError  error
	EventsInRangeLog []time.Time
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{}
}

func (m *MockEventRepository) AppendEvents(_ context.Context, events []event.StageTransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return m.AppendError
	}
	m.Events = append(m.Events, events...)
	return nil
}

func (m *MockEventRepository) EventsInRange(_ context.Context, workspaceID string, from, to time.Time) ([]event.StageTransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsInRangeLog = append(m.EventsInRangeLog, from, to)
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	var out []event.StageTransitionEvent
	for _, ev := range m.Events {
		if ev.WorkspaceID != workspaceID {
			continue
		}
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *MockEventRepository) EventsForRole(_ context.Context, workspaceID, roleID string) ([]event.StageTransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	var out []event.StageTransitionEvent
	for _, ev := range m.Events {
		if ev.WorkspaceID == workspaceID && ev.RoleID == roleID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockEventRepository) AllEvents(_ context.Context, workspaceID string) ([]event.StageTransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	var out []event.StageTransitionEvent
	for _, ev := range m.Events {
		if ev.WorkspaceID == workspaceID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockEventRepository) Workspaces(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WorkspacesError != nil {
		return nil, m.WorkspacesError
	}
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range m.Events {
		if _, ok := seen[ev.WorkspaceID]; !ok {
			seen[ev.WorkspaceID] = struct{}{}
			out = append(out, ev.WorkspaceID)
		}
	}
	return out, nil
}

func (m *MockEventRepository) PlacementStats(_ context.Context, workspaceID string, terminalStage int, from, to time.Time) (PlacementStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlacementError != nil {
		return PlacementStats{}, m.PlacementError
	}
	if m.PlacementResult != (PlacementStats{}) {
		return m.PlacementResult, nil
	}
	var stats PlacementStats
	for _, ev := range m.Events {
		if ev.WorkspaceID != workspaceID || ev.Kind != event.KindStageChanged || ev.Stage != terminalStage {
			continue
		}
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		stats.Placements++
		stats.CommissionTotal += ev.Fee
	}
	return stats, nil
}

func (m *MockEventRepository) Close() error {
	return nil
}
