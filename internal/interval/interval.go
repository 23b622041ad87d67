// Package interval reconstructs per-role stage residency intervals from
// the raw stage-transition event log. Intervals are derived fresh on every
// query; the event log is the single source of truth.
package interval

import (
	"sort"
	"time"

	"github.com/talentops/pipetrack/internal/event"
)

// StageInterval is the contiguous span a role spent in one stage.
// ExitedAt is nil for intervals still open at the query's period end.
type StageInterval struct {
	RoleID     string     `json:"role_id"`
	Stage      int        `json:"stage"`
	StageName  string     `json:"stage_name"`
	EnteredAt  time.Time  `json:"entered_at"`
	ExitedAt   *time.Time `json:"exited_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Open reports whether the role was still in this stage at period end.
func (si StageInterval) Open() bool {
	return si.ExitedAt == nil
}

type openStage struct {
	stage     int
	stageName string
	enteredAt time.Time
}

// Reconstruct derives stage intervals from an unordered event list.
// Every returned interval has strictly positive duration; zero or
// negative spans (clock skew, duplicate timestamps) are dropped. A
// stage_changed event whose from_stage does not match the recorded open
// stage closes nothing: event logs may be partial, so the mismatch is
// tolerated and the new stage still opens.
func Reconstruct(events []event.StageTransitionEvent, periodEnd time.Time) []StageInterval {
	sorted := make([]event.StageTransitionEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RoleID != sorted[j].RoleID {
			return sorted[i].RoleID < sorted[j].RoleID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var intervals []StageInterval
	open := make(map[string]openStage)

	for _, ev := range sorted {
		switch ev.Kind {
		case event.KindStageEntered:
			open[ev.RoleID] = openStage{stage: ev.Stage, stageName: ev.StageName, enteredAt: ev.Timestamp}
		case event.KindStageChanged:
			if cur, ok := open[ev.RoleID]; ok && cur.stage == ev.FromStage {
				exitedAt := ev.Timestamp
				if d := exitedAt.Sub(cur.enteredAt).Milliseconds(); d > 0 {
					intervals = append(intervals, StageInterval{
						RoleID:     ev.RoleID,
						Stage:      cur.stage,
						StageName:  cur.stageName,
						EnteredAt:  cur.enteredAt,
						ExitedAt:   &exitedAt,
						DurationMs: d,
					})
				}
			}
			open[ev.RoleID] = openStage{stage: ev.Stage, stageName: ev.StageName, enteredAt: ev.Timestamp}
		}
	}

	for roleID, cur := range open {
		if d := periodEnd.Sub(cur.enteredAt).Milliseconds(); d > 0 {
			intervals = append(intervals, StageInterval{
				RoleID:     roleID,
				Stage:      cur.stage,
				StageName:  cur.stageName,
				EnteredAt:  cur.enteredAt,
				DurationMs: d,
			})
		}
	}

	// Map iteration above makes open-interval order nondeterministic;
	// callers compare aggregated output, so keep it stable here.
	sort.SliceStable(intervals, func(i, j int) bool {
		if intervals[i].RoleID != intervals[j].RoleID {
			return intervals[i].RoleID < intervals[j].RoleID
		}
		return intervals[i].EnteredAt.Before(intervals[j].EnteredAt)
	})

	return intervals
}

// OpenStages returns the current open stage per role at period end,
// keyed by role ID. Used by the rule engine for live role state.
func OpenStages(events []event.StageTransitionEvent, periodEnd time.Time) map[string]StageInterval {
	states := make(map[string]StageInterval)
	for _, si := range Reconstruct(events, periodEnd) {
		if si.Open() {
			states[si.RoleID] = si
		}
	}
	return states
}
