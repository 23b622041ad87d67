// Package dashboard computes the KPI summary bundle behind the
// analytics summary endpoint: placements, commission, period deltas and
// the current stage distribution.
package dashboard

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/talentops/pipetrack/internal/analytics"
	"github.com/talentops/pipetrack/internal/interval"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
)

type StageCount struct {
	Stage     int    `json:"stage"`
	StageName string `json:"stageName"`
	Count     int    `json:"count"`
}

type Summary struct {
	Range              string            `json:"range"`
	TotalRoles         int               `json:"totalRoles"`
	OpenRoles          int               `json:"openRoles"`
	Placements         int               `json:"placements"`
	CommissionTotal    float64           `json:"commissionTotal"`
	PlacementsDeltaPct *float64          `json:"placementsDeltaPct,omitempty"`
	StageDistribution  []StageCount      `json:"stageDistribution"`
	OpenTasks          int               `json:"openTasks"`
	Comparison         *analytics.Window `json:"comparison"`
	LastUpdated        time.Time         `json:"lastUpdated"`
}

type Dashboard struct {
	events repository.EventRepository
	tasks  repository.TaskRepository
	cfg    pipeline.Config
	now    func() time.Time
}

func NewDashboard(events repository.EventRepository, tasks repository.TaskRepository, cfg pipeline.Config) *Dashboard {
	return &Dashboard{
		events: events,
		tasks:  tasks,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Summarize builds the KPI bundle for one workspace and range. Store
// failures degrade to zeroed figures rather than errors: the dashboard
// widget renders placeholders, never an error banner. A failure fetching
// only the comparison window drops the delta, not the whole summary.
func (d *Dashboard) Summarize(ctx context.Context, workspaceID string, rng analytics.Range) Summary {
	now := d.now()
	cur, prev := analytics.Windows(rng, now)

	summary := Summary{
		Range:             string(rng),
		StageDistribution: []StageCount{},
		Comparison:        prev,
		LastUpdated:       now,
	}

	terminal := d.cfg.TerminalStage()

	placed, err := d.events.PlacementStats(ctx, workspaceID, terminal, cur.From, cur.To)
	if err != nil {
		log.Printf("summary placement query failed for %s: %v", workspaceID, err)
		summary.Comparison = nil
		return summary
	}
	summary.Placements = placed.Placements
	summary.CommissionTotal = placed.CommissionTotal

	if prev != nil {
		prevPlaced, err := d.events.PlacementStats(ctx, workspaceID, terminal, prev.From, prev.To)
		if err != nil {
			log.Printf("summary comparison query failed for %s: %v", workspaceID, err)
			summary.Comparison = nil
		} else {
			delta := analytics.DeltaPct(float64(prevPlaced.Placements), float64(placed.Placements))
			summary.PlacementsDeltaPct = &delta
		}
	}

	events, err := d.events.AllEvents(ctx, workspaceID)
	if err != nil {
		log.Printf("summary event query failed for %s: %v", workspaceID, err)
		return summary
	}

	states := interval.OpenStages(events, now)
	summary.TotalRoles = len(states)

	counts := make(map[int]int)
	for _, state := range states {
		counts[state.Stage]++
		if state.Stage != terminal {
			summary.OpenRoles++
		}
	}

	stages := make([]int, 0, len(counts))
	for stage := range counts {
		stages = append(stages, stage)
	}
	sort.Ints(stages)
	for _, stage := range stages {
		summary.StageDistribution = append(summary.StageDistribution, StageCount{
			Stage:     stage,
			StageName: d.cfg.StageName(stage),
			Count:     counts[stage],
		})
	}

	if tasks, err := d.tasks.OpenTasks(ctx, workspaceID); err == nil {
		summary.OpenTasks = len(tasks)
	} else {
		log.Printf("summary task query failed for %s: %v", workspaceID, err)
	}

	return summary
}
