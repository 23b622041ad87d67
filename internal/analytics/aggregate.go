// Package analytics aggregates stage residency intervals into per-stage
// duration statistics and compares them across equal-length periods.
package analytics

import (
	"math"
	"sort"

	"github.com/talentops/pipetrack/internal/interval"
	"github.com/talentops/pipetrack/internal/pipeline"
)

const msPerDay = 86_400_000.0

// StageSummary holds duration statistics for one pipeline stage within a
// time window. PrevAvgDays and DeltaPct are only set when a comparison
// window was aggregated; DeltaPct stays nil when the prior window has no
// entry for the stage.
type StageSummary struct {
	Stage       int      `json:"stage"`
	StageName   string   `json:"stageName"`
	RolesCount  int      `json:"rolesCount"`
	AvgDays     float64  `json:"avgDays"`
	MedianDays  float64  `json:"medianDays"`
	MaxDays     float64  `json:"maxDays"`
	TotalDays   float64  `json:"totalDays"`
	PrevAvgDays *float64 `json:"prevAvgDays,omitempty"`
	DeltaPct    *float64 `json:"deltaPct,omitempty"`
}

type Result struct {
	Stages         []StageSummary `json:"stages"`
	TotalRoles     int            `json:"totalRoles"`
	OverallAvgDays float64        `json:"overallAvgDays"`
}

type stageAccum struct {
	stageName string
	durations []int64
	totalMs   int64
	maxMs     int64
}

// Aggregate groups intervals by stage and computes count, mean, median,
// max and total in days. RolesCount counts intervals, not distinct roles:
// a role that re-entered a stage contributes once per residency. The
// median takes sorted[n/2], the historical tie-break the dashboard's
// figures were built on.
func Aggregate(intervals []interval.StageInterval, cfg pipeline.Config) Result {
	accums := make(map[int]*stageAccum)
	roles := make(map[string]struct{})
	var allTotalMs int64

	for _, si := range intervals {
		acc, ok := accums[si.Stage]
		if !ok {
			acc = &stageAccum{}
			accums[si.Stage] = acc
		}
		if acc.stageName == "" {
			acc.stageName = si.StageName
		}
		acc.durations = append(acc.durations, si.DurationMs)
		acc.totalMs += si.DurationMs
		if si.DurationMs > acc.maxMs {
			acc.maxMs = si.DurationMs
		}
		roles[si.RoleID] = struct{}{}
		allTotalMs += si.DurationMs
	}

	stages := make([]int, 0, len(accums))
	for stage := range accums {
		stages = append(stages, stage)
	}
	sort.Ints(stages)

	result := Result{TotalRoles: len(roles)}
	for _, stage := range stages {
		acc := accums[stage]
		sort.Slice(acc.durations, func(i, j int) bool { return acc.durations[i] < acc.durations[j] })

		n := len(acc.durations)
		name := acc.stageName
		if name == "" {
			name = cfg.StageName(stage)
		}
		result.Stages = append(result.Stages, StageSummary{
			Stage:      stage,
			StageName:  name,
			RolesCount: n,
			AvgDays:    round1(float64(acc.totalMs) / float64(n) / msPerDay),
			MedianDays: round1(float64(acc.durations[n/2]) / msPerDay),
			MaxDays:    round1(float64(acc.maxMs) / msPerDay),
			TotalDays:  round1(float64(acc.totalMs) / msPerDay),
		})
	}

	if n := len(intervals); n > 0 {
		// Interval-weighted mean across all stages, not a mean of means.
		result.OverallAvgDays = round1(float64(allTotalMs) / float64(n) / msPerDay)
	}
	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
