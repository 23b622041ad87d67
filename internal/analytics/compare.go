package analytics

import (
	"fmt"
	"time"
)

type Range string

const (
	RangeWeek    Range = "week"
	RangeMonth   Range = "month"
	RangeQuarter Range = "quarter"
	RangeYear    Range = "year"
	RangeAll     Range = "all"
)

var rangeDays = map[Range]int{
	RangeWeek:    7,
	RangeMonth:   30,
	RangeQuarter: 90,
	RangeYear:    365,
}

// ParseRange validates a range query parameter; empty defaults to month.
func ParseRange(s string) (Range, error) {
	if s == "" {
		return RangeMonth, nil
	}
	r := Range(s)
	switch r {
	case RangeWeek, RangeMonth, RangeQuarter, RangeYear, RangeAll:
		return r, nil
	}
	return "", fmt.Errorf("invalid range %q", s)
}

type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Windows resolves a range key into the current window and, for bounded
// ranges, the equal-length immediately-preceding window. The "all" range
// starts at the Unix epoch and has no comparison window.
func Windows(r Range, now time.Time) (Window, *Window) {
	if r == RangeAll {
		return Window{From: time.UnixMilli(0).UTC(), To: now}, nil
	}

	days := rangeDays[r]
	start := now.AddDate(0, 0, -days)
	prev := Window{
		From: start.AddDate(0, 0, -days),
		To:   start.Add(-time.Millisecond),
	}
	return Window{From: start, To: now}, &prev
}

// AttachComparison annotates the current result's stages with the prior
// window's average and a percent delta. The delta branches are load
// bearing for the dashboard's improvement/regression display:
// both zero -> 0, prior zero with current positive -> 100, prior
// positive -> rounded percent change, stage absent from the prior
// window -> nil (no prior data).
func AttachComparison(cur *Result, prev Result) {
	prevByStage := make(map[int]float64, len(prev.Stages))
	for _, s := range prev.Stages {
		prevByStage[s.Stage] = s.AvgDays
	}

	for i := range cur.Stages {
		prevAvg, ok := prevByStage[cur.Stages[i].Stage]
		if !ok {
			continue
		}
		p := prevAvg
		cur.Stages[i].PrevAvgDays = &p

		delta := DeltaPct(prevAvg, cur.Stages[i].AvgDays)
		cur.Stages[i].DeltaPct = &delta
	}
}

// DeltaPct computes the period-over-period percent change with the
// degenerate cases pinned: zero to zero is flat, zero to anything is a
// full 100% regression.
func DeltaPct(prev, cur float64) float64 {
	switch {
	case prev == 0 && cur == 0:
		return 0
	case prev == 0:
		return 100
	default:
		return round1((cur - prev) / prev * 100)
	}
}
