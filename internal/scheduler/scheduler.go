// Package scheduler runs the recurring SLA evaluation tick across all
// workspaces with recorded events.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/sla"
)

const DefaultInterval = 5 * time.Minute

type Scheduler struct {
	engine   *sla.Engine
	events   repository.EventRepository
	interval time.Duration
	stop     chan struct{}
}

func NewScheduler(engine *sla.Engine, events repository.EventRepository, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		engine:   engine,
		events:   events,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs evaluation passes on the configured interval until Stop is
// called. One pass failing for one workspace never blocks the others.
func (s *Scheduler) Start() {
	log.Printf("Scheduler started, evaluating every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())
	for {
		select {
		case <-s.stop:
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// RunOnce evaluates every workspace a single time.
func (s *Scheduler) RunOnce(ctx context.Context) {
	workspaces, err := s.events.Workspaces(ctx)
	if err != nil {
		log.Printf("Failed to list workspaces: %v", err)
		return
	}

	for _, workspaceID := range workspaces {
		summary, err := s.engine.EvaluateWorkspace(ctx, workspaceID)
		if err != nil {
			log.Printf("Evaluation failed for workspace %s: %v", workspaceID, err)
			continue
		}
		if summary.TasksCreated > 0 {
			log.Printf("Workspace %s: %d urgent roles, %d tasks created", workspaceID, summary.UrgentRoles, summary.TasksCreated)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
}
