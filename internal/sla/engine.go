// Package sla evaluates live role state against configured stage and
// total-age thresholds, generating deduplicated escalation and chase
// tasks. Role state is reconstructed from the event log on every pass,
// so re-running an evaluation with unchanged inputs is a no-op.
package sla

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/talentops/pipetrack/internal/event"
	"github.com/talentops/pipetrack/internal/interval"
	"github.com/talentops/pipetrack/internal/metrics"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/response"
	"github.com/talentops/pipetrack/internal/urgency"
)

const chaseTaskTitle = "Chase client feedback"

// Notifier is told about newly created escalation tasks. Implementations
// must not block the evaluation pass on delivery.
type Notifier interface {
	NotifyEscalation(ctx context.Context, t *urgency.Task)
}

type Engine struct {
	events   repository.EventRepository
	tasks    repository.TaskRepository
	learner  *response.Learner
	cfg      pipeline.Config
	notifier Notifier
	now      func() time.Time
}

func NewEngine(events repository.EventRepository, tasks repository.TaskRepository, learner *response.Learner, cfg pipeline.Config) *Engine {
	return &Engine{
		events:  events,
		tasks:   tasks,
		learner: learner,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// EvaluationSummary reports what one pass over a workspace did.
type EvaluationSummary struct {
	WorkspaceID  string `json:"workspace_id"`
	RolesChecked int    `json:"roles_checked"`
	UrgentRoles  int    `json:"urgent_roles"`
	TasksCreated int    `json:"tasks_created"`
}

// EvaluateWorkspace runs one SLA pass: reconstruct every role's current
// stage from the event log, flag the ones over their stage or total-age
// threshold, and ensure exactly one open check-in task per breaching
// role. Terminal-stage roles are exempt.
func (e *Engine) EvaluateWorkspace(ctx context.Context, workspaceID string) (EvaluationSummary, error) {
	summary := EvaluationSummary{WorkspaceID: workspaceID}

	events, err := e.events.AllEvents(ctx, workspaceID)
	if err != nil {
		return summary, fmt.Errorf("failed to load events for %s: %w", workspaceID, err)
	}

	now := e.now()
	states := interval.OpenStages(events, now)
	createdAt := firstEventTimes(events)

	for roleID, state := range states {
		if state.Stage == e.cfg.TerminalStage() {
			continue
		}
		summary.RolesChecked++

		stageAgeHours := now.Sub(state.EnteredAt).Hours()
		totalAgeHours := now.Sub(createdAt[roleID]).Hours()
		if stageAgeHours <= e.cfg.SLAFor(state.Stage) && totalAgeHours <= e.cfg.MaxTotalHours {
			continue
		}
		summary.UrgentRoles++

		if !e.cfg.Escalations {
			continue
		}

		stageName := state.StageName
		if stageName == "" {
			stageName = e.cfg.StageName(state.Stage)
		}
		task := urgency.NewTask(workspaceID, roleID, "Check in: "+stageName, now, urgency.OriginAutoEscalation)

		created, err := e.tasks.CreateTaskIfAbsent(ctx, task)
		if err != nil {
			return summary, fmt.Errorf("failed to create escalation task for %s: %w", roleID, err)
		}
		if created {
			summary.TasksCreated++
			metrics.RecordTaskAutoCreated(string(urgency.OriginAutoEscalation))
			if e.notifier != nil {
				e.notifier.NotifyEscalation(ctx, task)
			}
		}
	}

	metrics.RuleEngineTicks.Inc()
	metrics.UpdateUrgentRoles(workspaceID, summary.UrgentRoles)
	return summary, nil
}

// HandleTransition runs the stage-change hooks for a freshly ingested
// event: schedule a chase task when a role enters the awaiting-response
// stage, and record a response-time sample when it leaves it. Hook
// failures are logged, never propagated; intake must not fail because a
// follow-up could not be scheduled.
func (e *Engine) HandleTransition(ctx context.Context, ev event.StageTransitionEvent) {
	if ev.Kind != event.KindStageChanged {
		return
	}
	awaiting := e.cfg.AwaitingStage()
	if awaiting < 0 {
		return
	}

	if ev.Stage == awaiting && e.cfg.ChaseTasks {
		if err := e.scheduleChase(ctx, ev); err != nil {
			log.Printf("failed to schedule chase task for role %s: %v", ev.RoleID, err)
		}
	}

	if ev.FromStage == awaiting {
		if err := e.recordResponseSample(ctx, ev, awaiting); err != nil {
			log.Printf("failed to record response sample for role %s: %v", ev.RoleID, err)
		}
	}
}

func (e *Engine) scheduleChase(ctx context.Context, ev event.StageTransitionEvent) error {
	delay := e.learner.RecommendChaseDelay(ctx, ev.ClientID)
	task := urgency.NewTask(ev.WorkspaceID, ev.RoleID, chaseTaskTitle, e.now().Add(delay), urgency.OriginAutoChase)

	created, err := e.tasks.CreateTaskIfAbsent(ctx, task)
	if err != nil {
		return err
	}
	if created {
		metrics.RecordTaskAutoCreated(string(urgency.OriginAutoChase))
	}
	return nil
}

// recordResponseSample feeds the time the role just spent in the
// awaiting-response stage into the client's EMA. The closed interval is
// recovered from the role's event history, so the sample matches what
// the aggregation path would report.
func (e *Engine) recordResponseSample(ctx context.Context, ev event.StageTransitionEvent, awaiting int) error {
	roleEvents, err := e.events.EventsForRole(ctx, ev.WorkspaceID, ev.RoleID)
	if err != nil {
		return err
	}

	clientKey := ev.ClientID
	if clientKey == "" {
		clientKey = lastClientID(roleEvents)
	}
	if clientKey == "" {
		return nil
	}

	for _, si := range interval.Reconstruct(roleEvents, ev.Timestamp) {
		if si.RoleID != ev.RoleID || si.Stage != awaiting || si.Open() {
			continue
		}
		if !si.ExitedAt.Equal(ev.Timestamp) {
			continue
		}
		_, err := e.learner.Observe(ctx, clientKey, time.Duration(si.DurationMs)*time.Millisecond)
		return err
	}
	return nil
}

func firstEventTimes(events []event.StageTransitionEvent) map[string]time.Time {
	first := make(map[string]time.Time)
	for _, ev := range events {
		if ts, ok := first[ev.RoleID]; !ok || ev.Timestamp.Before(ts) {
			first[ev.RoleID] = ev.Timestamp
		}
	}
	return first
}

func lastClientID(events []event.StageTransitionEvent) string {
	clientID := ""
	for _, ev := range events {
		if ev.ClientID != "" {
			clientID = ev.ClientID
		}
	}
	return clientID
}
