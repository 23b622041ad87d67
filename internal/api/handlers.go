package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/talentops/pipetrack/internal/analytics"
	"github.com/talentops/pipetrack/internal/dashboard"
	"github.com/talentops/pipetrack/internal/event"
	"github.com/talentops/pipetrack/internal/httputil"
	"github.com/talentops/pipetrack/internal/interval"
	"github.com/talentops/pipetrack/internal/metrics"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/sla"
	"github.com/talentops/pipetrack/internal/urgency"
)

type API struct {
	events repository.EventRepository
	tasks  repository.TaskRepository
	engine *sla.Engine
	dash   *dashboard.Dashboard
	cfg    pipeline.Config
	mux    *http.ServeMux
	now    func() time.Time
}

func NewAPI(events repository.EventRepository, tasks repository.TaskRepository, engine *sla.Engine, cfg pipeline.Config) *API {
	api := &API{
		events: events,
		tasks:  tasks,
		engine: engine,
		dash:   dashboard.NewDashboard(events, tasks, cfg),
		cfg:    cfg,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/analytics/stage-duration", a.handleStageDuration)
	a.mux.HandleFunc("/api/analytics/summary", a.handleSummary)
	a.mux.HandleFunc("/api/events", a.handleIngest)
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskByID)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// StageDurationResponse is the payload of the stage-duration endpoint.
// Comparison is nil for the "all" range and when the prior window could
// not be fetched.
type StageDurationResponse struct {
	Stages         []analytics.StageSummary `json:"stages"`
	TotalRoles     int                      `json:"totalRoles"`
	OverallAvgDays float64                  `json:"overallAvgDays"`
	Range          string                   `json:"range"`
	Comparison     *analytics.Window        `json:"comparison"`
}

func emptyStageDuration(rng analytics.Range) StageDurationResponse {
	return StageDurationResponse{
		Stages: []analytics.StageSummary{},
		Range:  string(rng),
	}
}

func (a *API) handleStageDuration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		httputil.WriteJSONError(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	rng, err := analytics.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	defer func() {
		metrics.RecordAggregationQuery(string(rng), time.Since(start))
	}()

	cur, prev := analytics.Windows(rng, a.now())

	// A store hiccup degrades to empty aggregates with a 200: the
	// dashboard widget shows zeros, never an error banner.
	events, err := a.events.EventsInRange(r.Context(), workspaceID, cur.From, cur.To)
	if err != nil {
		log.Printf("stage-duration query failed for %s: %v", workspaceID, err)
		metrics.StoreQueryFailures.Inc()
		httputil.WriteJSON(w, http.StatusOK, emptyStageDuration(rng))
		return
	}

	result := analytics.Aggregate(interval.Reconstruct(events, cur.To), a.cfg)

	comparison := prev
	if prev != nil {
		prevEvents, err := a.events.EventsInRange(r.Context(), workspaceID, prev.From, prev.To)
		if err != nil {
			// Comparison failures are isolated: the current window's
			// result still goes out, just without deltas.
			log.Printf("stage-duration comparison query failed for %s: %v", workspaceID, err)
			metrics.StoreQueryFailures.Inc()
			comparison = nil
		} else {
			prevResult := analytics.Aggregate(interval.Reconstruct(prevEvents, prev.To), a.cfg)
			analytics.AttachComparison(&result, prevResult)
		}
	}

	resp := StageDurationResponse{
		Stages:         result.Stages,
		TotalRoles:     result.TotalRoles,
		OverallAvgDays: result.OverallAvgDays,
		Range:          string(rng),
		Comparison:     comparison,
	}
	if resp.Stages == nil {
		resp.Stages = []analytics.StageSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		httputil.WriteJSONError(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	rng, err := analytics.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, a.dash.Summarize(r.Context(), workspaceID, rng))
}

type IngestRequest struct {
	Events []event.IngestEvent `json:"events"`
}

type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		httputil.WriteJSONError(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		httputil.WriteJSONError(w, "events is required", http.StatusBadRequest)
		return
	}

	var accepted []event.StageTransitionEvent
	rejected := 0
	for _, in := range req.Events {
		ev, err := event.FromIngest(workspaceID, in)
		if err != nil {
			rejected++
			metrics.EventsRejected.Inc()
			continue
		}
		accepted = append(accepted, ev)
	}

	if len(accepted) > 0 {
		if err := a.events.AppendEvents(r.Context(), accepted); err != nil {
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, ev := range accepted {
			metrics.RecordEventIngested(string(ev.Kind))
			// Immediate rule-engine pass on every stage change.
			a.engine.HandleTransition(r.Context(), ev)
		}
		if _, err := a.engine.EvaluateWorkspace(r.Context(), workspaceID); err != nil {
			log.Printf("post-ingest evaluation failed for %s: %v", workspaceID, err)
		}
	}

	httputil.WriteJSON(w, http.StatusAccepted, IngestResponse{Accepted: len(accepted), Rejected: rejected})
}

type CreateTaskRequest struct {
	WorkspaceID string `json:"workspaceId"`
	RoleID      string `json:"roleId"`
	Title       string `json:"title"`
	DueAt       *int64 `json:"dueAt"` // epoch millis, defaults to now
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTasks(w, r)
	case http.MethodPost:
		a.createTask(w, r)
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		httputil.WriteJSONError(w, "workspaceId is required", http.StatusBadRequest)
		return
	}

	tasks, err := a.tasks.OpenTasks(r.Context(), workspaceID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []urgency.Task{}
	}
	httputil.WriteJSON(w, http.StatusOK, tasks)
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.WorkspaceID == "" || req.RoleID == "" || req.Title == "" {
		httputil.WriteJSONError(w, "workspaceId, roleId and title are required", http.StatusBadRequest)
		return
	}

	dueAt := a.now()
	if req.DueAt != nil {
		dueAt = time.UnixMilli(*req.DueAt).UTC()
	}

	task := urgency.NewTask(req.WorkspaceID, req.RoleID, req.Title, dueAt, urgency.OriginManual)
	if err := a.tasks.CreateTask(r.Context(), task); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, task)
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	taskID, action, found := strings.Cut(rest, "/")
	if taskID == "" || !found || action != "done" {
		httputil.WriteJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.tasks.MarkDone(r.Context(), taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
			return
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "done"})
}
