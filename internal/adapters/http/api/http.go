// Package api exposes the webhook gate and the operational HTTP routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/larkgate/internal/domain/dedupe"
	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/internal/errs"
	"github.com/okian/larkgate/internal/scheduler"
)

// Dependencies required by the webhook gate. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Submit hands a task to background processing without blocking.
	Submit(ctx context.Context, t model.Task) error

	// DedupeTTL is the retention window swept on every request.
	DedupeTTL() time.Duration

	// WebhookNamespace prefixes synthesized ids on the static route.
	WebhookNamespace() string
}

// SchedulerView is the read side of the job scheduler.
type SchedulerView interface {
	Status() scheduler.Status
	Jobs() []scheduler.JobInfo
}

// ServiceInfo describes the process on GET /.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server wires HTTP routes for the bot.
type Server struct {
	info             ServiceInfo
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	webhookHandler   *WebhookHandler
	schedulerHandler *SchedulerHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(info ServiceInfo, deps Dependencies, stats StatsProvider, sched SchedulerView) *Server {
	return &Server{
		info:             info,
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(stats),
		webhookHandler:   NewWebhookHandler(deps),
		schedulerHandler: NewSchedulerHandler(sched),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/feishu/webhook", MetricsMiddleware(s.webhookHandler.HandleStatic, "webhook"))
	mux.HandleFunc("/feishu/webhook/{agent}/{app}", MetricsMiddleware(s.webhookHandler.HandleDynamic, "webhook_dynamic"))
	mux.HandleFunc("/scheduler/status", MetricsMiddleware(s.schedulerHandler.HandleStatus, "scheduler_status"))
	mux.HandleFunc("/scheduler/jobs", MetricsMiddleware(s.schedulerHandler.HandleJobs, "scheduler_jobs"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleLiveness, "health"))
	mux.HandleFunc("/healthz", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/{$}", MetricsMiddleware(s.handleRoot, "root"))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.info.Name,
		"version": s.info.Version,
		"status":  "running",
		"endpoints": []string{
			"POST /feishu/webhook",
			"POST /feishu/webhook/{agent_id}-{auth_key}-{auth_secret}/{app_id}-{app_secret}",
			"GET /scheduler/status",
			"GET /scheduler/jobs",
			"GET /stats",
			"GET /health",
			"GET /healthz",
			"GET /openapi.yaml",
		},
	})
}

// Response bodies.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, statusResponse{Status: "error", Message: msg})
}

// statusFor maps an error kind to a status code.
func statusFor(err error) int {
	switch kind := errs.KindOf(err); {
	case errors.Is(kind, errs.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(kind, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
