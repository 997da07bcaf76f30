package api

import (
	"net/http"

	"github.com/okian/larkgate/internal/scheduler"
)

// SchedulerHandler exposes scheduler state.
type SchedulerHandler struct {
	view SchedulerView
}

// NewSchedulerHandler creates a handler over view. A nil view reports the
// scheduler as not initialized.
func NewSchedulerHandler(view SchedulerView) *SchedulerHandler {
	return &SchedulerHandler{view: view}
}

// HandleStatus handles GET /scheduler/status.
func (h *SchedulerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	if h.view == nil {
		writeJSON(w, http.StatusOK, scheduler.Status{Status: scheduler.StatusNotInitialized})
		return
	}
	writeJSON(w, http.StatusOK, h.view.Status())
}

// HandleJobs handles GET /scheduler/jobs.
func (h *SchedulerHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	jobs := []scheduler.JobInfo{}
	if h.view != nil {
		if j := h.view.Jobs(); j != nil {
			jobs = j
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}
