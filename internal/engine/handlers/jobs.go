package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"flowplane/internal/engine/middleware"
	"flowplane/internal/retry"
	"flowplane/internal/store"
	"flowplane/pkg/api"

	"github.com/google/uuid"
)

// CreateJob handles POST /jobs.
// It registers a job descriptor and arms its trigger (cron for recurring,
// immediate fire-once otherwise).
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		h.httpError(w, "Name is required", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	job := &store.JobDescriptor{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
		CronSpec:    req.CronSpec,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.CreateJobDescriptor(ctx, tx, job); err != nil {
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	if err := h.scheduler.Schedule(job); err != nil {
		h.httpError(w, "Job stored but trigger is invalid: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateJobResponse{JobID: job.ID.String()})
}

// ListFailingJobs handles GET /jobs/failing.
// Operators see failure count and last message only, no full history.
func (h *Handlers) ListFailingJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := paginationParams(r)

	views, err := h.retry.ListFailingJobs(ctx, tenant.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list failing jobs", http.StatusInternalServerError)
		return
	}

	resp := api.ListFailingJobsResponse{Jobs: make([]api.FailedJobResponse, 0, len(views))}
	for _, v := range views {
		resp.Jobs = append(resp.Jobs, api.FailedJobResponse{
			JobID:            v.JobID.String(),
			Name:             v.Name,
			Description:      v.Description,
			NumberOfFailures: v.NumberOfFailures,
			LastMessage:      v.LastMessage,
			LastExecutedAt:   v.LastExecutedAt,
		})
	}

	h.respondJson(w, http.StatusOK, resp)
}

// ReplayJob handles POST /jobs/{id}/replay.
// A replay always produces an immediate success/failure signal.
func (h *Handlers) ReplayJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.ReplayJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	err = h.retry.Replay(ctx, tenant.ID, jobID, req.ParameterOverrides)

	var execErr *retry.JobExecutionError
	switch {
	case err == nil:
		h.respondJson(w, http.StatusOK, api.ReplayJobResponse{JobID: jobID.String(), Success: true})

	case errors.As(err, &execErr):
		// The failure is recorded in the job log; the replay call itself
		// succeeded in producing an outcome.
		h.respondJson(w, http.StatusOK, api.ReplayJobResponse{
			JobID:   jobID.String(),
			Success: false,
			Error:   execErr.Cause.Error(),
		})

	case errors.Is(err, store.ErrConflict):
		h.httpError(w, "Replay already in progress", http.StatusConflict)

	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Job not found", http.StatusNotFound)

	default:
		h.httpError(w, "Failed to replay job", http.StatusInternalServerError)
	}
}
