// Package handlers contains HTTP handlers for the engine API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"flowplane/internal/store"
	"flowplane/pkg/api"

	"github.com/google/uuid"
)

// StoreFactory combines the interfaces needed for the engine to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.EventStore
	store.EventQueryStore
	store.JobStore
	store.TenantStore
}

// Correlator is the event-delivery surface the handlers drive.
type Correlator interface {
	RegisterWait(ctx context.Context, w *store.WaitingEvent) (int64, error)
	ThrowMessage(ctx context.Context, m *store.MessageInstance) (int64, error)
	DeliverSignal(ctx context.Context, tenantID uuid.UUID, signalName string, payload json.RawMessage) (int, error)
	ThrowError(ctx context.Context, tenantID uuid.UUID, errorCode string, relatedActivityInstanceID int64) (*store.WaitingEvent, error)
	CancelWait(ctx context.Context, tenantID uuid.UUID, id int64) error
}

// RetryCoordinator is the job-replay surface the handlers drive.
type RetryCoordinator interface {
	ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.FailedJobView, error)
	Replay(ctx context.Context, tenantID, jobID uuid.UUID, overrides json.RawMessage) error
}

// Scheduler arms triggers for newly registered job descriptors.
type Scheduler interface {
	Schedule(job *store.JobDescriptor) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store      StoreFactory
	correlator Correlator
	retry      RetryCoordinator
	scheduler  Scheduler
	// kick triggers an immediate correlation sweep after a throw.
	kick func()
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, correlator Correlator, retry RetryCoordinator, scheduler Scheduler, kick func()) *Handlers {
	if kick == nil {
		kick = func() {}
	}
	return &Handlers{store: s, correlator: correlator, retry: retry, scheduler: scheduler, kick: kick}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
