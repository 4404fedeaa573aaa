package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"flowplane/internal/engine/middleware"
	"flowplane/internal/store"
	"flowplane/pkg/api"
)

// RegisterWait handles POST /waits.
// It records a waiting event for a process instance paused at a catching
// event node.
func (h *Handlers) RegisterWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterWaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	kind := store.TriggerKind(req.Kind)
	switch kind {
	case store.TriggerMessage:
		if req.MessageName == "" {
			h.httpError(w, "message_name is required for MESSAGE waits", http.StatusBadRequest)
			return
		}
	case store.TriggerSignal:
		if req.SignalName == "" {
			h.httpError(w, "signal_name is required for SIGNAL waits", http.StatusBadRequest)
			return
		}
	case store.TriggerError, store.TriggerTimer:
	default:
		h.httpError(w, "Unknown trigger kind", http.StatusBadRequest)
		return
	}

	correlation, err := correlationFromSlots(req.Correlations)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	waitingEvent := &store.WaitingEvent{
		TenantID:                  tenant.ID,
		Kind:                      kind,
		ProcessDefinitionID:       req.ProcessDefinitionID,
		ProcessName:               req.ProcessName,
		FlowNodeDefID:             req.FlowNodeDefID,
		FlowNodeName:              req.FlowNodeName,
		FlowNodeInstanceID:        req.FlowNodeInstanceID,
		ParentProcessInstanceID:   req.ParentInstanceID,
		RootProcessInstanceID:     req.RootInstanceID,
		Active:                    true,
		MessageName:               req.MessageName,
		Correlation:               correlation,
		SignalName:                req.SignalName,
		ErrorCode:                 req.ErrorCode,
		RelatedActivityInstanceID: req.RelatedActivityID,
		CreatedAt:                 time.Now().UTC(),
	}

	id, err := h.correlator.RegisterWait(ctx, waitingEvent)
	if err != nil {
		h.httpError(w, "Failed to register wait", http.StatusInternalServerError)
		return
	}

	// A message may already be pending for this wait.
	if kind == store.TriggerMessage {
		h.kick()
	}

	h.respondJson(w, http.StatusCreated, api.RegisterWaitResponse{WaitingEventID: id})
}

// CancelWait handles DELETE /waits/{id}.
// The owning process instance was cancelled; the wait must never match.
func (h *Handlers) CancelWait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "Invalid waiting event id", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.correlator.CancelWait(ctx, tenant.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Waiting event not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to cancel wait", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusNoContent, nil)
}

// ThrowMessage handles POST /messages.
// The message stays pending until a sweep matches it; an immediate sweep is
// kicked so a ready couple is delivered without waiting for the next tick.
func (h *Handlers) ThrowMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ThrowMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.MessageName == "" {
		h.httpError(w, "message_name is required", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	correlation, err := correlationFromSlots(req.Correlations)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	instance := &store.MessageInstance{
		TenantID:            tenant.ID,
		MessageName:         req.MessageName,
		TargetProcess:       req.TargetProcess,
		TargetFlowNode:      req.TargetFlowNode,
		ProcessDefinitionID: req.ProcessDefinitionID,
		ThrowingNodeName:    req.ThrowingNodeName,
		Correlation:         correlation,
		Payload:             req.Payload,
		CreatedAt:           time.Now().UTC(),
	}

	id, err := h.correlator.ThrowMessage(ctx, instance)
	if err != nil {
		h.httpError(w, "Failed to throw message", http.StatusInternalServerError)
		return
	}

	h.kick()

	h.respondJson(w, http.StatusCreated, api.ThrowMessageResponse{MessageInstanceID: id})
}

// ThrowSignal handles POST /signals.
// Signals broadcast synchronously to every matching waiter.
func (h *Handlers) ThrowSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ThrowSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SignalName == "" {
		h.httpError(w, "signal_name is required", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	delivered, err := h.correlator.DeliverSignal(ctx, tenant.ID, req.SignalName, req.Payload)
	if err != nil {
		h.httpError(w, "Failed to deliver signal", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.ThrowSignalResponse{Delivered: delivered})
}

// ThrowError handles POST /errors.
// A miss is not an error: propagation to an enclosing scope is the
// process-execution caller's concern.
func (h *Handlers) ThrowError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ThrowErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	match, err := h.correlator.ThrowError(ctx, tenant.ID, req.ErrorCode, req.RelatedActivityID)
	if err != nil {
		h.httpError(w, "Failed to deliver error", http.StatusInternalServerError)
		return
	}

	resp := api.ThrowErrorResponse{}
	if match != nil {
		resp.Caught = true
		resp.WaitingEventID = match.ID
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ListWaits handles GET /waits.
// Operators inspect what a tenant's process instances are currently
// waiting for.
func (h *Handlers) ListWaits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := paginationParams(r)

	waits, err := h.store.ListTenantWaits(ctx, tenant.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list waits", http.StatusInternalServerError)
		return
	}

	resp := api.ListWaitsResponse{Waits: make([]api.WaitResponse, 0, len(waits))}
	for _, wait := range waits {
		resp.Waits = append(resp.Waits, api.WaitResponse{
			WaitingEventID:     wait.ID,
			Kind:               string(wait.Kind),
			ProcessName:        wait.ProcessName,
			FlowNodeName:       wait.FlowNodeName,
			FlowNodeInstanceID: wait.FlowNodeInstanceID,
			MessageName:        wait.MessageName,
			SignalName:         wait.SignalName,
			ErrorCode:          wait.ErrorCode,
			Correlations:       slotsFromCorrelation(wait.Correlation),
			Progress:           wait.Progress,
			CreatedAt:          wait.CreatedAt,
		})
	}

	h.respondJson(w, http.StatusOK, resp)
}

// ListPendingMessages handles GET /messages/pending.
// A message stays in this listing until a sweep matches it or the
// retention window deletes it.
func (h *Handlers) ListPendingMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := paginationParams(r)

	messages, err := h.store.ListTenantPendingMessages(ctx, tenant.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list pending messages", http.StatusInternalServerError)
		return
	}

	resp := api.ListPendingMessagesResponse{Messages: make([]api.PendingMessageResponse, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, api.PendingMessageResponse{
			MessageInstanceID: m.ID,
			MessageName:       m.MessageName,
			TargetProcess:     m.TargetProcess,
			TargetFlowNode:    m.TargetFlowNode,
			Correlations:      slotsFromCorrelation(m.Correlation),
			CreatedAt:         m.CreatedAt,
		})
	}

	h.respondJson(w, http.StatusOK, resp)
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset = 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func correlationFromSlots(slots []*string) (store.CorrelationKey, error) {
	var key store.CorrelationKey
	if len(slots) > store.CorrelationSlots {
		return key, errors.New("at most 5 correlation slots are supported")
	}
	copy(key[:], slots)
	return key, nil
}

// slotsFromCorrelation drops trailing empty slots so responses stay compact.
func slotsFromCorrelation(key store.CorrelationKey) []*string {
	last := -1
	for i, slot := range key {
		if slot != nil {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	slots := make([]*string, last+1)
	copy(slots, key[:last+1])
	return slots
}
