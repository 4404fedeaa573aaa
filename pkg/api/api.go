// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the engine.
package api

import (
	"encoding/json"
	"time"
)

// CreateTenantRequest is the request body for creating a new tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateTenantResponse is the response body after creating a tenant.
type CreateTenantResponse struct {
	ID     string `json:"tenant_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// RegisterWaitRequest records a "wait for event X" registration for a
// process instance paused at a catching event node.
type RegisterWaitRequest struct {
	Kind                string    `json:"kind"` // MESSAGE | SIGNAL | ERROR | TIMER
	ProcessDefinitionID int64     `json:"process_definition_id,omitempty"`
	ProcessName         string    `json:"process_name,omitempty"`
	FlowNodeDefID       int64     `json:"flow_node_def_id,omitempty"`
	FlowNodeName        string    `json:"flow_node_name,omitempty"`
	FlowNodeInstanceID  int64     `json:"flow_node_instance_id,omitempty"`
	ParentInstanceID    int64     `json:"parent_instance_id,omitempty"`
	RootInstanceID      int64     `json:"root_instance_id,omitempty"`
	MessageName         string    `json:"message_name,omitempty"`
	Correlations        []*string `json:"correlations,omitempty"` // up to 5 slots, null slots allowed
	SignalName          string    `json:"signal_name,omitempty"`
	ErrorCode           *string   `json:"error_code,omitempty"`
	RelatedActivityID   int64     `json:"related_activity_id,omitempty"`
}

// RegisterWaitResponse is the response body after registering a wait.
type RegisterWaitResponse struct {
	WaitingEventID int64 `json:"waiting_event_id"`
}

// WaitResponse is one entry in the active-waits listing.
type WaitResponse struct {
	WaitingEventID     int64     `json:"waiting_event_id"`
	Kind               string    `json:"kind"`
	ProcessName        string    `json:"process_name,omitempty"`
	FlowNodeName       string    `json:"flow_node_name,omitempty"`
	FlowNodeInstanceID int64     `json:"flow_node_instance_id,omitempty"`
	MessageName        string    `json:"message_name,omitempty"`
	SignalName         string    `json:"signal_name,omitempty"`
	ErrorCode          *string   `json:"error_code,omitempty"`
	Correlations       []*string `json:"correlations,omitempty"`
	Progress           int64     `json:"progress"`
	CreatedAt          time.Time `json:"created_at"`
}

// ListWaitsResponse is the response body for the active-waits query.
type ListWaitsResponse struct {
	Waits []WaitResponse `json:"waits"`
}

// ThrowMessageRequest is the request body for throwing a message event.
type ThrowMessageRequest struct {
	MessageName         string          `json:"message_name"`
	TargetProcess       string          `json:"target_process,omitempty"`
	TargetFlowNode      string          `json:"target_flow_node,omitempty"`
	ProcessDefinitionID int64           `json:"process_definition_id,omitempty"`
	ThrowingNodeName    string          `json:"throwing_node_name,omitempty"`
	Correlations        []*string       `json:"correlations,omitempty"`
	Payload             json.RawMessage `json:"payload,omitempty"`
}

// ThrowMessageResponse is the response body after throwing a message.
type ThrowMessageResponse struct {
	MessageInstanceID int64 `json:"message_instance_id"`
}

// PendingMessageResponse is one entry in the pending-messages listing.
type PendingMessageResponse struct {
	MessageInstanceID int64     `json:"message_instance_id"`
	MessageName       string    `json:"message_name"`
	TargetProcess     string    `json:"target_process,omitempty"`
	TargetFlowNode    string    `json:"target_flow_node,omitempty"`
	Correlations      []*string `json:"correlations,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ListPendingMessagesResponse is the response body for the pending-messages
// query.
type ListPendingMessagesResponse struct {
	Messages []PendingMessageResponse `json:"messages"`
}

// ThrowSignalRequest is the request body for broadcasting a signal event.
type ThrowSignalRequest struct {
	SignalName string          `json:"signal_name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ThrowSignalResponse reports how many waiting events the signal reached.
type ThrowSignalResponse struct {
	Delivered int `json:"delivered"`
}

// ThrowErrorRequest is the request body for throwing an error event.
type ThrowErrorRequest struct {
	ErrorCode         string `json:"error_code"`
	RelatedActivityID int64  `json:"related_activity_id,omitempty"`
}

// ThrowErrorResponse reports which waiting event caught the error, if any.
type ThrowErrorResponse struct {
	Caught         bool  `json:"caught"`
	WaitingEventID int64 `json:"waiting_event_id,omitempty"`
}

// CreateJobRequest registers a new job descriptor.
type CreateJobRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	// CronSpec is empty for fire-once jobs.
	CronSpec string `json:"cron_spec,omitempty"`
}

// CreateJobResponse is the response body after registering a job.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// FailedJobResponse is one entry in the failing-jobs projection.
type FailedJobResponse struct {
	JobID            string    `json:"job_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	NumberOfFailures int       `json:"number_of_failures"`
	LastMessage      string    `json:"last_message"`
	LastExecutedAt   time.Time `json:"last_executed_at"`
}

// ListFailingJobsResponse is the response body for the failing-jobs query.
type ListFailingJobsResponse struct {
	Jobs []FailedJobResponse `json:"jobs"`
}

// ReplayJobRequest carries parameter overrides for a forced re-execution.
type ReplayJobRequest struct {
	ParameterOverrides json.RawMessage `json:"parameter_overrides,omitempty"`
}

// ReplayJobResponse is the immediate success/failure signal for a replay.
type ReplayJobResponse struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
