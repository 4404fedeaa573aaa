// Package store contains the database layer for flowplane.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CorrelationSlots is the fixed number of correlation key slots a message
// carries. Unused slots are nil and match only nil.
const CorrelationSlots = 5

// CorrelationKey is an ordered tuple of up to five resolved string values
// used to narrow message matching.
type CorrelationKey [CorrelationSlots]*string

// Equal reports whether every slot matches slot-wise. Two nil slots count
// as equal; a mismatch on any populated slot disqualifies the pair.
func (k CorrelationKey) Equal(other CorrelationKey) bool {
	for i := 0; i < CorrelationSlots; i++ {
		a, b := k[i], other[i]
		if a == nil && b == nil {
			continue
		}
		if a == nil || b == nil {
			return false
		}
		if *a != *b {
			return false
		}
	}
	return true
}

// TriggerKind discriminates the closed set of waiting event variants.
type TriggerKind string

const (
	TriggerMessage TriggerKind = "MESSAGE"
	TriggerSignal  TriggerKind = "SIGNAL"
	TriggerError   TriggerKind = "ERROR"
	TriggerTimer   TriggerKind = "TIMER"
)

// Tenant represents a tenant in the multi-tenant system.
// All operations must be scoped by TenantID.
type Tenant struct {
	ID             uuid.UUID
	Name           string
	RateLimit      int
	RateLimitBurst int
	CreatedAt      time.Time
}

// WaitingEvent represents a process instance paused at a catching event
// node, waiting to be matched against a thrown event. It is a tagged
// variant: Kind selects which of the kind-specific fields are meaningful.
type WaitingEvent struct {
	ID       int64
	TenantID uuid.UUID
	Kind     TriggerKind

	ProcessDefinitionID int64
	ProcessName         string
	FlowNodeDefID       int64
	FlowNodeName        string

	// Optional ownership, zero when not applicable.
	ParentProcessInstanceID int64
	RootProcessInstanceID   int64
	FlowNodeInstanceID      int64

	Active bool

	// Message variant only.
	MessageName string
	Correlation CorrelationKey
	Locked      bool
	Progress    int64

	// Signal variant only.
	SignalName string

	// Error variant only. A nil ErrorCode catches any error.
	ErrorCode *string
	// RelatedActivityInstanceID is the activity a boundary error event is
	// attached to, zero if not a boundary event.
	RelatedActivityInstanceID int64

	CreatedAt time.Time
}

// MessageInstance represents a thrown message that has not yet been
// delivered. Handled is terminal: a handled instance is never matched again.
type MessageInstance struct {
	ID       int64
	TenantID uuid.UUID

	MessageName string
	// TargetProcess and TargetFlowNode narrow the waiting events the
	// instance may satisfy. Empty means no narrowing.
	TargetProcess  string
	TargetFlowNode string

	ProcessDefinitionID int64
	ThrowingNodeName    string

	Correlation CorrelationKey
	Payload     json.RawMessage

	Locked  bool
	Handled bool

	CreatedAt time.Time
}

// EventCouple is an ephemeral pairing between one waiting event and one
// message instance. It is never persisted; both sides must be re-validated
// at claim time before delivery commits.
type EventCouple struct {
	WaitingEventID    int64
	WaitingEventKind  TriggerKind
	MessageInstanceID int64
}

// JobDescriptor is the durable definition of a unit of asynchronous work
// and how to re-invoke it.
type JobDescriptor struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Description string
	// Parameters are merged with replay overrides when the job is re-invoked.
	Parameters json.RawMessage
	// CronSpec is empty for fire-once jobs.
	CronSpec  string
	Replaying bool
	CreatedAt time.Time
}

// Recurring reports whether the descriptor has a recurring trigger.
func (j *JobDescriptor) Recurring() bool {
	return j.CronSpec != ""
}

// JobLog is the durable failure record for a currently-failing job
// descriptor. Only the latest failure message is retained, not history.
type JobLog struct {
	JobID            uuid.UUID
	NumberOfFailures int
	LastMessage      string
	LastExecutedAt   time.Time
}

// FailedJobView is the read-only projection joining JobDescriptor and
// JobLog that operators page through.
type FailedJobView struct {
	JobID            uuid.UUID
	Name             string
	Description      string
	NumberOfFailures int
	LastMessage      string
	LastExecutedAt   time.Time
}
