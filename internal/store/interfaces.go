package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles retrieving tenant information for authentication.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByID returns a tenant by its ID.
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)
}

// EventStore owns waiting events and message instances. No other component
// mutates these rows directly; mutation goes through the claim protocol.
type EventStore interface {
	// CreateWaitingEvent inserts a new waiting event and returns its id.
	CreateWaitingEvent(ctx context.Context, tx DBTransaction, w *WaitingEvent) (int64, error)

	// GetWaitingEvent returns a waiting event visible to the tenant.
	GetWaitingEvent(ctx context.Context, tenantID uuid.UUID, id int64) (*WaitingEvent, error)

	// DeactivateWaitingEvent flips active to false so the matcher never
	// sees the record again. Used when the owning process instance is
	// cancelled before a match occurs.
	DeactivateWaitingEvent(ctx context.Context, tx DBTransaction, tenantID uuid.UUID, id int64) error

	// DeactivateWaitsForFlowNode cleans up orphaned waits when a flow node
	// instance terminates.
	DeactivateWaitsForFlowNode(ctx context.Context, tx DBTransaction, tenantID uuid.UUID, flowNodeInstanceID int64) (int64, error)

	// CreateMessageInstance inserts a thrown message and returns its id.
	CreateMessageInstance(ctx context.Context, tx DBTransaction, m *MessageInstance) (int64, error)

	// ListPendingMessages returns unhandled, unlocked message instances in
	// creation order, up to limit.
	ListPendingMessages(ctx context.Context, limit int) ([]MessageInstance, error)

	// ListActiveMessageWaits returns active, unlocked waiting message
	// events for the given message names, ordered by id ascending.
	ListActiveMessageWaits(ctx context.Context, messageNames []string) ([]WaitingEvent, error)

	// ListSignalWaits returns all active waiting signal events for a
	// signal name within a tenant. Signals broadcast; there is no locking
	// contention between signal deliveries.
	ListSignalWaits(ctx context.Context, tenantID uuid.UUID, signalName string) ([]WaitingEvent, error)

	// ListErrorWaits returns active waiting error events scoped to the
	// given activity instance (plus process-level waits with no related
	// activity), ordered by id ascending.
	ListErrorWaits(ctx context.Context, tenantID uuid.UUID, relatedActivityInstanceID int64) ([]WaitingEvent, error)

	// ClaimWaitingEvent conditionally sets locked=true on an active,
	// unlocked waiting event and bumps its progress counter. Returns
	// ErrConflict when another worker already claimed the row.
	ClaimWaitingEvent(ctx context.Context, tx DBTransaction, id int64) error

	// ClaimMessageInstance conditionally sets locked=true on an unhandled,
	// unlocked message instance. Returns ErrConflict on a lost race.
	ClaimMessageInstance(ctx context.Context, tx DBTransaction, id int64) error

	// ReleaseWaitingEvent clears the lock so a future sweep may retry.
	ReleaseWaitingEvent(ctx context.Context, tx DBTransaction, id int64) error

	// ReleaseMessageInstance clears the lock so a future sweep may retry.
	ReleaseMessageInstance(ctx context.Context, tx DBTransaction, id int64) error

	// ConsumeWaitingEvent marks a claimed waiting event consumed without a
	// message instance counterpart (signal and error deliveries).
	ConsumeWaitingEvent(ctx context.Context, tx DBTransaction, id int64) error

	// CompleteDelivery marks the couple consumed: the message instance is
	// handled (terminal) and the waiting event deactivated, both unlocked.
	CompleteDelivery(ctx context.Context, tx DBTransaction, couple EventCouple) error

	// DeleteExpiredMessages removes pending messages older than the cutoff
	// and returns how many were removed.
	DeleteExpiredMessages(ctx context.Context, olderThan time.Time) (int64, error)

	// CountPendingMessages returns the number of unhandled messages.
	CountPendingMessages(ctx context.Context) (int64, error)
}

// EventQueryStore serves the read-only listings on the API surface. These
// never touch locks; they observe whatever state the claim protocol left
// behind.
type EventQueryStore interface {
	// ListTenantWaits returns active waiting events for a tenant, ordered
	// by id ascending.
	ListTenantWaits(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]WaitingEvent, error)

	// ListTenantPendingMessages returns unhandled message instances for a
	// tenant in creation order.
	ListTenantPendingMessages(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]MessageInstance, error)
}

// JobStore owns job descriptors and their failure logs.
type JobStore interface {
	// CreateJobDescriptor inserts a new job descriptor.
	CreateJobDescriptor(ctx context.Context, tx DBTransaction, j *JobDescriptor) error

	// GetJobDescriptorByID returns a descriptor visible to the tenant.
	GetJobDescriptorByID(ctx context.Context, tenantID, id uuid.UUID) (*JobDescriptor, error)

	// ListRecurringJobDescriptors returns every descriptor with a cron
	// trigger, across tenants. Used to re-arm triggers at startup.
	ListRecurringJobDescriptors(ctx context.Context) ([]JobDescriptor, error)

	// DeleteJobDescriptor removes a descriptor permanently.
	DeleteJobDescriptor(ctx context.Context, tx DBTransaction, id uuid.UUID) error

	// RecordJobFailure creates the job log on first failure, otherwise
	// increments the failure count and replaces the stored message.
	RecordJobFailure(ctx context.Context, tx DBTransaction, jobID uuid.UUID, message string, at time.Time) error

	// GetJobLog returns the failure log for a descriptor, ErrNotFound if
	// the job is not currently failing.
	GetJobLog(ctx context.Context, jobID uuid.UUID) (*JobLog, error)

	// DeleteJobLog removes the failure log after a successful run.
	DeleteJobLog(ctx context.Context, tx DBTransaction, jobID uuid.UUID) error

	// ListFailingJobs returns the descriptor+log projection ordered by job
	// id for stable pagination.
	ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]FailedJobView, error)

	// ClaimJobReplay conditionally sets replaying=true so two callers
	// cannot double-execute the same job. Returns ErrConflict if another
	// replay is in flight.
	ClaimJobReplay(ctx context.Context, jobID uuid.UUID) error

	// ReleaseJobReplay clears the replaying flag.
	ReleaseJobReplay(ctx context.Context, jobID uuid.UUID) error

	// CountFailingJobs returns the number of job logs across all tenants.
	CountFailingJobs(ctx context.Context) (int64, error)
}
