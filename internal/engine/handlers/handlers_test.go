package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

// Mock transaction
type mockTx struct{}

func (m *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (m *mockTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (m *mockTx) Commit() error { return nil }

func (m *mockTx) Rollback() error { return nil }

// Mock Store
type mockStore struct {
	beginTxErr error
	pingErr    error

	// Tenant hooks
	createTenantErr error
	tenantByHash    *store.Tenant
	tenantByHashErr error

	// Event hooks
	createWaitErr  error
	createWaitResp int64

	// Listing hooks
	tenantWaits        []store.WaitingEvent
	tenantWaitsErr     error
	pendingMessages    []store.MessageInstance
	pendingMessagesErr error

	// Job hooks
	createJobErr error
	createdJob   *store.JobDescriptor
}

func (m *mockStore) BeginTx(ctx context.Context) (store.Tx, error) {
	if m.beginTxErr != nil {
		return nil, m.beginTxErr
	}
	return &mockTx{}, nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStore) CreateTenant(ctx context.Context, tenant *store.Tenant, hashedKey string) error {
	return m.createTenantErr
}

func (m *mockStore) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	if m.tenantByHashErr != nil {
		return nil, m.tenantByHashErr
	}
	if m.tenantByHash != nil {
		return m.tenantByHash, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) CreateWaitingEvent(ctx context.Context, tx store.DBTransaction, w *store.WaitingEvent) (int64, error) {
	return m.createWaitResp, m.createWaitErr
}

func (m *mockStore) GetWaitingEvent(ctx context.Context, tenantID uuid.UUID, id int64) (*store.WaitingEvent, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) DeactivateWaitingEvent(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, id int64) error {
	return nil
}

func (m *mockStore) DeactivateWaitsForFlowNode(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, flowNodeInstanceID int64) (int64, error) {
	return 0, nil
}

func (m *mockStore) CreateMessageInstance(ctx context.Context, tx store.DBTransaction, msg *store.MessageInstance) (int64, error) {
	return 0, nil
}

func (m *mockStore) ListPendingMessages(ctx context.Context, limit int) ([]store.MessageInstance, error) {
	return nil, nil
}

func (m *mockStore) ListActiveMessageWaits(ctx context.Context, messageNames []string) ([]store.WaitingEvent, error) {
	return nil, nil
}

func (m *mockStore) ListSignalWaits(ctx context.Context, tenantID uuid.UUID, signalName string) ([]store.WaitingEvent, error) {
	return nil, nil
}

func (m *mockStore) ListErrorWaits(ctx context.Context, tenantID uuid.UUID, relatedActivityInstanceID int64) ([]store.WaitingEvent, error) {
	return nil, nil
}

func (m *mockStore) ListTenantWaits(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.WaitingEvent, error) {
	return m.tenantWaits, m.tenantWaitsErr
}

func (m *mockStore) ListTenantPendingMessages(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.MessageInstance, error) {
	return m.pendingMessages, m.pendingMessagesErr
}

func (m *mockStore) ClaimWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	return nil
}

func (m *mockStore) ClaimMessageInstance(ctx context.Context, tx store.DBTransaction, id int64) error {
	return nil
}

func (m *mockStore) ReleaseWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	return nil
}

func (m *mockStore) ReleaseMessageInstance(ctx context.Context, tx store.DBTransaction, id int64) error {
	return nil
}

func (m *mockStore) ConsumeWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	return nil
}

func (m *mockStore) CompleteDelivery(ctx context.Context, tx store.DBTransaction, couple store.EventCouple) error {
	return nil
}

func (m *mockStore) DeleteExpiredMessages(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) CountPendingMessages(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockStore) CreateJobDescriptor(ctx context.Context, tx store.DBTransaction, j *store.JobDescriptor) error {
	if m.createJobErr != nil {
		return m.createJobErr
	}
	m.createdJob = j
	return nil
}

func (m *mockStore) GetJobDescriptorByID(ctx context.Context, tenantID, id uuid.UUID) (*store.JobDescriptor, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) ListRecurringJobDescriptors(ctx context.Context) ([]store.JobDescriptor, error) {
	return nil, nil
}

func (m *mockStore) DeleteJobDescriptor(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	return nil
}

func (m *mockStore) RecordJobFailure(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID, message string, at time.Time) error {
	return nil
}

func (m *mockStore) GetJobLog(ctx context.Context, jobID uuid.UUID) (*store.JobLog, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) DeleteJobLog(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID) error {
	return nil
}

func (m *mockStore) ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.FailedJobView, error) {
	return nil, nil
}

func (m *mockStore) ClaimJobReplay(ctx context.Context, jobID uuid.UUID) error {
	return nil
}

func (m *mockStore) ReleaseJobReplay(ctx context.Context, jobID uuid.UUID) error {
	return nil
}

func (m *mockStore) CountFailingJobs(ctx context.Context) (int64, error) {
	return 0, nil
}

// Mock Correlator
type mockCorrelator struct {
	registerWaitResp int64
	registerWaitErr  error
	registeredWait   *store.WaitingEvent

	throwMessageResp int64
	throwMessageErr  error
	thrownMessage    *store.MessageInstance

	deliverSignalResp int
	deliverSignalErr  error

	throwErrorResp *store.WaitingEvent
	throwErrorErr  error

	cancelWaitErr error
}

func (m *mockCorrelator) RegisterWait(ctx context.Context, w *store.WaitingEvent) (int64, error) {
	m.registeredWait = w
	return m.registerWaitResp, m.registerWaitErr
}

func (m *mockCorrelator) ThrowMessage(ctx context.Context, msg *store.MessageInstance) (int64, error) {
	m.thrownMessage = msg
	return m.throwMessageResp, m.throwMessageErr
}

func (m *mockCorrelator) DeliverSignal(ctx context.Context, tenantID uuid.UUID, signalName string, payload json.RawMessage) (int, error) {
	return m.deliverSignalResp, m.deliverSignalErr
}

func (m *mockCorrelator) ThrowError(ctx context.Context, tenantID uuid.UUID, errorCode string, relatedActivityInstanceID int64) (*store.WaitingEvent, error) {
	return m.throwErrorResp, m.throwErrorErr
}

func (m *mockCorrelator) CancelWait(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return m.cancelWaitErr
}

// Mock RetryCoordinator
type mockRetry struct {
	listResp []store.FailedJobView
	listErr  error

	replayErr       error
	replayOverrides json.RawMessage
}

func (m *mockRetry) ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.FailedJobView, error) {
	return m.listResp, m.listErr
}

func (m *mockRetry) Replay(ctx context.Context, tenantID, jobID uuid.UUID, overrides json.RawMessage) error {
	m.replayOverrides = overrides
	return m.replayErr
}

// Mock Scheduler
type mockScheduler struct {
	scheduleErr error
	scheduled   []*store.JobDescriptor
}

func (m *mockScheduler) Schedule(job *store.JobDescriptor) error {
	if m.scheduleErr != nil {
		return m.scheduleErr
	}
	m.scheduled = append(m.scheduled, job)
	return nil
}

// kickCounter tracks sweep kicks requested by handlers.
type kickCounter struct {
	count int
}

func (k *kickCounter) kick() {
	k.count++
}
