package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"flowplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestRecordJobFailure_Upsert(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	jobID := uuid.New()
	now := time.Now()

	mock.ExpectExec(`INSERT INTO job_logs \(job_id, number_of_failures, last_message, last_executed_at\)\s+VALUES \(\$1, 1, \$2, \$3\)\s+ON CONFLICT \(job_id\) DO UPDATE`).
		WithArgs(jobID, "connection refused", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store_.RecordJobFailure(context.Background(), nil, jobID, "connection refused", now); err != nil {
		t.Fatalf("RecordJobFailure failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobLog_NotFound(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	jobID := uuid.New()

	mock.ExpectQuery(`SELECT job_id, number_of_failures, last_message, last_executed_at\s+FROM job_logs`).
		WithArgs(jobID).
		WillReturnError(sql.ErrNoRows)

	_, err := store_.GetJobLog(context.Background(), jobID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFailingJobs_Success(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	tenantID := uuid.New()
	jobID1 := uuid.New()
	jobID2 := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "number_of_failures", "last_message", "last_executed_at",
	}).
		AddRow(jobID1, "nightly-report", "", 3, "timeout", now).
		AddRow(jobID2, "invoice-sync", "sync invoices", 1, "bad gateway", now)

	mock.ExpectQuery(`SELECT j\.id, j\.name, j\.description, l\.number_of_failures, l\.last_message, l\.last_executed_at\s+FROM job_descriptors j\s+JOIN job_logs l ON l\.job_id = j\.id`).
		WithArgs(tenantID, 20, 0).
		WillReturnRows(rows)

	views, err := store_.ListFailingJobs(context.Background(), tenantID, 20, 0)
	if err != nil {
		t.Fatalf("ListFailingJobs failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d views, want 2", len(views))
	}
	if views[0].JobID != jobID1 {
		t.Errorf("got first job %v, want %v", views[0].JobID, jobID1)
	}
	if views[0].NumberOfFailures != 3 {
		t.Errorf("got %d failures, want 3", views[0].NumberOfFailures)
	}
}

func TestListRecurringJobDescriptors_Success(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	jobID1 := uuid.New()
	jobID2 := uuid.New()
	tenantA := uuid.New()
	tenantB := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "description", "parameters", "cron_spec", "replaying", "created_at",
	}).
		AddRow(jobID1, tenantA, "nightly-report", "", []byte(`{}`), "0 3 * * *", false, now).
		AddRow(jobID2, tenantB, "invoice-sync", "", []byte(`{}`), "*/5 * * * *", false, now)

	mock.ExpectQuery(`SELECT id, tenant_id, name, description, parameters, cron_spec, replaying, created_at\s+FROM job_descriptors\s+WHERE cron_spec <> ''\s+ORDER BY created_at ASC`).
		WillReturnRows(rows)

	jobs, err := store_.ListRecurringJobDescriptors(context.Background())
	if err != nil {
		t.Fatalf("ListRecurringJobDescriptors failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(jobs))
	}
	if jobs[0].TenantID != tenantA || jobs[1].TenantID != tenantB {
		t.Error("listing should span tenants")
	}
	if !jobs[0].Recurring() {
		t.Error("listed job should be recurring")
	}
}

func TestClaimJobReplay_Success(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	jobID := uuid.New()

	mock.ExpectExec(`UPDATE job_descriptors\s+SET replaying = TRUE\s+WHERE id = \$1 AND NOT replaying`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store_.ClaimJobReplay(context.Background(), jobID); err != nil {
		t.Fatalf("ClaimJobReplay failed: %v", err)
	}
}

func TestClaimJobReplay_AlreadyReplaying(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	jobID := uuid.New()

	mock.ExpectExec(`UPDATE job_descriptors`).
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store_.ClaimJobReplay(context.Background(), jobID)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestGetJobDescriptorByID_Success(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	tenantID := uuid.New()
	jobID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "description", "parameters", "cron_spec", "replaying", "created_at",
	}).AddRow(jobID, tenantID, "nightly-report", "", []byte(`{"day":"mon"}`), "0 3 * * *", false, now)

	mock.ExpectQuery(`SELECT id, tenant_id, name, description, parameters, cron_spec, replaying, created_at\s+FROM job_descriptors`).
		WithArgs(jobID, tenantID).
		WillReturnRows(rows)

	j, err := store_.GetJobDescriptorByID(context.Background(), tenantID, jobID)
	if err != nil {
		t.Fatalf("GetJobDescriptorByID failed: %v", err)
	}
	if j.Name != "nightly-report" {
		t.Errorf("got name %q, want nightly-report", j.Name)
	}
	if !j.Recurring() {
		t.Error("job with cron spec should be recurring")
	}
}
