package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

// CreateJobDescriptor inserts a new job descriptor row.
func (s *Store) CreateJobDescriptor(ctx context.Context, tx store.DBTransaction, j *store.JobDescriptor) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO job_descriptors (id, tenant_id, name, description, parameters, cron_spec, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := executor.ExecContext(ctx, query,
		j.ID,
		j.TenantID,
		j.Name,
		j.Description,
		j.Parameters,
		j.CronSpec,
		j.CreatedAt,
	)
	return err
}

func (s *Store) GetJobDescriptorByID(ctx context.Context, tenantID, id uuid.UUID) (*store.JobDescriptor, error) {
	query := `
		SELECT id, tenant_id, name, description, parameters, cron_spec, replaying, created_at
		FROM job_descriptors
		WHERE id = $1 AND tenant_id = $2
	`

	var j store.JobDescriptor
	err := s.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&j.ID, &j.TenantID, &j.Name, &j.Description,
		&j.Parameters, &j.CronSpec, &j.Replaying, &j.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return &j, nil
}

// ListRecurringJobDescriptors returns every descriptor with a cron trigger.
// Triggers live only in memory, so the engine reloads them from here after a
// restart. Fire-once descriptors are excluded: scheduling one runs it.
func (s *Store) ListRecurringJobDescriptors(ctx context.Context) ([]store.JobDescriptor, error) {
	query := `
		SELECT id, tenant_id, name, description, parameters, cron_spec, replaying, created_at
		FROM job_descriptors
		WHERE cron_spec <> ''
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring job descriptors: %w", err)
	}
	defer rows.Close()

	var jobs []store.JobDescriptor
	for rows.Next() {
		var j store.JobDescriptor
		if err := rows.Scan(
			&j.ID, &j.TenantID, &j.Name, &j.Description,
			&j.Parameters, &j.CronSpec, &j.Replaying, &j.CreatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (s *Store) DeleteJobDescriptor(ctx context.Context, tx store.DBTransaction, id uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM job_descriptors WHERE id = $1", id)
	return err
}

// RecordJobFailure upserts the failure log: first failure creates the row
// with a count of one, each later failure increments the count and replaces
// the stored message. Only the latest message is retained.
func (s *Store) RecordJobFailure(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID, message string, at time.Time) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO job_logs (job_id, number_of_failures, last_message, last_executed_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE
		SET number_of_failures = job_logs.number_of_failures + 1,
		    last_message = EXCLUDED.last_message,
		    last_executed_at = EXCLUDED.last_executed_at
	`

	_, err := executor.ExecContext(ctx, query, jobID, message, at)
	if err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}
	return nil
}

func (s *Store) GetJobLog(ctx context.Context, jobID uuid.UUID) (*store.JobLog, error) {
	query := `
		SELECT job_id, number_of_failures, last_message, last_executed_at
		FROM job_logs
		WHERE job_id = $1
	`

	var l store.JobLog
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&l.JobID, &l.NumberOfFailures, &l.LastMessage, &l.LastExecutedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return &l, nil
}

func (s *Store) DeleteJobLog(ctx context.Context, tx store.DBTransaction, jobID uuid.UUID) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, "DELETE FROM job_logs WHERE job_id = $1", jobID)
	return err
}

// ListFailingJobs joins descriptors with their logs, ordered by job id for
// stable pagination.
func (s *Store) ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.FailedJobView, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT j.id, j.name, j.description, l.number_of_failures, l.last_message, l.last_executed_at
		FROM job_descriptors j
		JOIN job_logs l ON l.job_id = j.id
		WHERE j.tenant_id = $1
		ORDER BY j.id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list failing jobs: %w", err)
	}
	defer rows.Close()

	var views []store.FailedJobView
	for rows.Next() {
		var v store.FailedJobView
		if err := rows.Scan(
			&v.JobID, &v.Name, &v.Description,
			&v.NumberOfFailures, &v.LastMessage, &v.LastExecutedAt,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return views, nil
}

// ClaimJobReplay follows the same conditional-update discipline as the
// event claim: two concurrent replays of one job cannot both win.
func (s *Store) ClaimJobReplay(ctx context.Context, jobID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_descriptors
		SET replaying = TRUE
		WHERE id = $1 AND NOT replaying
	`, jobID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) ReleaseJobReplay(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE job_descriptors SET replaying = FALSE WHERE id = $1", jobID)
	return err
}

func (s *Store) CountFailingJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_logs").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
