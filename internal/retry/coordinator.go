// Package retry implements the job failure and replay subsystem: it tracks
// repeated failures of scheduled work in job logs and re-executes failing
// jobs on demand.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

// Invoker is the scheduler collaborator that re-invokes a job's executable
// unit. The job body is arbitrary user code; callers bound it with a
// timeout.
type Invoker interface {
	Invoke(ctx context.Context, job *store.JobDescriptor, params json.RawMessage) error
}

// Store combines the transaction boundary with the job ledger.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	store.JobStore
}

// JobExecutionError reports that a job body raised during a scheduled run
// or replay. It has already been recorded in the job log and never crashes
// the caller.
type JobExecutionError struct {
	JobID uuid.UUID
	Cause error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s execution failed: %v", e.JobID, e.Cause)
}

func (e *JobExecutionError) Unwrap() error { return e.Cause }

// Coordinator governs re-execution of failed jobs. Job descriptors move
// Idle -> Failing on first recorded failure and back to Idle when a run
// succeeds; there is no persisted Running state.
type Coordinator struct {
	store         Store
	invoker       Invoker
	invokeTimeout time.Duration
	logger        *slog.Logger
}

func NewCoordinator(s Store, invoker Invoker, invokeTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if invokeTimeout <= 0 {
		invokeTimeout = 5 * time.Minute
	}
	return &Coordinator{store: s, invoker: invoker, invokeTimeout: invokeTimeout, logger: logger}
}

// RecordFailure creates the job log on first failure, otherwise increments
// the failure count and replaces the stored error summary. The job stays
// scheduled for its next regular trigger independent of this call.
func (c *Coordinator) RecordFailure(ctx context.Context, jobID uuid.UUID, errorSummary string) error {
	return c.store.RecordJobFailure(ctx, nil, jobID, errorSummary, time.Now().UTC())
}

// RecordSuccess clears the failure log after a successful run.
func (c *Coordinator) RecordSuccess(ctx context.Context, jobID uuid.UUID) error {
	return c.store.DeleteJobLog(ctx, nil, jobID)
}

// ListFailingJobs returns the failing-job projection for a tenant, ordered
// by job id for stable pagination.
func (c *Coordinator) ListFailingJobs(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.FailedJobView, error) {
	return c.store.ListFailingJobs(ctx, tenantID, limit, offset)
}

// Replay re-invokes a failing job synchronously with the override
// parameters merged over the descriptor's stored parameters.
//
// Two concurrent replays of the same job cannot double-execute: the second
// caller loses the conditional replaying claim and gets store.ErrConflict.
// On success the job log is deleted, and for a fire-once job the descriptor
// too. On failure the existing log is incremented, never duplicated.
func (c *Coordinator) Replay(ctx context.Context, tenantID, jobID uuid.UUID, overrides json.RawMessage) error {
	job, err := c.store.GetJobDescriptorByID(ctx, tenantID, jobID)
	if err != nil {
		return err
	}

	if err := c.store.ClaimJobReplay(ctx, jobID); err != nil {
		return err
	}
	defer func() {
		// No-op when the success path already deleted the descriptor.
		if err := c.store.ReleaseJobReplay(context.WithoutCancel(ctx), jobID); err != nil {
			c.logger.Error("failed to release replay claim", "job_id", jobID, "error", err)
		}
	}()

	params := mergeParameters(job.Parameters, overrides)

	// The job body can hang; a timeout converts that into the failure path.
	invokeCtx, cancel := context.WithTimeout(ctx, c.invokeTimeout)
	defer cancel()

	if err := c.invoker.Invoke(invokeCtx, job, params); err != nil {
		if recErr := c.RecordFailure(ctx, jobID, err.Error()); recErr != nil {
			return fmt.Errorf("failed to record replay failure %v: %w", err, recErr)
		}
		return &JobExecutionError{JobID: jobID, Cause: err}
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin replay cleanup transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.store.DeleteJobLog(ctx, tx, jobID); err != nil {
		return err
	}
	if !job.Recurring() {
		if err := c.store.DeleteJobDescriptor(ctx, tx, jobID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// mergeParameters merges override keys over the stored parameters. Values
// that are not JSON objects fall back to the override when present.
func mergeParameters(base, overrides json.RawMessage) json.RawMessage {
	if len(overrides) == 0 {
		return base
	}
	if len(base) == 0 {
		return overrides
	}

	var baseMap, overrideMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return overrides
	}
	if err := json.Unmarshal(overrides, &overrideMap); err != nil {
		return overrides
	}

	for k, v := range overrideMap {
		baseMap[k] = v
	}

	merged, err := json.Marshal(baseMap)
	if err != nil {
		return overrides
	}
	return merged
}
