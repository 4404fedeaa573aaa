package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// HandlerFunc is a registered job body. Parameters are the descriptor's
// stored parameters, possibly with replay overrides merged in.
type HandlerFunc func(ctx context.Context, params json.RawMessage) error

// Reporter receives execution outcomes. Implemented by the Coordinator.
type Reporter interface {
	RecordFailure(ctx context.Context, jobID uuid.UUID, errorSummary string) error
	RecordSuccess(ctx context.Context, jobID uuid.UUID) error
}

// Scheduler owns job execution: it maps descriptor names to registered
// handlers, drives recurring triggers via cron, and catches every job
// exception at the boundary so a failing body can never crash the
// scheduling thread.
type Scheduler struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	entries  map[uuid.UUID]cron.EntryID

	cron          *cron.Cron
	reporter      Reporter
	invokeTimeout time.Duration
	logger        *slog.Logger
}

func NewScheduler(invokeTimeout time.Duration, logger *slog.Logger) *Scheduler {
	if invokeTimeout <= 0 {
		invokeTimeout = 5 * time.Minute
	}
	return &Scheduler{
		handlers:      make(map[string]HandlerFunc),
		entries:       make(map[uuid.UUID]cron.EntryID),
		cron:          cron.New(),
		invokeTimeout: invokeTimeout,
		logger:        logger,
	}
}

// SetReporter wires the outcome sink. Must be called before Start.
func (s *Scheduler) SetReporter(r Reporter) {
	s.reporter = r
}

// Register adds a named job handler. Descriptors reference handlers by
// name.
func (s *Scheduler) Register(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = fn
}

// Invoke runs the job body synchronously. A panic in the body is converted
// into an error here, at the boundary, and never propagates.
func (s *Scheduler) Invoke(ctx context.Context, job *store.JobDescriptor, params json.RawMessage) (err error) {
	s.mu.RLock()
	fn, ok := s.handlers[job.Name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for job %q", job.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name, r)
		}
	}()

	return fn(ctx, params)
}

// Schedule arms the descriptor's trigger: cron entries for recurring jobs,
// a one-shot timer for fire-once jobs.
func (s *Scheduler) Schedule(job *store.JobDescriptor) error {
	if !job.Recurring() {
		go func() {
			s.runScheduled(job)
		}()
		return nil
	}

	entryID, err := s.cron.AddFunc(job.CronSpec, func() {
		s.runScheduled(job)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", job.CronSpec, job.ID, err)
	}

	s.mu.Lock()
	s.entries[job.ID] = entryID
	s.mu.Unlock()

	return nil
}

// DescriptorLister is the store surface needed to re-arm triggers at
// startup.
type DescriptorLister interface {
	ListRecurringJobDescriptors(ctx context.Context) ([]store.JobDescriptor, error)
}

// RearmRecurring re-schedules every persisted recurring descriptor. Called
// once at startup: cron entries live only in memory, so without this a
// restart would silently drop every recurring job. A descriptor with an
// invalid spec is logged and skipped so one bad row cannot block the rest.
func RearmRecurring(ctx context.Context, lister DescriptorLister, s *Scheduler, logger *slog.Logger) (int, error) {
	jobs, err := lister.ListRecurringJobDescriptors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring job descriptors: %w", err)
	}

	armed := 0
	for i := range jobs {
		job := jobs[i]
		if err := s.Schedule(&job); err != nil {
			logger.Warn("skipping job with invalid trigger", "job_id", job.ID, "name", job.Name, "error", err)
			continue
		}
		armed++
	}
	return armed, nil
}

// Unschedule removes a recurring trigger, e.g. when the descriptor is
// deleted after a successful fire-once replay.
func (s *Scheduler) Unschedule(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
}

// Start begins firing recurring triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the trigger loop and waits for running entries.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runScheduled executes one triggered run and reports the outcome. Only
// bookkeeping errors are logged here; they are retried implicitly on the
// next tick.
func (s *Scheduler) runScheduled(job *store.JobDescriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), s.invokeTimeout)
	defer cancel()

	err := s.Invoke(ctx, job, job.Parameters)
	if s.reporter == nil {
		return
	}

	if err != nil {
		s.logger.Warn("scheduled job failed", "job_id", job.ID, "name", job.Name, "error", err)
		if recErr := s.reporter.RecordFailure(ctx, job.ID, err.Error()); recErr != nil {
			s.logger.Error("failed to record job failure", "job_id", job.ID, "error", recErr)
		}
		return
	}

	if recErr := s.reporter.RecordSuccess(ctx, job.ID); recErr != nil {
		s.logger.Error("failed to clear job log", "job_id", job.ID, "error", recErr)
	}
}
