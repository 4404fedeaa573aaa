package correlate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flowplane/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// SweeperConfig holds configuration for the correlation sweeper.
type SweeperConfig struct {
	PollInterval time.Duration // Base interval between sweeps (default: 1s)
	MaxBackoff   time.Duration // Maximum backoff when nothing matches (default: 30s)
	BatchSize    int           // Pending messages examined per sweep (default: 100)
	// MessageRetention bounds how long an unmatched message instance stays
	// pending before housekeeping removes it (default: 30 days).
	MessageRetention time.Duration
	// HousekeepingInterval controls how often expired messages are purged
	// (default: 1h).
	HousekeepingInterval time.Duration
}

// Sweeper runs the periodic matching loop: read both stores, compute
// couples, deliver them. Multiple sweepers may run concurrently against the
// same database; the claim step resolves all races.
type Sweeper struct {
	store       Store
	coordinator *Coordinator
	config      SweeperConfig
	logger      *slog.Logger

	kick chan struct{}
	done chan struct{}

	delivered metric.Int64Counter
	conflicts metric.Int64Counter
}

func NewSweeper(s Store, coordinator *Coordinator, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MessageRetention <= 0 {
		config.MessageRetention = 30 * 24 * time.Hour
	}
	if config.HousekeepingInterval <= 0 {
		config.HousekeepingInterval = 1 * time.Hour
	}

	meter := otel.Meter("flowplane-sweeper")
	delivered, _ := meter.Int64Counter("flowplane.couples.delivered",
		metric.WithDescription("Couples successfully delivered"))
	conflicts, _ := meter.Int64Counter("flowplane.couples.conflicts",
		metric.WithDescription("Claims lost to a concurrent sweep"))

	return &Sweeper{
		store:       s,
		coordinator: coordinator,
		config:      config,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		delivered:   delivered,
		conflicts:   conflicts,
	}
}

// Kick triggers an immediate sweep without waiting for the next tick.
// Called after a message or wait is registered.
func (s *Sweeper) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
		// A sweep is already pending.
	}
}

// Run starts the sweep loop. It blocks until the context is cancelled.
// The backoff grows while sweeps find nothing and resets on delivery.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper starting",
		"poll_interval", s.config.PollInterval, "batch_size", s.config.BatchSize)

	currentBackoff := s.config.PollInterval
	housekeeping := time.NewTicker(s.config.HousekeepingInterval)
	defer housekeeping.Stop()

	s.Kick()

	for {
		select {
		case <-ctx.Done():
			close(s.done)
			return ctx.Err()

		case <-housekeeping.C:
			s.purgeExpired(ctx)

		case <-time.After(currentBackoff):
			s.Kick()

		case <-s.kick:
			delivered, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "error", err)
				continue
			}

			if delivered == 0 {
				currentBackoff = currentBackoff * 2
				if currentBackoff > s.config.MaxBackoff {
					currentBackoff = s.config.MaxBackoff
				}
				continue
			}

			// Work found, reset backoff and re-poll immediately in case
			// more couples became matchable.
			currentBackoff = s.config.PollInterval
			s.Kick()
		}
	}
}

// Done returns a channel that is closed when the sweeper has fully stopped.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

// SweepOnce performs a single matching pass and returns how many couples
// were delivered. Conflicts are handled locally and never surface: the
// winning sweep delivers, the losing one moves on.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	messages, err := s.store.ListPendingMessages(ctx, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		if !seen[m.MessageName] {
			seen[m.MessageName] = true
			names = append(names, m.MessageName)
		}
	}

	waits, err := s.store.ListActiveMessageWaits(ctx, names)
	if err != nil {
		return 0, err
	}

	couples := ComputeCouples(messages, waits)
	if len(couples) == 0 {
		return 0, nil
	}

	waitByID := make(map[int64]store.WaitingEvent, len(waits))
	for _, w := range waits {
		waitByID[w.ID] = w
	}
	msgByID := make(map[int64]store.MessageInstance, len(messages))
	for _, m := range messages {
		msgByID[m.ID] = m
	}

	delivered := 0
	for _, couple := range couples {
		w := waitByID[couple.WaitingEventID]
		m := msgByID[couple.MessageInstanceID]

		err := s.coordinator.Deliver(ctx, w, m)
		switch {
		case err == nil:
			delivered++
			s.delivered.Add(ctx, 1)

		case errors.Is(err, store.ErrConflict):
			// Another sweep claimed one side first. Accepted non-determinism.
			s.conflicts.Add(ctx, 1)

		default:
			var dErr *DeliveryError
			if errors.As(err, &dErr) {
				// Both sides are unlocked again; the next sweep retries.
				s.logger.Warn("delivery failed, couple released",
					"waiting_event_id", couple.WaitingEventID,
					"message_instance_id", couple.MessageInstanceID,
					"error", dErr.Cause)
				continue
			}
			return delivered, err
		}
	}

	s.logger.Info("sweep complete", "couples", len(couples), "delivered", delivered)
	return delivered, nil
}

func (s *Sweeper) purgeExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.MessageRetention)
	removed, err := s.store.DeleteExpiredMessages(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to purge expired messages", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("purged expired messages", "count", removed, "cutoff", cutoff)
	}
}
