package correlate

import (
	"context"
	"testing"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

func TestSweepOnce_DeliversMatchedCouples(t *testing.T) {
	s := newFakeStore()
	resumer := &fakeResumer{}
	coord := NewCoordinator(s, resumer, testLogger())
	sweeper := NewSweeper(s, coord, SweeperConfig{}, testLogger())
	tenantID := uuid.New()
	ctx := context.Background()

	key := store.CorrelationKey{strPtr("order-9"), nil, nil, nil, nil}
	if _, err := s.CreateWaitingEvent(ctx, nil, &store.WaitingEvent{
		TenantID:           tenantID,
		Kind:               store.TriggerMessage,
		MessageName:        "payment-received",
		Correlation:        key,
		FlowNodeInstanceID: 42,
	}); err != nil {
		t.Fatalf("seed wait: %v", err)
	}
	if _, err := s.CreateMessageInstance(ctx, nil, &store.MessageInstance{
		TenantID:    tenantID,
		MessageName: "payment-received",
		Correlation: key,
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	delivered, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if delivered != 1 {
		t.Errorf("got %d delivered, want 1", delivered)
	}

	// Nothing left to sweep.
	delivered, err = sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second SweepOnce failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("got %d delivered on empty sweep, want 0", delivered)
	}
}

func TestSweepOnce_CorrelationMismatchLeavesMessagePending(t *testing.T) {
	s := newFakeStore()
	coord := NewCoordinator(s, &fakeResumer{}, testLogger())
	sweeper := NewSweeper(s, coord, SweeperConfig{}, testLogger())
	tenantID := uuid.New()
	ctx := context.Background()

	if _, err := s.CreateWaitingEvent(ctx, nil, &store.WaitingEvent{
		TenantID:    tenantID,
		Kind:        store.TriggerMessage,
		MessageName: "payment-received",
		Correlation: store.CorrelationKey{strPtr("order-9"), nil, nil, nil, nil},
	}); err != nil {
		t.Fatalf("seed wait: %v", err)
	}
	mID, err := s.CreateMessageInstance(ctx, nil, &store.MessageInstance{
		TenantID:    tenantID,
		MessageName: "payment-received",
		Correlation: store.CorrelationKey{strPtr("order-10"), nil, nil, nil, nil},
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	delivered, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("got %d delivered, want 0", delivered)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[mID].Handled || s.messages[mID].Locked {
		t.Error("unmatched message must stay pending and unlocked")
	}
}

func TestSweepOnce_ResumeFailureDoesNotAbortSweep(t *testing.T) {
	s := newFakeStore()
	resumer := &fakeResumer{err: context.DeadlineExceeded}
	coord := NewCoordinator(s, resumer, testLogger())
	sweeper := NewSweeper(s, coord, SweeperConfig{}, testLogger())
	tenantID := uuid.New()
	ctx := context.Background()

	if _, err := s.CreateWaitingEvent(ctx, nil, &store.WaitingEvent{
		TenantID:    tenantID,
		Kind:        store.TriggerMessage,
		MessageName: "payment-received",
	}); err != nil {
		t.Fatalf("seed wait: %v", err)
	}
	if _, err := s.CreateMessageInstance(ctx, nil, &store.MessageInstance{
		TenantID:    tenantID,
		MessageName: "payment-received",
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	delivered, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce should swallow delivery errors, got: %v", err)
	}
	if delivered != 0 {
		t.Errorf("got %d delivered, want 0", delivered)
	}
}

func TestSweeperRun_StopsOnContextCancel(t *testing.T) {
	s := newFakeStore()
	coord := NewCoordinator(s, &fakeResumer{}, testLogger())
	sweeper := NewSweeper(s, coord, SweeperConfig{PollInterval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- sweeper.Run(ctx)
	}()

	// Let at least one sweep happen, then stop.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	select {
	case <-sweeper.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestSweeperKick_NonBlocking(t *testing.T) {
	s := newFakeStore()
	coord := NewCoordinator(s, &fakeResumer{}, testLogger())
	sweeper := NewSweeper(s, coord, SweeperConfig{}, testLogger())

	// Repeated kicks without a running loop must never block.
	for i := 0; i < 10; i++ {
		sweeper.Kick()
	}
}
