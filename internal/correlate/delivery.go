package correlate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

// FlowResumer is the process-continuation collaborator. It resumes the
// waiting flow node with the delivered payload.
type FlowResumer interface {
	ResumeFlowNode(ctx context.Context, flowNodeInstanceID int64, payload json.RawMessage) error
}

// Store combines the transaction boundary with the event repositories the
// coordinator and sweeper need.
type Store interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	store.EventStore
}

// DeliveryError reports that the continuation collaborator failed during
// resume. Both sides of the couple have been unlocked so a future sweep
// may retry.
type DeliveryError struct {
	WaitingEventID    int64
	MessageInstanceID int64
	Cause             error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of message %d to waiting event %d failed: %v",
		e.MessageInstanceID, e.WaitingEventID, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Coordinator locks matched pairs, hands them to the process-continuation
// collaborator and commits or releases depending on the outcome. The claim
// step is the sole mandatory serialization point between concurrent sweeps.
type Coordinator struct {
	store   Store
	resumer FlowResumer
	logger  *slog.Logger
}

func NewCoordinator(s Store, resumer FlowResumer, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: s, resumer: resumer, logger: logger}
}

// Deliver consumes one couple with at-most-once semantics:
//
//  1. Both sides are claimed with conditional updates inside one
//     transaction; if either claim affects zero rows another worker won the
//     race and store.ErrConflict is returned with no side effects.
//  2. The waiting flow node is resumed with the message payload.
//  3. On success both sides are marked consumed in one transaction; on
//     failure both locks are released and a DeliveryError is returned.
func (c *Coordinator) Deliver(ctx context.Context, w store.WaitingEvent, m store.MessageInstance) error {
	if err := c.claim(ctx, w.ID, m.ID); err != nil {
		return err
	}

	if err := c.resumer.ResumeFlowNode(ctx, w.FlowNodeInstanceID, m.Payload); err != nil {
		if relErr := c.release(ctx, w.ID, m.ID); relErr != nil {
			return fmt.Errorf("failed to release claims after resume error %v: %w", err, relErr)
		}
		return &DeliveryError{WaitingEventID: w.ID, MessageInstanceID: m.ID, Cause: err}
	}

	couple := store.EventCouple{
		WaitingEventID:    w.ID,
		WaitingEventKind:  w.Kind,
		MessageInstanceID: m.ID,
	}
	if err := c.commit(ctx, couple); err != nil {
		// Release claims made in this operation before propagating, so a
		// storage error cannot strand locked rows.
		if relErr := c.release(ctx, w.ID, m.ID); relErr != nil {
			c.logger.Error("failed to release claims after commit error",
				"waiting_event_id", w.ID, "message_instance_id", m.ID, "error", relErr)
		}
		return err
	}

	return nil
}

func (c *Coordinator) claim(ctx context.Context, waitingEventID, messageInstanceID int64) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	// Claiming both sides in one transaction means a partial claim is never
	// observably persisted.
	if err := c.store.ClaimWaitingEvent(ctx, tx, waitingEventID); err != nil {
		return err
	}
	if err := c.store.ClaimMessageInstance(ctx, tx, messageInstanceID); err != nil {
		return err
	}

	return tx.Commit()
}

func (c *Coordinator) commit(ctx context.Context, couple store.EventCouple) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.store.CompleteDelivery(ctx, tx, couple); err != nil {
		return err
	}

	return tx.Commit()
}

func (c *Coordinator) release(ctx context.Context, waitingEventID, messageInstanceID int64) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin release transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.store.ReleaseWaitingEvent(ctx, tx, waitingEventID); err != nil {
		return err
	}
	if err := c.store.ReleaseMessageInstance(ctx, tx, messageInstanceID); err != nil {
		return err
	}

	return tx.Commit()
}

// DeliverSignal fans a thrown signal out to every active waiting signal
// event in the tenant. Deliveries are independent: a failure on one waiter
// does not block the others, and each waiter is consumed at most once via
// the same claim discipline.
func (c *Coordinator) DeliverSignal(ctx context.Context, tenantID uuid.UUID, signalName string, payload json.RawMessage) (int, error) {
	waits, err := c.store.ListSignalWaits(ctx, tenantID, signalName)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, w := range ComputeSignalMatches(waits, signalName) {
		if err := c.deliverToWait(ctx, w, payload); err != nil {
			if err == store.ErrConflict {
				continue
			}
			c.logger.Warn("signal delivery failed",
				"signal", signalName, "waiting_event_id", w.ID, "error", err)
			continue
		}
		delivered++
	}

	return delivered, nil
}

// ThrowError resolves the closest applicable error catch event and resumes
// it. A nil return with no error means no catch exists at this scope;
// propagation to an enclosing scope is the caller's concern.
func (c *Coordinator) ThrowError(ctx context.Context, tenantID uuid.UUID, errorCode string, relatedActivityInstanceID int64) (*store.WaitingEvent, error) {
	waits, err := c.store.ListErrorWaits(ctx, tenantID, relatedActivityInstanceID)
	if err != nil {
		return nil, err
	}

	match := FindErrorMatch(waits, errorCode, relatedActivityInstanceID)
	if match == nil {
		return nil, nil
	}

	payload, _ := json.Marshal(map[string]string{"errorCode": errorCode})
	if err := c.deliverToWait(ctx, *match, payload); err != nil {
		return nil, err
	}

	return match, nil
}

// deliverToWait consumes a single waiting event with no message instance
// counterpart (signal and error triggers).
func (c *Coordinator) deliverToWait(ctx context.Context, w store.WaitingEvent, payload json.RawMessage) error {
	if err := c.store.ClaimWaitingEvent(ctx, nil, w.ID); err != nil {
		return err
	}

	if err := c.resumer.ResumeFlowNode(ctx, w.FlowNodeInstanceID, payload); err != nil {
		if relErr := c.store.ReleaseWaitingEvent(ctx, nil, w.ID); relErr != nil {
			return fmt.Errorf("failed to release claim after resume error %v: %w", err, relErr)
		}
		return &DeliveryError{WaitingEventID: w.ID, Cause: err}
	}

	if err := c.store.ConsumeWaitingEvent(ctx, nil, w.ID); err != nil {
		return err
	}

	return nil
}

// RegisterWait records a new waiting event for a catching event node.
func (c *Coordinator) RegisterWait(ctx context.Context, w *store.WaitingEvent) (int64, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return c.store.CreateWaitingEvent(ctx, nil, w)
}

// ThrowMessage records a thrown message instance for later matching.
func (c *Coordinator) ThrowMessage(ctx context.Context, m *store.MessageInstance) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return c.store.CreateMessageInstance(ctx, nil, m)
}

// CancelWait deactivates a waiting event whose owning process instance was
// cancelled before a match occurred.
func (c *Coordinator) CancelWait(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return c.store.DeactivateWaitingEvent(ctx, nil, tenantID, id)
}
