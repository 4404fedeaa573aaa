package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flowplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const waitingEventColumns = `id, tenant_id, kind, process_definition_id, process_name,
	flow_node_def_id, flow_node_name, parent_process_instance_id, root_process_instance_id,
	flow_node_instance_id, active, message_name,
	correlation_1, correlation_2, correlation_3, correlation_4, correlation_5,
	locked, progress, signal_name, error_code, related_activity_instance_id, created_at`

// CreateWaitingEvent inserts a new waiting event row and returns its id.
func (s *Store) CreateWaitingEvent(ctx context.Context, tx store.DBTransaction, w *store.WaitingEvent) (int64, error) {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO waiting_events (
			tenant_id, kind, process_definition_id, process_name,
			flow_node_def_id, flow_node_name, parent_process_instance_id,
			root_process_instance_id, flow_node_instance_id, active, message_name,
			correlation_1, correlation_2, correlation_3, correlation_4, correlation_5,
			signal_name, error_code, related_activity_instance_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query,
		w.TenantID,
		w.Kind,
		w.ProcessDefinitionID,
		w.ProcessName,
		w.FlowNodeDefID,
		w.FlowNodeName,
		w.ParentProcessInstanceID,
		w.RootProcessInstanceID,
		w.FlowNodeInstanceID,
		true,
		w.MessageName,
		w.Correlation[0], w.Correlation[1], w.Correlation[2], w.Correlation[3], w.Correlation[4],
		w.SignalName,
		w.ErrorCode,
		w.RelatedActivityInstanceID,
		w.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create waiting event: %w", err)
	}

	return id, nil
}

func (s *Store) GetWaitingEvent(ctx context.Context, tenantID uuid.UUID, id int64) (*store.WaitingEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM waiting_events WHERE id = $1 AND tenant_id = $2", waitingEventColumns)

	w, err := scanWaitingEvent(s.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

// DeactivateWaitingEvent flips active to false. The matcher must never see
// an inactive record, even if a concurrent sweep already read it.
func (s *Store) DeactivateWaitingEvent(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, id int64) error {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx,
		"UPDATE waiting_events SET active = FALSE WHERE id = $1 AND tenant_id = $2 AND active",
		id, tenantID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeactivateWaitsForFlowNode cleans up every wait owned by a terminated
// flow node instance.
func (s *Store) DeactivateWaitsForFlowNode(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, flowNodeInstanceID int64) (int64, error) {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx,
		"UPDATE waiting_events SET active = FALSE WHERE tenant_id = $1 AND flow_node_instance_id = $2 AND active",
		tenantID, flowNodeInstanceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveMessageWaits returns claimable waiting message events for the
// given message names, oldest registration first.
func (s *Store) ListActiveMessageWaits(ctx context.Context, messageNames []string) ([]store.WaitingEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM waiting_events
		WHERE kind = 'MESSAGE' AND active AND NOT locked AND message_name = ANY($1)
		ORDER BY id ASC
	`, waitingEventColumns)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(messageNames))
	if err != nil {
		return nil, fmt.Errorf("failed to list message waits: %w", err)
	}
	defer rows.Close()

	return collectWaitingEvents(rows)
}

func (s *Store) ListSignalWaits(ctx context.Context, tenantID uuid.UUID, signalName string) ([]store.WaitingEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM waiting_events
		WHERE kind = 'SIGNAL' AND active AND tenant_id = $1 AND signal_name = $2
		ORDER BY id ASC
	`, waitingEventColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, signalName)
	if err != nil {
		return nil, fmt.Errorf("failed to list signal waits: %w", err)
	}
	defer rows.Close()

	return collectWaitingEvents(rows)
}

// ListErrorWaits returns active error waits attached to the given activity
// instance. An error only propagates within its own scope, so waits registered
// against a different activity never qualify and are filtered at the query.
func (s *Store) ListErrorWaits(ctx context.Context, tenantID uuid.UUID, relatedActivityInstanceID int64) ([]store.WaitingEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM waiting_events
		WHERE kind = 'ERROR' AND active AND tenant_id = $1
		  AND related_activity_instance_id = $2
		ORDER BY id ASC
	`, waitingEventColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, relatedActivityInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list error waits: %w", err)
	}
	defer rows.Close()

	return collectWaitingEvents(rows)
}

// ListTenantWaits returns a tenant's active waits for the API listing.
func (s *Store) ListTenantWaits(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.WaitingEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM waiting_events
		WHERE tenant_id = $1 AND active
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, waitingEventColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant waits: %w", err)
	}
	defer rows.Close()

	return collectWaitingEvents(rows)
}

// ClaimWaitingEvent is the conditional-update half of the delivery
// protocol: it succeeds only when the row is still active and unlocked.
// The progress counter is bumped so a stale sweep can never re-match the
// same registration across a release/retry cycle.
func (s *Store) ClaimWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE waiting_events
		SET locked = TRUE, progress = progress + 1
		WHERE id = $1 AND active AND NOT locked
	`, id)
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

// ConsumeWaitingEvent finalizes a claimed wait that has no message
// counterpart: deactivated and unlocked in one statement.
func (s *Store) ConsumeWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx,
		"UPDATE waiting_events SET active = FALSE, locked = FALSE WHERE id = $1", id)
	return err
}

func (s *Store) ReleaseWaitingEvent(ctx context.Context, tx store.DBTransaction, id int64) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx,
		"UPDATE waiting_events SET locked = FALSE WHERE id = $1", id)
	return err
}

func scanWaitingEvent(row *sql.Row) (*store.WaitingEvent, error) {
	var w store.WaitingEvent
	err := row.Scan(
		&w.ID, &w.TenantID, &w.Kind, &w.ProcessDefinitionID, &w.ProcessName,
		&w.FlowNodeDefID, &w.FlowNodeName, &w.ParentProcessInstanceID, &w.RootProcessInstanceID,
		&w.FlowNodeInstanceID, &w.Active, &w.MessageName,
		&w.Correlation[0], &w.Correlation[1], &w.Correlation[2], &w.Correlation[3], &w.Correlation[4],
		&w.Locked, &w.Progress, &w.SignalName, &w.ErrorCode, &w.RelatedActivityInstanceID, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWaitingEvents(rows *sql.Rows) ([]store.WaitingEvent, error) {
	var events []store.WaitingEvent
	for rows.Next() {
		var w store.WaitingEvent
		if err := rows.Scan(
			&w.ID, &w.TenantID, &w.Kind, &w.ProcessDefinitionID, &w.ProcessName,
			&w.FlowNodeDefID, &w.FlowNodeName, &w.ParentProcessInstanceID, &w.RootProcessInstanceID,
			&w.FlowNodeInstanceID, &w.Active, &w.MessageName,
			&w.Correlation[0], &w.Correlation[1], &w.Correlation[2], &w.Correlation[3], &w.Correlation[4],
			&w.Locked, &w.Progress, &w.SignalName, &w.ErrorCode, &w.RelatedActivityInstanceID, &w.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
