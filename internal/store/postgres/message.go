package postgres

import (
	"context"
	"fmt"
	"time"

	"flowplane/internal/store"

	"github.com/google/uuid"
)

const messageInstanceColumns = `id, tenant_id, message_name, target_process, target_flow_node,
	process_definition_id, throwing_node_name,
	correlation_1, correlation_2, correlation_3, correlation_4, correlation_5,
	payload, locked, handled, created_at`

// CreateMessageInstance inserts a thrown message row and returns its id.
func (s *Store) CreateMessageInstance(ctx context.Context, tx store.DBTransaction, m *store.MessageInstance) (int64, error) {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO message_instances (
			tenant_id, message_name, target_process, target_flow_node,
			process_definition_id, throwing_node_name,
			correlation_1, correlation_2, correlation_3, correlation_4, correlation_5,
			payload, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	var id int64
	err := executor.QueryRowContext(ctx, query,
		m.TenantID,
		m.MessageName,
		m.TargetProcess,
		m.TargetFlowNode,
		m.ProcessDefinitionID,
		m.ThrowingNodeName,
		m.Correlation[0], m.Correlation[1], m.Correlation[2], m.Correlation[3], m.Correlation[4],
		m.Payload,
		m.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create message instance: %w", err)
	}

	return id, nil
}

// ListPendingMessages returns unhandled, unlocked message instances in
// creation order. A message with no current match is left pending, not an
// error.
func (s *Store) ListPendingMessages(ctx context.Context, limit int) ([]store.MessageInstance, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM message_instances
		WHERE NOT handled AND NOT locked
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, messageInstanceColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	defer rows.Close()

	var messages []store.MessageInstance
	for rows.Next() {
		var m store.MessageInstance
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.MessageName, &m.TargetProcess, &m.TargetFlowNode,
			&m.ProcessDefinitionID, &m.ThrowingNodeName,
			&m.Correlation[0], &m.Correlation[1], &m.Correlation[2], &m.Correlation[3], &m.Correlation[4],
			&m.Payload, &m.Locked, &m.Handled, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// ListTenantPendingMessages returns a tenant's unhandled messages for the
// API listing.
func (s *Store) ListTenantPendingMessages(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.MessageInstance, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM message_instances
		WHERE tenant_id = $1 AND NOT handled
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, messageInstanceColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant pending messages: %w", err)
	}
	defer rows.Close()

	var messages []store.MessageInstance
	for rows.Next() {
		var m store.MessageInstance
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.MessageName, &m.TargetProcess, &m.TargetFlowNode,
			&m.ProcessDefinitionID, &m.ThrowingNodeName,
			&m.Correlation[0], &m.Correlation[1], &m.Correlation[2], &m.Correlation[3], &m.Correlation[4],
			&m.Payload, &m.Locked, &m.Handled, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// ClaimMessageInstance conditionally locks an unhandled message instance.
// Handled is terminal, so the guard also excludes already-delivered rows.
func (s *Store) ClaimMessageInstance(ctx context.Context, tx store.DBTransaction, id int64) error {
	executor := s.getExecutor(tx)

	res, err := executor.ExecContext(ctx, `
		UPDATE message_instances
		SET locked = TRUE
		WHERE id = $1 AND NOT handled AND NOT locked
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

func (s *Store) ReleaseMessageInstance(ctx context.Context, tx store.DBTransaction, id int64) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx,
		"UPDATE message_instances SET locked = FALSE WHERE id = $1", id)
	return err
}

// CompleteDelivery marks both sides of a couple consumed in one statement
// pair. Must run inside the caller's transaction so no partial state is
// ever observable.
func (s *Store) CompleteDelivery(ctx context.Context, tx store.DBTransaction, couple store.EventCouple) error {
	executor := s.getExecutor(tx)

	_, err := executor.ExecContext(ctx,
		"UPDATE message_instances SET handled = TRUE, locked = FALSE WHERE id = $1",
		couple.MessageInstanceID)
	if err != nil {
		return fmt.Errorf("failed to mark message handled: %w", err)
	}

	_, err = executor.ExecContext(ctx,
		"UPDATE waiting_events SET active = FALSE, locked = FALSE WHERE id = $1",
		couple.WaitingEventID)
	if err != nil {
		return fmt.Errorf("failed to deactivate waiting event: %w", err)
	}

	return nil
}

// DeleteExpiredMessages removes pending messages older than the cutoff.
// The retention window bounds how long an unmatched instance may linger.
func (s *Store) DeleteExpiredMessages(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM message_instances WHERE NOT handled AND NOT locked AND created_at < $1",
		olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountPendingMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM message_instances WHERE NOT handled").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
