package database

import (
	"context"
	"fmt"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// callbackRepo implements CallbackRepository.
type callbackRepo struct {
	db *DB
}

// NewCallbackRepository creates a new CallbackRepository.
func NewCallbackRepository(db *DB) CallbackRepository {
	return &callbackRepo{db: db}
}

// Create inserts a new scheduled callback.
func (r *callbackRepo) Create(ctx context.Context, cb *models.Callback) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO callbacks (agent_id, lead_id, phone_number, due_at,
		 completed, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		cb.AgentID, cb.LeadID, cb.PhoneNumber, cb.DueAt, cb.Completed, cb.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting callback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	cb.ID = id
	return nil
}

// ListDue returns the agent's incomplete callbacks that are due, oldest first.
func (r *callbackRepo) ListDue(ctx context.Context, agentID int64) ([]models.Callback, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, lead_id, phone_number, due_at, completed, notes, created_at
		 FROM callbacks
		 WHERE agent_id = ? AND completed = 0 AND due_at <= datetime('now')
		 ORDER BY due_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying due callbacks: %w", err)
	}
	defer rows.Close()

	var cbs []models.Callback
	for rows.Next() {
		var cb models.Callback
		if err := rows.Scan(&cb.ID, &cb.AgentID, &cb.LeadID, &cb.PhoneNumber,
			&cb.DueAt, &cb.Completed, &cb.Notes, &cb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning callback: %w", err)
		}
		cbs = append(cbs, cb)
	}
	return cbs, rows.Err()
}

// MarkCompleted flags a callback as handled.
func (r *callbackRepo) MarkCompleted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE callbacks SET completed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("completing callback: %w", err)
	}
	return nil
}

// Delete removes a callback by ID.
func (r *callbackRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM callbacks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting callback: %w", err)
	}
	return nil
}
