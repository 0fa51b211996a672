package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Create inserts a new call disposition record.
func (r *callLogRepo) Create(ctx context.Context, log *models.CallLog) error {
	if !models.ValidDisposition(log.Status) {
		return fmt.Errorf("invalid disposition status %q", log.Status)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_logs (agent_id, lead_id, phone_number, direction,
		 status, notes, duration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		log.AgentID, log.LeadID, log.PhoneNumber, log.Direction,
		log.Status, log.Notes, log.Duration,
	)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	log.ID = id
	return nil
}

// GetByID returns a call log by ID.
func (r *callLogRepo) GetByID(ctx context.Context, id int64) (*models.CallLog, error) {
	var l models.CallLog
	err := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, lead_id, phone_number, direction, status, notes,
		 duration, created_at
		 FROM call_logs WHERE id = ?`, id,
	).Scan(&l.ID, &l.AgentID, &l.LeadID, &l.PhoneNumber, &l.Direction,
		&l.Status, &l.Notes, &l.Duration, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call log: %w", err)
	}
	return &l, nil
}

// List returns call logs matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, filter CallLogListFilter) ([]models.CallLog, int, error) {
	where := "1=1"
	args := []any{}

	if filter.AgentID != 0 {
		where += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.StartDate != "" {
		where += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM call_logs WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call logs: %w", err)
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT id, agent_id, lead_id, phone_number, direction, status,
		 notes, duration, created_at
		 FROM call_logs WHERE ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying call logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var l models.CallLog
		if err := rows.Scan(&l.ID, &l.AgentID, &l.LeadID, &l.PhoneNumber,
			&l.Direction, &l.Status, &l.Notes, &l.Duration, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning call log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// CountByStatus returns call log counts grouped by disposition status.
func (r *callLogRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM call_logs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting call logs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
