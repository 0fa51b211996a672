package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// leadRepo implements LeadRepository.
type leadRepo struct {
	db *DB
}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository(db *DB) LeadRepository {
	return &leadRepo{db: db}
}

// Create inserts a new lead.
func (r *leadRepo) Create(ctx context.Context, lead *models.Lead) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (phone_number, first_name, last_name, company, status,
		 assigned_to, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		lead.PhoneNumber, lead.FirstName, lead.LastName, lead.Company,
		lead.Status, lead.AssignedTo, lead.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	lead.ID = id
	return nil
}

// GetByID returns a lead by ID.
func (r *leadRepo) GetByID(ctx context.Context, id int64) (*models.Lead, error) {
	var l models.Lead
	err := r.db.QueryRowContext(ctx,
		`SELECT id, phone_number, first_name, last_name, company, status,
		 assigned_to, notes, created_at, updated_at
		 FROM leads WHERE id = ?`, id,
	).Scan(&l.ID, &l.PhoneNumber, &l.FirstName, &l.LastName, &l.Company,
		&l.Status, &l.AssignedTo, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning lead: %w", err)
	}
	return &l, nil
}

// List returns leads matching the filter, along with the total count.
func (r *leadRepo) List(ctx context.Context, filter LeadListFilter) ([]models.Lead, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.AssignedTo != 0 {
		where += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	if filter.Search != "" {
		where += " AND (phone_number LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR company LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s, s)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM leads WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting leads: %w", err)
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT id, phone_number, first_name, last_name, company, status,
		 assigned_to, notes, created_at, updated_at
		 FROM leads WHERE ` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.PhoneNumber, &l.FirstName, &l.LastName,
			&l.Company, &l.Status, &l.AssignedTo, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, total, rows.Err()
}

// Update modifies an existing lead.
func (r *leadRepo) Update(ctx context.Context, lead *models.Lead) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leads SET phone_number = ?, first_name = ?, last_name = ?,
		 company = ?, status = ?, assigned_to = ?, notes = ?,
		 updated_at = datetime('now') WHERE id = ?`,
		lead.PhoneNumber, lead.FirstName, lead.LastName, lead.Company,
		lead.Status, lead.AssignedTo, lead.Notes, lead.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lead: %w", err)
	}
	return nil
}

// Delete removes a lead by ID.
func (r *leadRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM leads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}
	return nil
}
