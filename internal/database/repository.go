package database

import (
	"context"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

// SystemConfigRepository manages key-value system configuration.
type SystemConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) ([]models.SystemConfig, error)
}

// AgentRepository manages console operator accounts.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id int64) (*models.Agent, error)
	GetByUsername(ctx context.Context, username string) (*models.Agent, error)
	List(ctx context.Context) ([]models.Agent, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// LeadRepository manages CRM leads.
type LeadRepository interface {
	Create(ctx context.Context, lead *models.Lead) error
	GetByID(ctx context.Context, id int64) (*models.Lead, error)
	List(ctx context.Context, filter LeadListFilter) ([]models.Lead, int, error)
	Update(ctx context.Context, lead *models.Lead) error
	Delete(ctx context.Context, id int64) error
}

// LeadListFilter specifies filtering and pagination for lead list queries.
type LeadListFilter struct {
	Limit      int
	Offset     int
	Status     string // empty matches all
	AssignedTo int64  // zero matches all
	Search     string // matches phone_number, first_name, last_name, company
}

// CallLogRepository manages call disposition records.
type CallLogRepository interface {
	Create(ctx context.Context, log *models.CallLog) error
	GetByID(ctx context.Context, id int64) (*models.CallLog, error)
	List(ctx context.Context, filter CallLogListFilter) ([]models.CallLog, int, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// CallLogListFilter specifies filtering and pagination for call log queries.
type CallLogListFilter struct {
	Limit     int
	Offset    int
	AgentID   int64  // zero matches all
	Status    string // empty matches all
	StartDate string // inclusive lower bound on created_at (RFC 3339 or date)
	EndDate   string // inclusive upper bound on created_at
}

// CallbackRepository manages scheduled follow-up calls.
type CallbackRepository interface {
	Create(ctx context.Context, cb *models.Callback) error
	ListDue(ctx context.Context, agentID int64) ([]models.Callback, error)
	MarkCompleted(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}
