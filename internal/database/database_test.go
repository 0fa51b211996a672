package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dialdesk/dialdesk/internal/database/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Verify database file was created.
	dbPath := filepath.Join(dir, "dialdesk.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	// Verify WAL mode is active.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	// Verify all tables exist.
	tables := []string{
		"schema_migrations", "system_config", "agents", "leads",
		"call_logs", "callbacks",
	}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Errorf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	db.Close()

	// Re-opening must not fail or re-apply migrations.
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()
}

func TestAgentRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewAgentRepository(db)
	ctx := context.Background()

	agent := &models.Agent{
		Username:     "alice",
		PasswordHash: "x",
		DisplayName:  "Alice",
		Role:         models.RoleAgent,
		SIPNumber:    "1001",
		SIPPassword:  "secret",
		Active:       true,
	}
	if err := repo.Create(ctx, agent); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if agent.ID == 0 {
		t.Fatal("Create() did not set ID")
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if got == nil || got.SIPNumber != "1001" {
		t.Fatalf("GetByUsername() = %+v, want sip_number 1001", got)
	}

	// Unknown username returns nil, nil.
	got, err = repo.GetByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetByUsername(nobody) error: %v", err)
	}
	if got != nil {
		t.Errorf("GetByUsername(nobody) = %+v, want nil", got)
	}

	agent.SIPPassword = "rotated"
	if err := repo.Update(ctx, agent); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	got, _ = repo.GetByID(ctx, agent.ID)
	if got.SIPPassword != "rotated" {
		t.Errorf("SIPPassword after update = %q, want rotated", got.SIPPassword)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v; want 1, nil", n, err)
	}

	if err := repo.Delete(ctx, agent.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	got, _ = repo.GetByID(ctx, agent.ID)
	if got != nil {
		t.Error("agent still present after Delete()")
	}
}

func TestLeadRepositoryFiltering(t *testing.T) {
	db := openTestDB(t)
	repo := NewLeadRepository(db)
	ctx := context.Background()

	for _, l := range []models.Lead{
		{PhoneNumber: "5551234", FirstName: "Bob", Status: "new"},
		{PhoneNumber: "5555678", FirstName: "Carol", Company: "Acme", Status: "contacted"},
		{PhoneNumber: "5559999", FirstName: "Dave", Status: "new"},
	} {
		lead := l
		if err := repo.Create(ctx, &lead); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	leads, total, err := repo.List(ctx, LeadListFilter{Status: "new"})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 2 || len(leads) != 2 {
		t.Errorf("List(status=new) total=%d len=%d, want 2, 2", total, len(leads))
	}

	leads, total, err = repo.List(ctx, LeadListFilter{Search: "Acme"})
	if err != nil {
		t.Fatalf("List(search) error: %v", err)
	}
	if total != 1 || leads[0].FirstName != "Carol" {
		t.Errorf("List(search=Acme) = %+v, want Carol", leads)
	}

	// Pagination.
	leads, total, err = repo.List(ctx, LeadListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List(paged) error: %v", err)
	}
	if total != 3 || len(leads) != 1 {
		t.Errorf("List(limit=1 offset=1) total=%d len=%d, want 3, 1", total, len(leads))
	}
}

func TestSystemConfigRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	repo, err := NewSystemConfigRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewSystemConfigRepository() error: %v", err)
	}

	// Missing key returns empty string, no error.
	v, err := repo.Get(ctx, models.ConfigSIPServerDomain)
	if err != nil || v != "" {
		t.Errorf("Get(missing) = %q, %v; want empty, nil", v, err)
	}

	if err := repo.Set(ctx, models.ConfigSIPServerDomain, "pbx.example.com"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	v, _ = repo.Get(ctx, models.ConfigSIPServerDomain)
	if v != "pbx.example.com" {
		t.Errorf("Get() = %q, want pbx.example.com", v)
	}

	// Value survives a fresh repository (cache reload from disk).
	repo2, err := NewSystemConfigRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewSystemConfigRepository() reload error: %v", err)
	}
	v, _ = repo2.Get(ctx, models.ConfigSIPServerDomain)
	if v != "pbx.example.com" {
		t.Errorf("Get() after reload = %q, want pbx.example.com", v)
	}
}
