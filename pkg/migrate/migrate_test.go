package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoanMigrationConstraints(t *testing.T) {
	content := readMigration(t, "*_create_loans.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS loans",
		"return_date   DATE        NULL",
		"CHECK (due_date >= start_date)",
		"ux_loans_group_item ON loans (loan_group_id, item_id)",
		"WHERE return_date IS NULL",
		"DROP TABLE IF EXISTS loans",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationConstraints(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"WHERE published_at IS NULL",
		"error_reason IN ('max_attempts', 'non_retryable')",
		"DROP TABLE IF EXISTS outbox_events",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateShippedMigrations(t *testing.T) {
	versions, err := ValidateDir("migrations")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two migrations, got %v", versions)
	}
}

func TestShippedMatchesDirectory(t *testing.T) {
	embedded, err := ValidateFS(Shipped())
	if err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	onDisk, err := ValidateDir("migrations")
	if err != nil {
		t.Fatalf("validate dir: %v", err)
	}
	if strings.Join(embedded, ",") != strings.Join(onDisk, ",") {
		t.Fatalf("embedded %v differs from directory %v", embedded, onDisk)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := Run(context.Background(), nil, DefaultDir, "up"); err == nil {
		t.Fatalf("expected nil db to fail")
	}
	if _, err := source(""); err == nil {
		t.Fatalf("expected empty dir to fail")
	}
}

func TestCreateAndValidate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 12, 15, 9, 30, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Loan Notes!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20251215093000_add_loan_notes.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if _, err := CreateSQLMigration(dir, "add loan notes", now); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	versions, err := ValidateDir(dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(versions) != 1 || versions[0] != "20251215093000" {
		t.Fatalf("unexpected versions %v", versions)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename to fail validation")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), " !! ", time.Now()); err == nil {
		t.Fatalf("expected sanitized-empty name to fail")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matches %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}
