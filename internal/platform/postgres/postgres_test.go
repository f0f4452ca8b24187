package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestConfigValidate(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	bad := cfg
	bad.MaxIdleConns = bad.MaxOpenConns + 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected idle > open to fail")
	}
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "workflow_statuses_board_name_key"})
	if !IsUniqueViolation(unique) {
		t.Fatalf("expected unique violation")
	}
	if IsForeignKeyViolation(unique) {
		t.Fatalf("unique violation must not classify as foreign key")
	}
	if got := ConstraintName(unique); got != "workflow_statuses_board_name_key" {
		t.Fatalf("ConstraintName()=%q", got)
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected foreign key violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestMigrationsOrdered(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations() err=%v", err)
	}
	if len(migrations) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Fatalf("migrations out of order: %s >= %s", migrations[i-1].Version, migrations[i].Version)
		}
	}
	if !strings.Contains(migrations[0].SQL, "task_status_history") {
		t.Fatalf("expected history table in first migration")
	}
}
