package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	pgplatform "github.com/taskflow-labs/taskflow/internal/platform/postgres"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

func classifyWrite(err error) error {
	if pgplatform.IsUniqueViolation(err) {
		return errors.Join(repo.ErrDuplicate, err)
	}
	return err
}

func requireAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}
