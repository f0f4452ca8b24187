package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskflow-labs/taskflow/internal/repo"
)

// Store runs units of work against Postgres. Repositories created for a unit
// of work share its *sql.Tx.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn repo.TxFunc) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (s *Store) Read(ctx context.Context, fn repo.TxFunc) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn repo.TxFunc) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, Bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Bind builds the repository set over db, which may be a *sql.DB or *sql.Tx.
func Bind(db DB) repo.Repos {
	return repo.Repos{
		Statuses:    NewStatusStore(db),
		Transitions: NewTransitionStore(db),
		Tasks:       NewTaskStore(db),
		History:     NewHistoryStore(db),
		Lists:       NewListStore(db),
		Members:     NewMemberStore(db),
	}
}
