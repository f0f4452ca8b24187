package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

const historyColumns = `history_id, task_id, board_id, from_status, to_status, from_status_id, to_status_id,
	transition_id, actor, comment, occurred_at, integrity_sha256`

type HistoryStore struct {
	db  DB
	now func() time.Time
}

func NewHistoryStore(db DB) *HistoryStore {
	if db == nil {
		return nil
	}
	return &HistoryStore{db: db, now: time.Now}
}

func (s *HistoryStore) Append(ctx context.Context, entry domain.HistoryEntry) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("history store not initialized")
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	entry.OccurredAt = domain.StoredTime(entry.OccurredAt)
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	integrity, err := domain.ComputeHistoryIntegrity(entry)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO task_status_history (
			task_id,
			board_id,
			from_status,
			to_status,
			from_status_id,
			to_status_id,
			transition_id,
			actor,
			comment,
			occurred_at,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING history_id`,
		entry.TaskID,
		entry.BoardID,
		entry.FromStatus,
		entry.ToStatus,
		nullIfEmpty(entry.FromStatusID),
		nullIfEmpty(entry.ToStatusID),
		nullIfEmpty(entry.TransitionID),
		entry.Actor,
		nullIfEmpty(entry.Comment),
		entry.OccurredAt,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	return id, nil
}

func (s *HistoryStore) ListByTask(ctx context.Context, taskID string, limit int) ([]domain.HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}
	args := []any{strings.TrimSpace(taskID)}
	query := `SELECT ` + historyColumns + ` FROM task_status_history WHERE task_id = $1 ORDER BY occurred_at DESC, history_id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.query(ctx, query, args...)
}

func (s *HistoryStore) ListByBoard(ctx context.Context, boardID string, since time.Time) ([]domain.HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history store not initialized")
	}
	return s.query(
		ctx,
		`SELECT `+historyColumns+` FROM task_status_history WHERE board_id = $1 AND occurred_at >= $2 ORDER BY occurred_at, history_id`,
		strings.TrimSpace(boardID),
		since.UTC(),
	)
}

func (s *HistoryStore) query(ctx context.Context, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry        domain.HistoryEntry
			fromStatusID sql.NullString
			toStatusID   sql.NullString
			transitionID sql.NullString
			comment      sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.TaskID, &entry.BoardID, &entry.FromStatus, &entry.ToStatus, &fromStatusID, &toStatusID,
			&transitionID, &entry.Actor, &comment, &entry.OccurredAt, &entry.IntegritySHA256); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.FromStatusID = fromStatusID.String
		entry.ToStatusID = toStatusID.String
		entry.TransitionID = transitionID.String
		entry.Comment = comment.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

var _ repo.HistoryRepository = (*HistoryStore)(nil)
