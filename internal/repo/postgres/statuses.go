package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

const statusColumns = `status_id, board_id, name, label, color, position, is_initial, is_final, is_active, created_at, created_by`

type StatusStore struct {
	db DB
}

func NewStatusStore(db DB) *StatusStore {
	if db == nil {
		return nil
	}
	return &StatusStore{db: db}
}

func (s *StatusStore) CreateStatus(ctx context.Context, status domain.Status) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("status store not initialized")
	}
	if err := status.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_statuses (`+statusColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		strings.TrimSpace(status.ID),
		strings.TrimSpace(status.BoardID),
		status.Name,
		strings.TrimSpace(status.Label),
		status.Color,
		status.Position,
		status.IsInitial,
		status.IsFinal,
		status.IsActive,
		normalizeTime(status.CreatedAt),
		strings.TrimSpace(status.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert status: %w", classifyWrite(err))
	}
	return nil
}

func (s *StatusStore) GetStatus(ctx context.Context, boardID, id string) (domain.Status, error) {
	if s == nil || s.db == nil {
		return domain.Status{}, fmt.Errorf("status store not initialized")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+statusColumns+` FROM workflow_statuses WHERE board_id = $1 AND status_id = $2`,
		strings.TrimSpace(boardID),
		strings.TrimSpace(id),
	)
	var status domain.Status
	if err := row.Scan(&status.ID, &status.BoardID, &status.Name, &status.Label, &status.Color, &status.Position,
		&status.IsInitial, &status.IsFinal, &status.IsActive, &status.CreatedAt, &status.CreatedBy); err != nil {
		return domain.Status{}, handleNotFound(err)
	}
	return status, nil
}

func (s *StatusStore) ListStatuses(ctx context.Context, boardID string) ([]domain.Status, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("status store not initialized")
	}
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return nil, fmt.Errorf("board id is required")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM workflow_statuses WHERE board_id = $1 ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Status, 0)
	for rows.Next() {
		var status domain.Status
		if err := rows.Scan(&status.ID, &status.BoardID, &status.Name, &status.Label, &status.Color, &status.Position,
			&status.IsInitial, &status.IsFinal, &status.IsActive, &status.CreatedAt, &status.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out = append(out, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return out, nil
}

// UpdateStatus rewrites the mutable presentation and flag columns. Name,
// board and position are fixed once created.
func (s *StatusStore) UpdateStatus(ctx context.Context, status domain.Status) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("status store not initialized")
	}
	if err := status.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE workflow_statuses
		 SET label = $1, color = $2, is_initial = $3, is_final = $4, is_active = $5
		 WHERE board_id = $6 AND status_id = $7`,
		strings.TrimSpace(status.Label),
		status.Color,
		status.IsInitial,
		status.IsFinal,
		status.IsActive,
		strings.TrimSpace(status.BoardID),
		strings.TrimSpace(status.ID),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return nil
}

var _ repo.StatusRepository = (*StatusStore)(nil)
