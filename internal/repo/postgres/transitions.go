package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

type TransitionStore struct {
	db DB
}

func NewTransitionStore(db DB) *TransitionStore {
	if db == nil {
		return nil
	}
	return &TransitionStore{db: db}
}

func (s *TransitionStore) CreateTransition(ctx context.Context, transition domain.Transition) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("transition store not initialized")
	}
	if err := transition.Validate(); err != nil {
		return err
	}
	guardsJSON, err := encodeList(transition.Guards)
	if err != nil {
		return fmt.Errorf("encode guards: %w", err)
	}
	automationsJSON, err := encodeList(transition.Automations)
	if err != nil {
		return fmt.Errorf("encode automations: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_transitions (
			transition_id,
			board_id,
			from_status_id,
			to_status_id,
			name,
			guards,
			automations,
			created_at,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(transition.ID),
		strings.TrimSpace(transition.BoardID),
		strings.TrimSpace(transition.FromStatusID),
		strings.TrimSpace(transition.ToStatusID),
		strings.TrimSpace(transition.Name),
		guardsJSON,
		automationsJSON,
		normalizeTime(transition.CreatedAt),
		strings.TrimSpace(transition.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", classifyWrite(err))
	}
	return nil
}

func (s *TransitionStore) DeleteTransition(ctx context.Context, boardID, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("transition store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE board_id = $1 AND transition_id = $2`,
		strings.TrimSpace(boardID), strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete transition: %w", err)
	}
	return requireAffected(res)
}

func (s *TransitionStore) ListTransitions(ctx context.Context, boardID string) ([]domain.Transition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("transition store not initialized")
	}
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return nil, fmt.Errorf("board id is required")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT transition_id, board_id, from_status_id, to_status_id, name, guards, automations, created_at, created_by
		 FROM workflow_transitions
		 WHERE board_id = $1
		 ORDER BY created_at, transition_id`,
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var t domain.Transition
		var guardsJSON, automationsJSON []byte
		if err := rows.Scan(&t.ID, &t.BoardID, &t.FromStatusID, &t.ToStatusID, &t.Name, &guardsJSON, &automationsJSON, &t.CreatedAt, &t.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if err := decodeList(guardsJSON, &t.Guards); err != nil {
			return nil, fmt.Errorf("decode guards: %w", err)
		}
		if err := decodeList(automationsJSON, &t.Automations); err != nil {
			return nil, fmt.Errorf("decode automations: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return out, nil
}

func encodeList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func decodeList[T any](raw []byte, out *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

var _ repo.TransitionRepository = (*TransitionStore)(nil)
