package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

// ListStore reads list ownership; lists themselves are managed elsewhere.
type ListStore struct {
	db DB
}

func NewListStore(db DB) *ListStore {
	if db == nil {
		return nil
	}
	return &ListStore{db: db}
}

func (s *ListStore) GetList(ctx context.Context, id string) (domain.List, error) {
	if s == nil || s.db == nil {
		return domain.List{}, fmt.Errorf("list store not initialized")
	}
	var list domain.List
	err := s.db.QueryRowContext(ctx, `SELECT list_id, board_id, name FROM board_lists WHERE list_id = $1`, strings.TrimSpace(id)).
		Scan(&list.ID, &list.BoardID, &list.Name)
	if err != nil {
		return domain.List{}, handleNotFound(err)
	}
	return list, nil
}

// MemberStore resolves board roles from board_members.
type MemberStore struct {
	db DB
}

func NewMemberStore(db DB) *MemberStore {
	if db == nil {
		return nil
	}
	return &MemberStore{db: db}
}

func (s *MemberStore) BoardRoles(ctx context.Context, boardID, subject string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("member store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM board_members WHERE board_id = $1 AND subject = $2 ORDER BY role`,
		strings.TrimSpace(boardID), strings.TrimSpace(subject))
	if err != nil {
		return nil, fmt.Errorf("board roles: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("board roles: %w", err)
	}
	return roles, nil
}

var (
	_ repo.ListRepository       = (*ListStore)(nil)
	_ repo.MembershipRepository = (*MemberStore)(nil)
)
