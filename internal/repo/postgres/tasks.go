package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/domain"
	pgplatform "github.com/taskflow-labs/taskflow/internal/platform/postgres"
	"github.com/taskflow-labs/taskflow/internal/repo"
)

const taskSelect = `SELECT t.task_id, t.board_id, t.list_id, t.status_id, t.legacy_status, t.position, t.priority,
	t.created_by, t.archived, t.updated_at,
	COALESCE((SELECT json_agg(a.subject ORDER BY a.added_at, a.subject) FROM task_assignees a WHERE a.task_id = t.task_id), '[]'::json)
	FROM tasks t`

type TaskStore struct {
	db DB
}

func NewTaskStore(db DB) *TaskStore {
	if db == nil {
		return nil
	}
	return &TaskStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task         domain.Task
		statusID     sql.NullString
		legacy       sql.NullString
		priority     string
		assigneesRaw []byte
	)
	if err := row.Scan(&task.ID, &task.BoardID, &task.ListID, &statusID, &legacy, &task.Position, &priority,
		&task.CreatedBy, &task.Archived, &task.UpdatedAt, &assigneesRaw); err != nil {
		return domain.Task{}, err
	}
	task.StatusID = statusID.String
	task.LegacyStatus = legacy.String
	task.Priority = domain.Priority(priority)
	if len(assigneesRaw) > 0 {
		if err := json.Unmarshal(assigneesRaw, &task.Assignees); err != nil {
			return domain.Task{}, fmt.Errorf("decode assignees: %w", err)
		}
	}
	return task, nil
}

func (s *TaskStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	if s == nil || s.db == nil {
		return domain.Task{}, fmt.Errorf("task store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Task{}, fmt.Errorf("task id is required")
	}
	task, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE t.task_id = $1`, id))
	if err != nil {
		return domain.Task{}, handleNotFound(err)
	}
	return task, nil
}

func (s *TaskStore) ListTasks(ctx context.Context, listID string) ([]domain.Task, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("task store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE t.list_id = $1 AND NOT t.archived AND t.position >= 0 ORDER BY t.position`, strings.TrimSpace(listID))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// LockList takes a row lock on the list so concurrent reorders of it queue
// behind this transaction, including reorders of an empty list.
func (s *TaskStore) LockList(ctx context.Context, listID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	var locked string
	err := s.db.QueryRowContext(ctx, `SELECT list_id FROM board_lists WHERE list_id = $1 FOR UPDATE`, strings.TrimSpace(listID)).Scan(&locked)
	if err != nil {
		return handleNotFound(err)
	}
	return nil
}

func (s *TaskStore) CountInList(ctx context.Context, listID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("task store not initialized")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE list_id = $1 AND NOT archived AND position >= 0`, strings.TrimSpace(listID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (s *TaskStore) ShiftPositions(ctx context.Context, listID string, from, to, delta int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("task store not initialized")
	}
	if from < 0 {
		from = 0
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
		 SET position = position + $4, updated_at = now()
		 WHERE list_id = $1 AND NOT archived AND position >= $2 AND ($3 < 0 OR position <= $3)`,
		strings.TrimSpace(listID),
		from,
		to,
		delta,
	)
	if err != nil {
		return 0, fmt.Errorf("shift positions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("shift positions: %w", err)
	}
	return n, nil
}

func (s *TaskStore) SetPlacement(ctx context.Context, taskID, listID string, position int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET list_id = $2, position = $3, updated_at = now() WHERE task_id = $1`,
		strings.TrimSpace(taskID), strings.TrimSpace(listID), position)
	if err != nil {
		if pgplatform.IsForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("set placement: %w", err)
	}
	return requireAffected(res)
}

func (s *TaskStore) SetStatus(ctx context.Context, taskID, statusID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status_id = $2, legacy_status = NULL, updated_at = now() WHERE task_id = $1`,
		strings.TrimSpace(taskID), strings.TrimSpace(statusID))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return requireAffected(res)
}

func (s *TaskStore) SetPriority(ctx context.Context, taskID string, priority domain.Priority) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET priority = $2, updated_at = now() WHERE task_id = $1`,
		strings.TrimSpace(taskID), string(priority))
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return requireAffected(res)
}

func (s *TaskStore) AddAssignees(ctx context.Context, taskID string, subjects []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	taskID = strings.TrimSpace(taskID)
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx, `INSERT INTO task_assignees (task_id, subject) VALUES ($1, $2) ON CONFLICT (task_id, subject) DO NOTHING`, taskID, subject)
		if err != nil {
			if pgplatform.IsForeignKeyViolation(err) {
				return repo.ErrNotFound
			}
			return fmt.Errorf("add assignee: %w", err)
		}
	}
	return nil
}

func (s *TaskStore) Archive(ctx context.Context, taskID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("task store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET archived = TRUE, position = -1, updated_at = now() WHERE task_id = $1`, strings.TrimSpace(taskID))
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	return requireAffected(res)
}

var _ repo.TaskRepository = (*TaskStore)(nil)
