package store

import (
	"context"
	"database/sql"
	"fmt"
)

const taskColumns = `id, matter_id, title, description, status, priority, assignee_id, due_at, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var matterID sql.NullString
	var dueAt sql.NullTime
	err := row.Scan(&t.ID, &matterID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &dueAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	t.MatterID = stringPtr(matterID)
	t.DueAt = timePtr(dueAt)
	return t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, matter_id, title, description, status, priority, assignee_id, due_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, nullStringPtr(t.MatterID), t.Title, t.Description, t.Status, t.Priority,
		t.AssigneeID, nullTimePtr(t.DueAt), t.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return Task{}, err
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasksForUser returns tasks visible to the user: everything for
// admins, otherwise tasks they created or are assigned.
func (s *PostgresStore) ListTasksForUser(ctx context.Context, userID string, isAdmin bool) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if !isAdmin {
		query += ` WHERE created_by=$1 OR assignee_id=$1`
		args = append(args, userID)
	}
	query += ` ORDER BY due_at NULLS LAST, created_at DESC`
	return s.queryTasks(ctx, query, args...)
}

func (s *PostgresStore) ListTasksForMatter(ctx context.Context, matterID string) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE matter_id=$1 ORDER BY created_at DESC`, matterID)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET matter_id=$2, title=$3, description=$4, status=$5, priority=$6, assignee_id=$7, due_at=$8, updated_at=NOW()
		WHERE id=$1
	`, t.ID, nullStringPtr(t.MatterID), t.Title, t.Description, t.Status, t.Priority,
		t.AssigneeID, nullTimePtr(t.DueAt))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
