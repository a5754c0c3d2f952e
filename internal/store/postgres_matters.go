package store

import (
	"context"
	"database/sql"
	"fmt"
)

const matterColumns = `m.id, m.title, m.matter_number, m.description, m.status, m.practice_area,
	m.client_id, m.responsible_attorney_id, m.opened_at, m.closed_at, m.created_by, m.created_at, m.updated_at`

func scanMatter(row interface{ Scan(...any) error }) (Matter, error) {
	var m Matter
	var openedAt, closedAt sql.NullTime
	err := row.Scan(&m.ID, &m.Title, &m.MatterNumber, &m.Description, &m.Status, &m.PracticeArea,
		&m.ClientID, &m.ResponsibleAttorneyID, &openedAt, &closedAt, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Matter{}, err
	}
	m.OpenedAt = timePtr(openedAt)
	m.ClosedAt = timePtr(closedAt)
	return m, nil
}

func (s *PostgresStore) CreateMatter(ctx context.Context, m Matter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create matter: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matters (id, title, matter_number, description, status, practice_area,
			client_id, responsible_attorney_id, opened_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.Title, m.MatterNumber, m.Description, m.Status, m.PracticeArea,
		m.ClientID, m.ResponsibleAttorneyID, nullTimePtr(m.OpenedAt), m.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert matter: %w", err)
	}

	for _, attorneyID := range m.SharedAttorneyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matter_attorneys (matter_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, m.ID, attorneyID); err != nil {
			return fmt.Errorf("insert matter attorney: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) GetMatter(ctx context.Context, id string) (Matter, error) {
	m, err := scanMatter(s.db.QueryRowContext(ctx, `SELECT `+matterColumns+` FROM matters m WHERE m.id=$1`, id))
	if err == sql.ErrNoRows {
		return Matter{}, err
	}
	if err != nil {
		return Matter{}, fmt.Errorf("get matter: %w", err)
	}
	if m.SharedAttorneyIDs, err = s.sharedAttorneys(ctx, id); err != nil {
		return Matter{}, err
	}
	return m, nil
}

func (s *PostgresStore) sharedAttorneys(ctx context.Context, matterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM matter_attorneys WHERE matter_id=$1 ORDER BY user_id`, matterID)
	if err != nil {
		return nil, fmt.Errorf("list matter attorneys: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan matter attorney: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMattersForUser returns matters the user may see: everything for
// admins, otherwise the union of created, led, and shared matters.
func (s *PostgresStore) ListMattersForUser(ctx context.Context, userID string, isAdmin bool) ([]Matter, error) {
	query := `SELECT ` + matterColumns + ` FROM matters m`
	args := []any{}
	if !isAdmin {
		query += ` WHERE m.created_by=$1 OR m.responsible_attorney_id=$1
			OR EXISTS (SELECT 1 FROM matter_attorneys ma WHERE ma.matter_id=m.id AND ma.user_id=$1)`
		args = append(args, userID)
	}
	query += ` ORDER BY m.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matters: %w", err)
	}
	defer rows.Close()

	var matters []Matter
	for rows.Next() {
		m, err := scanMatter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan matter: %w", err)
		}
		matters = append(matters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range matters {
		if matters[i].SharedAttorneyIDs, err = s.sharedAttorneys(ctx, matters[i].ID); err != nil {
			return nil, err
		}
	}
	return matters, nil
}

func (s *PostgresStore) UpdateMatter(ctx context.Context, m Matter) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update matter: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE matters
		SET title=$2, matter_number=$3, description=$4, status=$5, practice_area=$6,
			client_id=$7, responsible_attorney_id=$8, opened_at=$9, closed_at=$10, updated_at=NOW()
		WHERE id=$1
	`, m.ID, m.Title, m.MatterNumber, m.Description, m.Status, m.PracticeArea,
		m.ClientID, m.ResponsibleAttorneyID, nullTimePtr(m.OpenedAt), nullTimePtr(m.ClosedAt))
	if err != nil {
		return fmt.Errorf("update matter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	// The shared set is replaced wholesale on every update.
	if _, err := tx.ExecContext(ctx, `DELETE FROM matter_attorneys WHERE matter_id=$1`, m.ID); err != nil {
		return fmt.Errorf("clear matter attorneys: %w", err)
	}
	for _, attorneyID := range m.SharedAttorneyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO matter_attorneys (matter_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, m.ID, attorneyID); err != nil {
			return fmt.Errorf("insert matter attorney: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) DeleteMatter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matters WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete matter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
