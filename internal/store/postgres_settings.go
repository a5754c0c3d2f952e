package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveHierarchySnapshot inserts a new snapshot and makes it the only
// active one, in a single transaction so readers never see zero or two
// active trees.
func (s *PostgresStore) SaveHierarchySnapshot(ctx context.Context, snap HierarchySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save hierarchy: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE hierarchy_snapshots SET is_active=FALSE WHERE is_active`); err != nil {
		return fmt.Errorf("deactivate hierarchies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO hierarchy_snapshots (id, tree_json, is_active, created_by)
		VALUES ($1, $2, TRUE, $3)
	`, snap.ID, snap.TreeJSON, snap.CreatedBy); err != nil {
		return fmt.Errorf("insert hierarchy snapshot: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) GetActiveHierarchy(ctx context.Context) (HierarchySnapshot, error) {
	var snap HierarchySnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tree_json, is_active, created_by, created_at
		FROM hierarchy_snapshots WHERE is_active
		ORDER BY created_at DESC LIMIT 1
	`).Scan(&snap.ID, &snap.TreeJSON, &snap.IsActive, &snap.CreatedBy, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return HierarchySnapshot{}, err
	}
	if err != nil {
		return HierarchySnapshot{}, fmt.Errorf("get active hierarchy: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) ListHierarchySnapshots(ctx context.Context, limit int) ([]HierarchySnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tree_json, is_active, created_by, created_at
		FROM hierarchy_snapshots ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list hierarchy snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []HierarchySnapshot
	for rows.Next() {
		var snap HierarchySnapshot
		if err := rows.Scan(&snap.ID, &snap.TreeJSON, &snap.IsActive, &snap.CreatedBy, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hierarchy snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, topic, title, body, link_path)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Topic, n.Title, n.Body, n.LinkPath)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, topic, title, body, link_path, read_at, created_at
		FROM notifications WHERE user_id=$1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Topic, &n.Title, &n.Body, &n.LinkPath, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ReadAt = timePtr(readAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW() WHERE id=$1 AND user_id=$2 AND read_at IS NULL
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at=NOW() WHERE user_id=$1 AND read_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, e ActivityLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (actor_id, actor_name, action, resource_type, resource_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ActorID, e.ActorName, e.Action, e.ResourceType, e.ResourceID, e.Detail)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, limit int) ([]ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, action, resource_type, resource_id, detail, created_at
		FROM activity_log ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityLogEntry
	for rows.Next() {
		var e ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
