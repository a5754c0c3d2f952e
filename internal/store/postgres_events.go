package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const eventColumns = `id, title, description, location, starts_at, ends_at, all_day,
	matter_id, owner_id, google_event_id, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var ev Event
	var matterID sql.NullString
	err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt, &ev.EndsAt,
		&ev.AllDay, &matterID, &ev.OwnerID, &ev.GoogleEventID, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return Event{}, err
	}
	ev.MatterID = stringPtr(matterID)
	return ev, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, ev Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create event: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, title, description, location, starts_at, ends_at, all_day,
			matter_id, owner_id, google_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ID, ev.Title, ev.Description, ev.Location, ev.StartsAt, ev.EndsAt, ev.AllDay,
		nullStringPtr(ev.MatterID), ev.OwnerID, ev.GoogleEventID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for _, attendeeID := range ev.AttendeeIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, ev.ID, attendeeID); err != nil {
			return fmt.Errorf("insert event attendee: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return Event{}, err
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	if ev.AttendeeIDs, err = s.eventAttendees(ctx, id); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *PostgresStore) eventAttendees(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM event_attendees WHERE event_id=$1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event attendees: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event attendee: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetEventByGoogleID is the pull-side reconciliation lookup.
func (s *PostgresStore) GetEventByGoogleID(ctx context.Context, ownerID, googleEventID string) (Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE owner_id=$1 AND google_event_id=$2`, ownerID, googleEventID))
	if err == sql.ErrNoRows {
		return Event{}, err
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event by google id: %w", err)
	}
	return ev, nil
}

// ListEventsForUser returns events the user owns or attends, bounded by
// the window when from/to are non-zero.
func (s *PostgresStore) ListEventsForUser(ctx context.Context, userID string, from, to time.Time) ([]Event, error) {
	query := `
		SELECT ` + eventColumns + ` FROM events e
		WHERE (e.owner_id=$1 OR EXISTS (SELECT 1 FROM event_attendees ea WHERE ea.event_id=e.id AND ea.user_id=$1))`
	args := []any{userID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND e.ends_at >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND e.starts_at <= $%d", len(args))
	}
	query += ` ORDER BY e.starts_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		if events[i].AttendeeIDs, err = s.eventAttendees(ctx, events[i].ID); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// ListOwnedEventsInWindow returns events created by the user inside the
// sync window, for the push pass.
func (s *PostgresStore) ListOwnedEventsInWindow(ctx context.Context, ownerID string, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE owner_id=$1 AND starts_at >= $2 AND starts_at <= $3
		ORDER BY starts_at
	`, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list owned events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, ev Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update event: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events
		SET title=$2, description=$3, location=$4, starts_at=$5, ends_at=$6, all_day=$7,
			matter_id=$8, google_event_id=$9, updated_at=NOW()
		WHERE id=$1
	`, ev.ID, ev.Title, ev.Description, ev.Location, ev.StartsAt, ev.EndsAt, ev.AllDay,
		nullStringPtr(ev.MatterID), ev.GoogleEventID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id=$1`, ev.ID); err != nil {
		return fmt.Errorf("clear event attendees: %w", err)
	}
	for _, attendeeID := range ev.AttendeeIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, ev.ID, attendeeID); err != nil {
			return fmt.Errorf("insert event attendee: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SaveGoogleCredential(ctx context.Context, c GoogleCredential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO google_credentials (user_id, refresh_token, calendar_id, connected_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET refresh_token=EXCLUDED.refresh_token, calendar_id=EXCLUDED.calendar_id, connected_at=NOW()
	`, c.UserID, c.RefreshToken, c.CalendarID)
	if err != nil {
		return fmt.Errorf("save google credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGoogleCredential(ctx context.Context, userID string) (GoogleCredential, error) {
	var c GoogleCredential
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, refresh_token, calendar_id, connected_at FROM google_credentials WHERE user_id=$1
	`, userID).Scan(&c.UserID, &c.RefreshToken, &c.CalendarID, &c.ConnectedAt)
	if err == sql.ErrNoRows {
		return GoogleCredential{}, err
	}
	if err != nil {
		return GoogleCredential{}, fmt.Errorf("get google credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) DeleteGoogleCredential(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM google_credentials WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete google credential: %w", err)
	}
	return nil
}
