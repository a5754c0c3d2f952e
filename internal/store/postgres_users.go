package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, display_name, email, password_hash, account_type, phone, avatar_object,
	hourly_rate_cents, is_active, preferences, timer_running, timer_started_at, timer_elapsed_ms,
	created_at, updated_at`

func (s *PostgresStore) scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var prefs []byte
	var startedAt sql.NullTime
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.AccountType,
		&u.Phone, &u.AvatarObject, &u.HourlyRate, &u.IsActive, &prefs,
		&u.TimerRunning, &startedAt, &u.TimerElapsedMs, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.TimerStartedAt = timePtr(startedAt)
	if u.Preferences, err = unmarshalPrefs(prefs); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	prefs, err := marshalPrefs(u.Preferences)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, account_type, phone,
			avatar_object, hourly_rate_cents, is_active, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.AccountType, u.Phone,
		u.AvatarObject, u.HourlyRate, u.IsActive, prefs)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	u, err := s.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	u, err := s.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u User) error {
	prefs, err := marshalPrefs(u.Preferences)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET display_name=$2, email=$3, account_type=$4, phone=$5, avatar_object=$6,
			hourly_rate_cents=$7, is_active=$8, preferences=$9, updated_at=NOW()
		WHERE id=$1
	`, u.ID, u.DisplayName, u.Email, u.AccountType, u.Phone, u.AvatarObject,
		u.HourlyRate, u.IsActive, prefs)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	raw, err := marshalPrefs(prefs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET preferences=$2, updated_at=NOW() WHERE id=$1`, userID, raw)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}

// UpdateTimerState persists the three timer fields for one user.
func (s *PostgresStore) UpdateTimerState(ctx context.Context, userID string, running bool, startedAt *time.Time, elapsedMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET timer_running=$2, timer_started_at=$3, timer_elapsed_ms=$4, updated_at=NOW()
		WHERE id=$1
	`, userID, running, nullTimePtr(startedAt), elapsedMs)
	if err != nil {
		return fmt.Errorf("update timer state: %w", err)
	}
	return nil
}

// LowestIDActiveAdmin returns the active admin with the smallest id, used
// as the default approver for cost-journal submissions.
func (s *PostgresStore) LowestIDActiveAdmin(ctx context.Context) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE account_type='admin' AND is_active
		ORDER BY id ASC LIMIT 1
	`)
	u, err := s.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	if err != nil {
		return User{}, fmt.Errorf("find admin: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
