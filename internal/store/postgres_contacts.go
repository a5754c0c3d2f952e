package store

import (
	"context"
	"database/sql"
	"fmt"
)

const contactColumns = `id, display_name, email, phone, company, address, kind, notes, created_by, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.DisplayName, &c.Email, &c.Phone, &c.Company, &c.Address,
		&c.Kind, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) CreateContact(ctx context.Context, c Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, display_name, email, phone, company, address, kind, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.DisplayName, c.Email, c.Phone, c.Company, c.Address, c.Kind, c.Notes, c.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (Contact, error) {
	c, err := scanContact(s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return Contact{}, err
	}
	if err != nil {
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// ListContacts returns contacts, optionally filtered by kind ("" = all).
func (s *PostgresStore) ListContacts(ctx context.Context, kind string) ([]Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind=$1`
		args = append(args, kind)
	}
	query += ` ORDER BY display_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c Contact) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET display_name=$2, email=$3, phone=$4, company=$5, address=$6, kind=$7, notes=$8, updated_at=NOW()
		WHERE id=$1
	`, c.ID, c.DisplayName, c.Email, c.Phone, c.Company, c.Address, c.Kind, c.Notes)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
