package store

import (
	"context"
	"database/sql"
	"fmt"
)

const invoiceColumns = `i.id, i.invoice_number, i.matter_id, i.client_id, i.status, i.issue_date, i.due_date,
	i.subtotal_cents, i.tax_rate_bps, i.tax_amount_cents, i.discount_cents, i.total_cents, i.paid_cents,
	i.notes, i.created_by, i.created_at, i.updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.MatterID, &inv.ClientID, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.TaxRateBps, &inv.TaxAmount,
		&inv.DiscountAmount, &inv.TotalAmount, &inv.PaidAmount, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

// CreateInvoice inserts the invoice and its line items in one transaction.
func (s *PostgresStore) CreateInvoice(ctx context.Context, inv Invoice, items []InvoiceItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create invoice: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, matter_id, client_id, status, issue_date, due_date,
			subtotal_cents, tax_rate_bps, tax_amount_cents, discount_cents, total_cents, paid_cents, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, inv.ID, inv.InvoiceNumber, inv.MatterID, inv.ClientID, inv.Status, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.TaxRateBps, inv.TaxAmount, inv.DiscountAmount, inv.TotalAmount, inv.PaidAmount,
		inv.Notes, inv.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, quantity_hundredths, unit_price_cents,
				amount_cents, journal_entry_id, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, inv.ID, item.Description, item.Quantity, item.UnitPrice,
			item.Amount, nullStringPtr(item.JournalEntryID), item.SortOrder); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices i WHERE i.id=$1`, id))
	if err == sql.ErrNoRows {
		return Invoice{}, err
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvoiceItems(ctx context.Context, invoiceID string) ([]InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, quantity_hundredths, unit_price_cents, amount_cents, journal_entry_id, sort_order
		FROM invoice_items WHERE invoice_id=$1 ORDER BY sort_order, id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()

	var items []InvoiceItem
	for rows.Next() {
		var item InvoiceItem
		var journalEntryID sql.NullString
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity,
			&item.UnitPrice, &item.Amount, &journalEntryID, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		item.JournalEntryID = stringPtr(journalEntryID)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListInvoicesForUser returns all invoices for admins; otherwise invoices
// on matters the user can see. Invoices outside the visible set are simply
// absent, never a denial.
func (s *PostgresStore) ListInvoicesForUser(ctx context.Context, userID string, isAdmin bool) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices i`
	args := []any{}
	if !isAdmin {
		query += ` JOIN matters m ON m.id = i.matter_id
			WHERE m.created_by=$1 OR m.responsible_attorney_id=$1
			OR EXISTS (SELECT 1 FROM matter_attorneys ma WHERE ma.matter_id=m.id AND ma.user_id=$1)`
		args = append(args, userID)
	}
	query += ` ORDER BY i.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *PostgresStore) UpdateInvoiceStatus(ctx context.Context, invoiceID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status=$2, updated_at=NOW() WHERE id=$1`, invoiceID, status)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordPayment inserts the payment and folds it into the invoice's paid
// amount and status in one transaction. The increment happens in SQL so
// concurrent payments cannot lose each other's amounts.
func (s *PostgresStore) RecordPayment(ctx context.Context, p Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record payment: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, amount_cents, method, reference, proof_object, paid_at, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.InvoiceID, p.Amount, p.Method, p.Reference, p.ProofObject, p.PaidAt, p.RecordedBy)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET paid_cents = paid_cents + $2,
			status = CASE WHEN paid_cents + $2 >= total_cents THEN 'paid' ELSE 'partial' END,
			updated_at = NOW()
		WHERE id=$1
	`, p.InvoiceID, p.Amount)
	if err != nil {
		return fmt.Errorf("update invoice paid amount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

func (s *PostgresStore) ListPayments(ctx context.Context, invoiceID string) ([]Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, amount_cents, method, reference, proof_object, paid_at, recorded_by, created_at
		FROM payments WHERE invoice_id=$1 ORDER BY paid_at DESC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference,
			&p.ProofObject, &p.PaidAt, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// NextInvoiceNumber allocates a sequential display number like INV-2026-0042.
func (s *PostgresStore) NextInvoiceNumber(ctx context.Context, year int) (string, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (year, last_seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = invoice_counters.last_seq + 1
		RETURNING last_seq
	`, year).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%d-%04d", year, seq), nil
}
