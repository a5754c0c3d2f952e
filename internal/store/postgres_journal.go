package store

import (
	"context"
	"database/sql"
	"fmt"
)

const journalColumns = `id, matter_id, user_id, entry_type, description, hours_hundredths,
	rate_cents, amount_cents, is_billable, is_billed, entry_date, created_at, updated_at`

func scanJournalEntry(row interface{ Scan(...any) error }) (CostJournalEntry, error) {
	var e CostJournalEntry
	err := row.Scan(&e.ID, &e.MatterID, &e.UserID, &e.EntryType, &e.Description,
		&e.HoursHundredths, &e.Rate, &e.Amount, &e.IsBillable, &e.IsBilled,
		&e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) CreateJournalEntry(ctx context.Context, e CostJournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_journal_entries (id, matter_id, user_id, entry_type, description,
			hours_hundredths, rate_cents, amount_cents, is_billable, entry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.MatterID, e.UserID, e.EntryType, e.Description,
		e.HoursHundredths, e.Rate, e.Amount, e.IsBillable, e.EntryDate)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJournalEntry(ctx context.Context, id string) (CostJournalEntry, error) {
	e, err := scanJournalEntry(s.db.QueryRowContext(ctx,
		`SELECT `+journalColumns+` FROM cost_journal_entries WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return CostJournalEntry{}, err
	}
	if err != nil {
		return CostJournalEntry{}, fmt.Errorf("get journal entry: %w", err)
	}
	return e, nil
}

// ListJournalEntriesForUser returns all entries for admins, otherwise the
// user's own.
func (s *PostgresStore) ListJournalEntriesForUser(ctx context.Context, userID string, isAdmin bool) ([]CostJournalEntry, error) {
	query := `SELECT ` + journalColumns + ` FROM cost_journal_entries`
	args := []any{}
	if !isAdmin {
		query += ` WHERE user_id=$1`
		args = append(args, userID)
	}
	query += ` ORDER BY entry_date DESC, created_at DESC`
	return s.queryJournalEntries(ctx, query, args...)
}

func (s *PostgresStore) ListJournalEntriesForMatter(ctx context.Context, matterID string) ([]CostJournalEntry, error) {
	return s.queryJournalEntries(ctx,
		`SELECT `+journalColumns+` FROM cost_journal_entries WHERE matter_id=$1 ORDER BY entry_date DESC`, matterID)
}

func (s *PostgresStore) queryJournalEntries(ctx context.Context, query string, args ...any) ([]CostJournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []CostJournalEntry
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) UpdateJournalEntry(ctx context.Context, e CostJournalEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cost_journal_entries
		SET description=$2, hours_hundredths=$3, rate_cents=$4, amount_cents=$5,
			is_billable=$6, entry_date=$7, updated_at=NOW()
		WHERE id=$1
	`, e.ID, e.Description, e.HoursHundredths, e.Rate, e.Amount, e.IsBillable, e.EntryDate)
	if err != nil {
		return fmt.Errorf("update journal entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteJournalEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cost_journal_entries WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) MarkEntryBilled(ctx context.Context, entryID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cost_journal_entries SET is_billed=TRUE, updated_at=NOW() WHERE id=$1`, entryID)
	if err != nil {
		return fmt.Errorf("mark entry billed: %w", err)
	}
	return nil
}

const approvalColumns = `id, entry_id, approver_id, status, reason, resolved_at, created_at, updated_at`

func scanApproval(row interface{ Scan(...any) error }) (CostJournalApproval, error) {
	var a CostJournalApproval
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.EntryID, &a.ApproverID, &a.Status, &a.Reason,
		&resolvedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return CostJournalApproval{}, err
	}
	a.ResolvedAt = timePtr(resolvedAt)
	return a, nil
}

// UpsertApproval creates the entry's approval record or, on re-submission,
// resets the existing one back to pending in place.
func (s *PostgresStore) UpsertApproval(ctx context.Context, a CostJournalApproval) (CostJournalApproval, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cost_journal_approvals (id, entry_id, approver_id, status)
		VALUES ($1, $2, $3, 'pending')
		ON CONFLICT (entry_id) DO UPDATE
		SET approver_id=EXCLUDED.approver_id, status='pending', reason='', resolved_at=NULL, updated_at=NOW()
		RETURNING `+approvalColumns, a.ID, a.EntryID, a.ApproverID)
	saved, err := scanApproval(row)
	if err != nil {
		return CostJournalApproval{}, fmt.Errorf("upsert approval: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) GetApprovalByEntry(ctx context.Context, entryID string) (CostJournalApproval, error) {
	a, err := scanApproval(s.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM cost_journal_approvals WHERE entry_id=$1`, entryID))
	if err == sql.ErrNoRows {
		return CostJournalApproval{}, err
	}
	if err != nil {
		return CostJournalApproval{}, fmt.Errorf("get approval: %w", err)
	}
	return a, nil
}

// TransitionApproval moves the approval out of pending in a single
// conditional update. Exactly one of two concurrent callers can win;
// the loser sees ok=false.
func (s *PostgresStore) TransitionApproval(ctx context.Context, approvalID, nextStatus, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cost_journal_approvals
		SET status=$2, reason=$3, resolved_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='pending'
	`, approvalID, nextStatus, reason)
	if err != nil {
		return false, fmt.Errorf("transition approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition approval rows: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListPendingApprovalsForUser(ctx context.Context, approverID string, isAdmin bool) ([]CostJournalApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM cost_journal_approvals WHERE status='pending'`
	args := []any{}
	if !isAdmin {
		query += ` AND approver_id=$1`
		args = append(args, approverID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []CostJournalApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

const depositColumns = `id, client_id, matter_id, amount_cents, source, journal_entry_id, description, recorded_by, created_at`

func (s *PostgresStore) CreateDeposit(ctx context.Context, d Deposit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, client_id, matter_id, amount_cents, source, journal_entry_id, description, recorded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.ClientID, d.MatterID, d.Amount, d.Source, nullStringPtr(d.JournalEntryID), d.Description, d.RecordedBy)
	if err != nil {
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDepositsForClient(ctx context.Context, clientID string) ([]Deposit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE client_id=$1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	var deposits []Deposit
	for rows.Next() {
		var d Deposit
		var journalEntryID sql.NullString
		if err := rows.Scan(&d.ID, &d.ClientID, &d.MatterID, &d.Amount, &d.Source,
			&journalEntryID, &d.Description, &d.RecordedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		d.JournalEntryID = stringPtr(journalEntryID)
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}
