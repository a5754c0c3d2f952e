package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"praxis/api/internal/authz"
	"praxis/api/internal/money"
	"praxis/api/internal/notify"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

const (
	entryTypeTime    = "time"
	entryTypeExpense = "expense"

	approvalPending  = "pending"
	approvalApproved = "approved"
	approvalRejected = "rejected"

	defaultRejectReason = "no reason provided"
)

type JournalEntryInput struct {
	MatterID    string `json:"matterId"`
	EntryType   string `json:"entryType"`
	Description string `json:"description"`
	// Hours in hundredths, e.g. 150 = 1.5h. Time entries only.
	HoursHundredths int64 `json:"hoursHundredths"`
	// Rate in cents per hour; zero means the author's hourly rate.
	Rate money.Cents `json:"rate"`
	// Amount in cents. Expense entries only.
	Amount     money.Cents `json:"amount"`
	IsBillable *bool       `json:"isBillable"`
	EntryDate  *time.Time  `json:"entryDate"`
}

func (s *Service) CreateJournalEntry(ctx context.Context, session Session, input JournalEntryInput) (store.CostJournalEntry, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.CostJournalEntry{}, err
	}
	if _, err := s.visibleMatter(ctx, &user, input.MatterID); err != nil {
		return store.CostJournalEntry{}, err
	}

	entry := store.CostJournalEntry{
		ID:          util.NewID("cje"),
		MatterID:    input.MatterID,
		UserID:      session.UserID,
		EntryType:   strings.TrimSpace(input.EntryType),
		Description: strings.TrimSpace(input.Description),
		IsBillable:  true,
		EntryDate:   s.now(),
	}
	if input.IsBillable != nil {
		entry.IsBillable = *input.IsBillable
	}
	if input.EntryDate != nil {
		entry.EntryDate = *input.EntryDate
	}

	switch entry.EntryType {
	case entryTypeTime:
		if input.HoursHundredths <= 0 {
			return store.CostJournalEntry{}, errValidation("time entries need positive hours", nil)
		}
		entry.HoursHundredths = input.HoursHundredths
		entry.Rate = input.Rate
		if entry.Rate == 0 {
			entry.Rate = user.HourlyRate
		}
		entry.Amount = money.TimeAmount(entry.HoursHundredths, entry.Rate)
	case entryTypeExpense:
		if input.Amount <= 0 {
			return store.CostJournalEntry{}, errValidation("expense entries need a positive amount", nil)
		}
		entry.Amount = input.Amount
	default:
		return store.CostJournalEntry{}, errValidation("entryType must be time or expense", nil)
	}

	if err := s.store.CreateJournalEntry(ctx, entry); err != nil {
		return store.CostJournalEntry{}, err
	}
	s.recordActivity(ctx, session, "journal.created", "journal_entry", entry.ID, entry.Description)
	return s.store.GetJournalEntry(ctx, entry.ID)
}

// visibleJournalEntry hides entries from everyone but the author and admins.
func (s *Service) visibleJournalEntry(ctx context.Context, session Session, entryID string) (store.CostJournalEntry, error) {
	entry, err := s.store.GetJournalEntry(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.CostJournalEntry{}, errNotFound("journal entry not found")
	}
	if err != nil {
		return store.CostJournalEntry{}, err
	}
	if entry.UserID != session.UserID && !session.IsAdmin() {
		return store.CostJournalEntry{}, errNotFound("journal entry not found")
	}
	return entry, nil
}

func (s *Service) GetJournalEntry(ctx context.Context, session Session, id string) (store.CostJournalEntry, error) {
	return s.visibleJournalEntry(ctx, session, id)
}

func (s *Service) ListJournalEntries(ctx context.Context, session Session) ([]store.CostJournalEntry, error) {
	return s.store.ListJournalEntriesForUser(ctx, session.UserID, session.IsAdmin())
}

func (s *Service) ListMatterJournalEntries(ctx context.Context, session Session, matterID string) ([]store.CostJournalEntry, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleMatter(ctx, &user, matterID); err != nil {
		return nil, err
	}
	return s.store.ListJournalEntriesForMatter(ctx, matterID)
}

func (s *Service) UpdateJournalEntry(ctx context.Context, session Session, id string, input JournalEntryInput) (store.CostJournalEntry, error) {
	entry, err := s.visibleJournalEntry(ctx, session, id)
	if err != nil {
		return store.CostJournalEntry{}, err
	}
	if entry.IsBilled {
		return store.CostJournalEntry{}, errInvalidState("billed entries cannot be edited")
	}
	if input.Description != "" {
		entry.Description = strings.TrimSpace(input.Description)
	}
	if input.IsBillable != nil {
		entry.IsBillable = *input.IsBillable
	}
	if input.EntryDate != nil {
		entry.EntryDate = *input.EntryDate
	}
	switch entry.EntryType {
	case entryTypeTime:
		if input.HoursHundredths > 0 {
			entry.HoursHundredths = input.HoursHundredths
		}
		if input.Rate > 0 {
			entry.Rate = input.Rate
		}
		entry.Amount = money.TimeAmount(entry.HoursHundredths, entry.Rate)
	case entryTypeExpense:
		if input.Amount > 0 {
			entry.Amount = input.Amount
		}
	}
	if err := s.store.UpdateJournalEntry(ctx, entry); err != nil {
		return store.CostJournalEntry{}, err
	}
	s.recordActivity(ctx, session, "journal.updated", "journal_entry", entry.ID, entry.Description)
	return s.store.GetJournalEntry(ctx, id)
}

func (s *Service) DeleteJournalEntry(ctx context.Context, session Session, id string) error {
	entry, err := s.visibleJournalEntry(ctx, session, id)
	if err != nil {
		return err
	}
	if entry.IsBilled {
		return errInvalidState("billed entries cannot be deleted")
	}
	if err := s.store.DeleteJournalEntry(ctx, id); err != nil {
		return err
	}
	s.recordActivity(ctx, session, "journal.deleted", "journal_entry", id, entry.Description)
	return nil
}

// SubmitJournalEntry routes an entry into the approval queue. Resubmitting
// a rejected entry reuses its approval row, resetting it to pending.
func (s *Service) SubmitJournalEntry(ctx context.Context, session Session, entryID string) (store.CostJournalApproval, error) {
	entry, err := s.visibleJournalEntry(ctx, session, entryID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if entry.IsBilled {
		return store.CostJournalApproval{}, errInvalidState("entry is already billed")
	}
	if existing, err := s.store.GetApprovalByEntry(ctx, entryID); err == nil {
		if existing.Status == approvalPending {
			return store.CostJournalApproval{}, errInvalidState("entry is already awaiting approval")
		}
		if existing.Status == approvalApproved {
			return store.CostJournalApproval{}, errInvalidState("entry is already approved")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.CostJournalApproval{}, err
	}

	approverID, err := s.pickApprover(ctx, session.UserID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	approval, err := s.store.UpsertApproval(ctx, store.CostJournalApproval{
		ID:         util.NewID("apr"),
		EntryID:    entryID,
		ApproverID: approverID,
		Status:     approvalPending,
	})
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	s.recordActivity(ctx, session, "journal.submitted", "journal_entry", entryID, "")
	if approverID != session.UserID {
		s.notifyUser(ctx, approverID, notify.TopicApprovalRequest,
			"Cost journal approval requested",
			session.UserName+" submitted an entry for approval: "+entry.Description,
			"/approvals")
	}
	return approval, nil
}

// pickApprover returns the lowest-id active administrator, or the submitter
// when the firm has no active admins.
func (s *Service) pickApprover(ctx context.Context, submitterID string) (string, error) {
	admin, err := s.store.LowestIDActiveAdmin(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return submitterID, nil
		}
		return "", err
	}
	return admin.ID, nil
}

// ApproveJournalEntry resolves a pending approval and posts the billed
// amount as a client deposit. The pending check and the status flip are a
// single compare-and-set so concurrent approvers cannot both win.
func (s *Service) ApproveJournalEntry(ctx context.Context, session Session, entryID string) (store.CostJournalApproval, error) {
	approval, err := s.store.GetApprovalByEntry(ctx, entryID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if !authz.CanApproveCostJournal(&user, &approval) {
		return store.CostJournalApproval{}, errForbidden("you are not the approver for this entry")
	}
	entry, err := s.store.GetJournalEntry(ctx, entryID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	matter, err := s.store.GetMatter(ctx, entry.MatterID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if matter.ClientID == "" {
		return store.CostJournalApproval{}, errInvariant("matter has no client to bill")
	}

	won, err := s.store.TransitionApproval(ctx, approval.ID, approvalApproved, "")
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if !won {
		return store.CostJournalApproval{}, errInvalidState("approval is no longer pending")
	}

	amount := entry.Amount
	if entry.EntryType == entryTypeTime {
		amount = money.TimeAmount(entry.HoursHundredths, entry.Rate)
	}
	entryRef := entry.ID
	if err := s.store.CreateDeposit(ctx, store.Deposit{
		ID:             util.NewID("dep"),
		ClientID:       matter.ClientID,
		MatterID:       matter.ID,
		Amount:         amount,
		Source:         "journal_approval",
		JournalEntryID: &entryRef,
		Description:    entry.Description,
		RecordedBy:     session.UserID,
	}); err != nil {
		return store.CostJournalApproval{}, err
	}
	if err := s.store.MarkEntryBilled(ctx, entryID); err != nil {
		return store.CostJournalApproval{}, err
	}

	s.recordActivity(ctx, session, "journal.approved", "journal_entry", entryID, amount.String())
	if entry.UserID != session.UserID {
		s.notifyUser(ctx, entry.UserID, notify.TopicApprovalResult,
			"Cost journal entry approved",
			session.UserName+" approved your entry: "+entry.Description,
			"/journal/"+entryID)
	}
	return s.store.GetApprovalByEntry(ctx, entryID)
}

func (s *Service) RejectJournalEntry(ctx context.Context, session Session, entryID, reason string) (store.CostJournalApproval, error) {
	approval, err := s.store.GetApprovalByEntry(ctx, entryID)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if !authz.CanApproveCostJournal(&user, &approval) {
		return store.CostJournalApproval{}, errForbidden("you are not the approver for this entry")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}
	won, err := s.store.TransitionApproval(ctx, approval.ID, approvalRejected, reason)
	if err != nil {
		return store.CostJournalApproval{}, err
	}
	if !won {
		return store.CostJournalApproval{}, errInvalidState("approval is no longer pending")
	}
	entry, err := s.store.GetJournalEntry(ctx, entryID)
	if err == nil && entry.UserID != session.UserID {
		s.notifyUser(ctx, entry.UserID, notify.TopicApprovalResult,
			"Cost journal entry rejected",
			session.UserName+" rejected your entry: "+reason,
			"/journal/"+entryID)
	}
	s.recordActivity(ctx, session, "journal.rejected", "journal_entry", entryID, reason)
	return s.store.GetApprovalByEntry(ctx, entryID)
}

func (s *Service) ListPendingApprovals(ctx context.Context, session Session) ([]store.CostJournalApproval, error) {
	return s.store.ListPendingApprovalsForUser(ctx, session.UserID, session.IsAdmin())
}

func (s *Service) ListClientDeposits(ctx context.Context, session Session, clientID string) ([]store.Deposit, error) {
	if !session.IsAdmin() {
		return nil, errForbidden("only administrators can view client deposits")
	}
	return s.store.ListDepositsForClient(ctx, clientID)
}

var allowedDepositSources = map[string]struct{}{
	"manual": {},
	"refund": {},
}

type DepositInput struct {
	ClientID    string      `json:"clientId"`
	MatterID    string      `json:"matterId"`
	Amount      money.Cents `json:"amount"`
	Source      string      `json:"source"`
	Description string      `json:"description"`
}

// RecordDeposit posts a manual deposit or refund against a client balance.
// Refunds carry a negative amount; approval-sourced deposits are posted by
// ApproveJournalEntry only.
func (s *Service) RecordDeposit(ctx context.Context, session Session, input DepositInput) (store.Deposit, error) {
	if !session.IsAdmin() {
		return store.Deposit{}, errForbidden("only administrators can record deposits")
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "manual"
	}
	if _, ok := allowedDepositSources[source]; !ok {
		return store.Deposit{}, errValidation("source must be manual or refund", nil)
	}
	if source == "refund" && input.Amount >= 0 {
		return store.Deposit{}, errValidation("refunds need a negative amount", nil)
	}
	if source == "manual" && input.Amount <= 0 {
		return store.Deposit{}, errValidation("deposits need a positive amount", nil)
	}
	if _, err := s.store.GetContact(ctx, input.ClientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Deposit{}, errValidation("client does not exist", nil)
		}
		return store.Deposit{}, err
	}
	deposit := store.Deposit{
		ID:          util.NewID("dep"),
		ClientID:    input.ClientID,
		MatterID:    strings.TrimSpace(input.MatterID),
		Amount:      input.Amount,
		Source:      source,
		Description: strings.TrimSpace(input.Description),
		RecordedBy:  session.UserID,
	}
	if err := s.store.CreateDeposit(ctx, deposit); err != nil {
		return store.Deposit{}, err
	}
	s.recordActivity(ctx, session, "deposit.recorded", "deposit", deposit.ID, deposit.Amount.String())
	return deposit, nil
}
