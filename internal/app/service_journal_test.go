package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"praxis/api/internal/money"
	"praxis/api/internal/store"
)

func seedTimeEntry(t *testing.T, fake *fakeStore, id, matterID, userID string, hoursHundredths int64, rate int64) store.CostJournalEntry {
	t.Helper()
	entry := store.CostJournalEntry{
		ID:              id,
		MatterID:        matterID,
		UserID:          userID,
		EntryType:       "time",
		Description:     "drafting",
		HoursHundredths: hoursHundredths,
		Rate:            cents(rate),
		IsBillable:      true,
	}
	fake.entries[id] = entry
	return entry
}

func TestApprovalLifecyclePostsDeposit(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	admin := seedUser(t, fake, "usr-admin", "Alex", "admin", 35000)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 9000)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", DisplayName: "Harbor", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)

	// 2.00 hours at $100.00/h.
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 200, 10000)

	approval, err := svc.SubmitJournalEntry(ctx, staff, "cje-1")
	if err != nil {
		t.Fatalf("SubmitJournalEntry: %v", err)
	}
	if approval.ApproverID != admin.UserID {
		t.Fatalf("approver = %q, want lowest-id active admin %q", approval.ApproverID, admin.UserID)
	}
	if approval.Status != "pending" {
		t.Fatalf("status = %q", approval.Status)
	}

	resolved, err := svc.ApproveJournalEntry(ctx, admin, "cje-1")
	if err != nil {
		t.Fatalf("ApproveJournalEntry: %v", err)
	}
	if resolved.Status != "approved" {
		t.Fatalf("status = %q", resolved.Status)
	}

	deposits, err := fake.ListDepositsForClient(ctx, "cnt-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(deposits) != 1 {
		t.Fatalf("deposits = %d, want 1", len(deposits))
	}
	if got := deposits[0].Amount; got != cents(20000) {
		t.Fatalf("deposit amount = %s, want 200.00", got)
	}
	if deposits[0].Source != "journal_approval" {
		t.Fatalf("deposit source = %q", deposits[0].Source)
	}
	if deposits[0].JournalEntryID == nil || *deposits[0].JournalEntryID != "cje-1" {
		t.Fatal("deposit should reference the journal entry")
	}

	entry, _ := fake.GetJournalEntry(ctx, "cje-1")
	if !entry.IsBilled {
		t.Fatal("entry should be marked billed")
	}

	// The approval is resolved; a second approve must not post twice.
	if _, err := svc.ApproveJournalEntry(ctx, admin, "cje-1"); !isCode(err, "INVALID_STATE") {
		t.Fatalf("second approve err = %v, want INVALID_STATE", err)
	}
	deposits, _ = fake.ListDepositsForClient(ctx, "cnt-1")
	if len(deposits) != 1 {
		t.Fatalf("deposits after double approve = %d, want 1", len(deposits))
	}
}

func TestConcurrentApprovalsSingleWinner(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	admin := seedUser(t, fake, "usr-admin", "Alex", "admin", 0)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 10000)

	if _, err := svc.SubmitJournalEntry(ctx, staff, "cje-1"); err != nil {
		t.Fatal(err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApproveJournalEntry(ctx, admin, "cje-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("winners = %d, want exactly 1", won)
	}
	deposits, _ := fake.ListDepositsForClient(ctx, "cnt-1")
	if len(deposits) != 1 {
		t.Fatalf("deposits = %d, want 1", len(deposits))
	}
}

func TestRejectThenResubmitReusesApproval(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	admin := seedUser(t, fake, "usr-admin", "Alex", "admin", 0)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	if _, err := svc.SubmitJournalEntry(ctx, staff, "cje-1"); err != nil {
		t.Fatal(err)
	}
	rejected, err := svc.RejectJournalEntry(ctx, admin, "cje-1", "")
	if err != nil {
		t.Fatalf("RejectJournalEntry: %v", err)
	}
	if rejected.Status != "rejected" {
		t.Fatalf("status = %q", rejected.Status)
	}
	if rejected.Reason != "no reason provided" {
		t.Fatalf("reason = %q, want default", rejected.Reason)
	}

	resubmitted, err := svc.SubmitJournalEntry(ctx, staff, "cje-1")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if resubmitted.ID != rejected.ID {
		t.Fatal("resubmission should reuse the approval row")
	}
	if resubmitted.Status != "pending" || resubmitted.Reason != "" || resubmitted.ResolvedAt != nil {
		t.Fatalf("resubmitted approval not reset: %+v", resubmitted)
	}
}

func TestApproverFallsBackToSubmitter(t *testing.T) {
	svc, fake, sender := newTestService(t)
	ctx := context.Background()

	// No admins at all.
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	approval, err := svc.SubmitJournalEntry(ctx, staff, "cje-1")
	if err != nil {
		t.Fatal(err)
	}
	if approval.ApproverID != staff.UserID {
		t.Fatalf("approver = %q, want submitter", approval.ApproverID)
	}
	// Self-approval routing sends no request notification.
	if got := sender.subjects(); len(got) != 0 {
		t.Fatalf("unexpected notifications: %v", got)
	}
	if n := fake.notificationsFor(staff.UserID); len(n) != 0 {
		t.Fatalf("unexpected in-app notifications: %v", n)
	}
}

func TestApproveRequiresApprover(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	seedUser(t, fake, "usr-admin", "Alex", "admin", 0)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	other := seedUser(t, fake, "usr-other", "Sam", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	if _, err := svc.SubmitJournalEntry(ctx, staff, "cje-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApproveJournalEntry(ctx, other, "cje-1"); !isCode(err, "FORBIDDEN") {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
}

func TestApproveWithoutClientIsInvariantViolation(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	admin := seedUser(t, fake, "usr-admin", "Alex", "admin", 0)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	seedMatter(t, fake, "mtr-1", "", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	if _, err := svc.SubmitJournalEntry(ctx, staff, "cje-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApproveJournalEntry(ctx, admin, "cje-1"); !isCode(err, "INVARIANT_VIOLATION") {
		t.Fatalf("err = %v, want INVARIANT_VIOLATION", err)
	}
	// The approval must still be pending: no partial resolution.
	approval, _ := fake.GetApprovalByEntry(ctx, "cje-1")
	if approval.Status != "pending" {
		t.Fatalf("approval status = %q, want pending", approval.Status)
	}
}

func TestJournalEntryHiddenFromStrangers(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	stranger := seedUser(t, fake, "usr-other", "Sam", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	if _, err := svc.GetJournalEntry(ctx, stranger, "cje-1"); !isCode(err, "NOT_FOUND") {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if _, err := svc.SubmitJournalEntry(ctx, stranger, "cje-1"); !isCode(err, "NOT_FOUND") {
		t.Fatalf("submit err = %v, want NOT_FOUND", err)
	}
}

func TestTimeEntryAmountUsesAuthorRate(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 12550)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)

	entry, err := svc.CreateJournalEntry(ctx, staff, JournalEntryInput{
		MatterID:        "mtr-1",
		EntryType:       "time",
		Description:     "research",
		HoursHundredths: 150, // 1.5h at 125.50/h = 188.25
	})
	if err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}
	if entry.Rate != cents(12550) {
		t.Fatalf("rate = %s, want author's hourly rate", entry.Rate)
	}
	if entry.Amount != cents(18825) {
		t.Fatalf("amount = %s, want 188.25", entry.Amount)
	}
}

func TestDeleteJournalEntryBlocksBilled(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", Kind: "client"}
	seedMatter(t, fake, "mtr-1", "cnt-1", staff.UserID, staff.UserID)
	entry := seedTimeEntry(t, fake, "cje-1", "mtr-1", staff.UserID, 100, 5000)

	entry.IsBilled = true
	fake.entries[entry.ID] = entry
	if err := svc.DeleteJournalEntry(ctx, staff, entry.ID); !isCode(err, "INVALID_STATE") {
		t.Fatalf("delete billed err = %v, want INVALID_STATE", err)
	}

	entry.IsBilled = false
	fake.entries[entry.ID] = entry
	if err := svc.DeleteJournalEntry(ctx, staff, entry.ID); err != nil {
		t.Fatalf("DeleteJournalEntry: %v", err)
	}
	if _, ok := fake.entries[entry.ID]; ok {
		t.Fatal("entry still present after delete")
	}
}

func TestManualDepositsAndRefunds(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	admin := seedUser(t, fake, "usr-admin", "Alex", "admin", 0)
	staff := seedUser(t, fake, "usr-staff", "Priya", "paralegal", 0)
	fake.contacts["cnt-1"] = store.Contact{ID: "cnt-1", DisplayName: "Harbor", Kind: "client"}

	if _, err := svc.RecordDeposit(ctx, staff, DepositInput{ClientID: "cnt-1", Amount: cents(10000)}); !isCode(err, "FORBIDDEN") {
		t.Fatalf("non-admin deposit err = %v, want FORBIDDEN", err)
	}
	if _, err := svc.RecordDeposit(ctx, admin, DepositInput{ClientID: "cnt-missing", Amount: cents(10000)}); !isCode(err, "VALIDATION_ERROR") {
		t.Fatalf("unknown client err = %v, want VALIDATION_ERROR", err)
	}
	if _, err := svc.RecordDeposit(ctx, admin, DepositInput{ClientID: "cnt-1", Amount: cents(-100)}); !isCode(err, "VALIDATION_ERROR") {
		t.Fatalf("negative manual deposit err = %v, want VALIDATION_ERROR", err)
	}
	if _, err := svc.RecordDeposit(ctx, admin, DepositInput{ClientID: "cnt-1", Amount: cents(100), Source: "refund"}); !isCode(err, "VALIDATION_ERROR") {
		t.Fatalf("positive refund err = %v, want VALIDATION_ERROR", err)
	}

	dep, err := svc.RecordDeposit(ctx, admin, DepositInput{ClientID: "cnt-1", Amount: cents(25000), Description: "retainer"})
	if err != nil {
		t.Fatalf("RecordDeposit: %v", err)
	}
	if dep.Source != "manual" {
		t.Fatalf("source = %q, want manual", dep.Source)
	}
	refund, err := svc.RecordDeposit(ctx, admin, DepositInput{ClientID: "cnt-1", Amount: cents(-5000), Source: "refund"})
	if err != nil {
		t.Fatalf("RecordDeposit refund: %v", err)
	}
	if refund.Source != "refund" {
		t.Fatalf("source = %q, want refund", refund.Source)
	}

	deposits, err := svc.ListClientDeposits(ctx, admin, "cnt-1")
	if err != nil {
		t.Fatalf("ListClientDeposits: %v", err)
	}
	if len(deposits) != 2 {
		t.Fatalf("deposits = %d, want 2", len(deposits))
	}
	var balance money.Cents
	for _, d := range deposits {
		balance += d.Amount
	}
	if balance != cents(20000) {
		t.Fatalf("balance = %s, want 200.00", balance)
	}
}

func isCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

func cents(v int64) money.Cents { return money.Cents(v) }
