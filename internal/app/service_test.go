package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	"praxis/api/internal/authpw"
	"praxis/api/internal/config"
	"praxis/api/internal/email"
	"praxis/api/internal/hierarchy"
	"praxis/api/internal/mirror"
	"praxis/api/internal/money"
	"praxis/api/internal/notify"
	"praxis/api/internal/store"
)

// fakeStore is an in-memory dataStore. Behavior mirrors the Postgres
// implementation closely enough for service-level tests: missing rows are
// sql.ErrNoRows, approval transitions are compare-and-set.
type fakeStore struct {
	mu sync.Mutex

	users      map[string]store.User
	contacts   map[string]store.Contact
	matters    map[string]store.Matter
	tasks      map[string]store.Task
	entries    map[string]store.CostJournalEntry
	approvals  map[string]store.CostJournalApproval // keyed by entry ID
	deposits   []store.Deposit
	invoices   map[string]store.Invoice
	items      map[string][]store.InvoiceItem
	payments   map[string][]store.Payment
	events     map[string]store.Event
	creds      map[string]store.GoogleCredential
	chat       map[string][]store.ChatMessage
	dms        []store.DirectMessage
	notices    []store.Notification
	snapshot   *store.HierarchySnapshot
	activity   []store.ActivityLogEntry
	invoiceSeq int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]store.User),
		contacts:  make(map[string]store.Contact),
		matters:   make(map[string]store.Matter),
		tasks:     make(map[string]store.Task),
		entries:   make(map[string]store.CostJournalEntry),
		approvals: make(map[string]store.CostJournalApproval),
		invoices:  make(map[string]store.Invoice),
		items:     make(map[string][]store.InvoiceItem),
		payments:  make(map[string][]store.Payment),
		events:    make(map[string]store.Event),
		creds:     make(map[string]store.GoogleCredential),
		chat:      make(map[string][]store.ChatMessage),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, u store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return sql.ErrNoRows
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UpdateUserPreferences(_ context.Context, userID string, prefs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.Preferences = prefs
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UpdateTimerState(_ context.Context, userID string, running bool, startedAt *time.Time, elapsedMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.TimerRunning = running
	u.TimerStartedAt = startedAt
	u.TimerElapsedMs = elapsedMs
	f.users[userID] = u
	return nil
}

func (f *fakeStore) LowestIDActiveAdmin(context.Context) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *store.User
	for _, u := range f.users {
		if u.AccountType != "admin" || !u.IsActive {
			continue
		}
		u := u
		if best == nil || u.ID < best.ID {
			best = &u
		}
	}
	if best == nil {
		return store.User{}, sql.ErrNoRows
	}
	return *best, nil
}

func (f *fakeStore) CountUsers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeStore) CreateContact(_ context.Context, c store.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeStore) GetContact(_ context.Context, id string) (store.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return store.Contact{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) ListContacts(_ context.Context, kind string) ([]store.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Contact
	for _, c := range f.contacts {
		if kind == "" || c.Kind == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateContact(_ context.Context, c store.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contacts[c.ID]; !ok {
		return sql.ErrNoRows
	}
	f.contacts[c.ID] = c
	return nil
}

func (f *fakeStore) DeleteContact(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contacts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeStore) CreateMatter(_ context.Context, m store.Matter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matters[m.ID] = m
	return nil
}

func (f *fakeStore) GetMatter(_ context.Context, id string) (store.Matter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matters[id]
	if !ok {
		return store.Matter{}, sql.ErrNoRows
	}
	return m, nil
}

func matterVisible(m store.Matter, userID string) bool {
	if m.CreatedBy == userID || m.ResponsibleAttorneyID == userID {
		return true
	}
	for _, id := range m.SharedAttorneyIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (f *fakeStore) ListMattersForUser(_ context.Context, userID string, isAdmin bool) ([]store.Matter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Matter
	for _, m := range f.matters {
		if isAdmin || matterVisible(m, userID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateMatter(_ context.Context, m store.Matter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.matters[m.ID]; !ok {
		return sql.ErrNoRows
	}
	f.matters[m.ID] = m
	return nil
}

func (f *fakeStore) DeleteMatter(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.matters[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.matters, id)
	return nil
}

func (f *fakeStore) CreateTask(_ context.Context, t store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(_ context.Context, id string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) ListTasksForUser(_ context.Context, userID string, isAdmin bool) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if isAdmin || t.CreatedBy == userID || t.AssigneeID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTasksForMatter(_ context.Context, matterID string) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if t.MatterID != nil && *t.MatterID == matterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, t store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; !ok {
		return sql.ErrNoRows
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) CreateJournalEntry(_ context.Context, e store.CostJournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.ID] = e
	return nil
}

func (f *fakeStore) GetJournalEntry(_ context.Context, id string) (store.CostJournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return store.CostJournalEntry{}, sql.ErrNoRows
	}
	return e, nil
}

func (f *fakeStore) ListJournalEntriesForUser(_ context.Context, userID string, isAdmin bool) ([]store.CostJournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CostJournalEntry
	for _, e := range f.entries {
		if isAdmin || e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListJournalEntriesForMatter(_ context.Context, matterID string) ([]store.CostJournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CostJournalEntry
	for _, e := range f.entries {
		if e.MatterID == matterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateJournalEntry(_ context.Context, e store.CostJournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[e.ID]; !ok {
		return sql.ErrNoRows
	}
	f.entries[e.ID] = e
	return nil
}

func (f *fakeStore) DeleteJournalEntry(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.entries, id)
	delete(f.approvals, id)
	return nil
}

func (f *fakeStore) MarkEntryBilled(_ context.Context, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[entryID]
	if !ok {
		return sql.ErrNoRows
	}
	e.IsBilled = true
	f.entries[entryID] = e
	return nil
}

func (f *fakeStore) UpsertApproval(_ context.Context, a store.CostJournalApproval) (store.CostJournalApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.approvals[a.EntryID]; ok {
		existing.ApproverID = a.ApproverID
		existing.Status = "pending"
		existing.Reason = ""
		existing.ResolvedAt = nil
		f.approvals[a.EntryID] = existing
		return existing, nil
	}
	a.Status = "pending"
	f.approvals[a.EntryID] = a
	return a, nil
}

func (f *fakeStore) GetApprovalByEntry(_ context.Context, entryID string) (store.CostJournalApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.approvals[entryID]
	if !ok {
		return store.CostJournalApproval{}, sql.ErrNoRows
	}
	return a, nil
}

func (f *fakeStore) TransitionApproval(_ context.Context, approvalID, nextStatus, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for entryID, a := range f.approvals {
		if a.ID != approvalID {
			continue
		}
		if a.Status != "pending" {
			return false, nil
		}
		now := time.Now()
		a.Status = nextStatus
		a.Reason = reason
		a.ResolvedAt = &now
		f.approvals[entryID] = a
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) ListPendingApprovalsForUser(_ context.Context, approverID string, isAdmin bool) ([]store.CostJournalApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CostJournalApproval
	for _, a := range f.approvals {
		if a.Status != "pending" {
			continue
		}
		if isAdmin || a.ApproverID == approverID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateDeposit(_ context.Context, d store.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deposits = append(f.deposits, d)
	return nil
}

func (f *fakeStore) ListDepositsForClient(_ context.Context, clientID string) ([]store.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Deposit
	for _, d := range f.deposits {
		if d.ClientID == clientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateInvoice(_ context.Context, inv store.Invoice, items []store.InvoiceItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[inv.ID] = inv
	f.items[inv.ID] = items
	return nil
}

func (f *fakeStore) GetInvoice(_ context.Context, id string) (store.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return store.Invoice{}, sql.ErrNoRows
	}
	return inv, nil
}

func (f *fakeStore) ListInvoiceItems(_ context.Context, invoiceID string) ([]store.InvoiceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[invoiceID], nil
}

func (f *fakeStore) ListInvoicesForUser(_ context.Context, userID string, isAdmin bool) ([]store.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Invoice
	for _, inv := range f.invoices {
		m, ok := f.matters[inv.MatterID]
		if isAdmin || (ok && matterVisible(m, userID)) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateInvoiceStatus(_ context.Context, invoiceID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return sql.ErrNoRows
	}
	inv.Status = status
	f.invoices[invoiceID] = inv
	return nil
}

func (f *fakeStore) DeleteInvoice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.invoices, id)
	delete(f.items, id)
	return nil
}

func (f *fakeStore) RecordPayment(_ context.Context, p store.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[p.InvoiceID]
	if !ok {
		return sql.ErrNoRows
	}
	f.payments[p.InvoiceID] = append(f.payments[p.InvoiceID], p)
	inv.PaidAmount += p.Amount
	if inv.PaidAmount >= inv.TotalAmount {
		inv.Status = "paid"
	} else {
		inv.Status = "partial"
	}
	f.invoices[p.InvoiceID] = inv
	return nil
}

func (f *fakeStore) ListPayments(_ context.Context, invoiceID string) ([]store.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[invoiceID], nil
}

func (f *fakeStore) NextInvoiceNumber(_ context.Context, year int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoiceSeq++
	return fmt.Sprintf("INV-%d-%04d", year, f.invoiceSeq), nil
}

func (f *fakeStore) CreateEvent(_ context.Context, ev store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) GetEvent(_ context.Context, id string) (store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return store.Event{}, sql.ErrNoRows
	}
	return ev, nil
}

func (f *fakeStore) GetEventByGoogleID(_ context.Context, ownerID, googleEventID string) (store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.OwnerID == ownerID && ev.GoogleEventID == googleEventID {
			return ev, nil
		}
	}
	return store.Event{}, sql.ErrNoRows
}

func (f *fakeStore) ListEventsForUser(_ context.Context, userID string, from, to time.Time) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Event
	for _, ev := range f.events {
		owner := ev.OwnerID == userID
		attendee := false
		for _, id := range ev.AttendeeIDs {
			if id == userID {
				attendee = true
			}
		}
		if (owner || attendee) && ev.StartsAt.Before(to) && ev.EndsAt.After(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOwnedEventsInWindow(_ context.Context, ownerID string, from, to time.Time) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Event
	for _, ev := range f.events {
		if ev.OwnerID == ownerID && ev.StartsAt.Before(to) && ev.EndsAt.After(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, ev store.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[ev.ID]; !ok {
		return sql.ErrNoRows
	}
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.events, id)
	return nil
}

func (f *fakeStore) SaveGoogleCredential(_ context.Context, c store.GoogleCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[c.UserID] = c
	return nil
}

func (f *fakeStore) GetGoogleCredential(_ context.Context, userID string) (store.GoogleCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[userID]
	if !ok {
		return store.GoogleCredential{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) DeleteGoogleCredential(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, userID)
	return nil
}

func (f *fakeStore) CreateChatMessage(_ context.Context, m store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chat[m.MatterID] = append(f.chat[m.MatterID], m)
	return nil
}

func (f *fakeStore) ListChatMessages(_ context.Context, matterID string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.chat[matterID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeStore) CreateDirectMessage(_ context.Context, m store.DirectMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, m)
	return nil
}

func (f *fakeStore) ListDirectMessages(_ context.Context, userA, userB string, limit int) ([]store.DirectMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.DirectMessage
	for _, m := range f.dms {
		if (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListConversations(_ context.Context, userID string) ([]store.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) MarkConversationRead(_ context.Context, userID, peerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i, m := range f.dms {
		if m.RecipientID == userID && m.SenderID == peerID && m.ReadAt == nil {
			f.dms[i].ReadAt = &now
		}
	}
	return nil
}

func (f *fakeStore) CountUnreadDirectMessages(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.dms {
		if m.RecipientID == userID && m.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) SaveHierarchySnapshot(_ context.Context, snap store.HierarchySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = &snap
	return nil
}

func (f *fakeStore) GetActiveHierarchy(context.Context) (store.HierarchySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return store.HierarchySnapshot{}, sql.ErrNoRows
	}
	return *f.snapshot, nil
}

func (f *fakeStore) ListHierarchySnapshots(_ context.Context, limit int) ([]store.HierarchySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return nil, nil
	}
	return []store.HierarchySnapshot{*f.snapshot}, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, n := range f.notices {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i, n := range f.notices {
		if n.ID == notificationID && n.UserID == userID {
			f.notices[i].ReadAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i, n := range f.notices {
		if n.UserID == userID && n.ReadAt == nil {
			f.notices[i].ReadAt = &now
		}
	}
	return nil
}

func (f *fakeStore) InsertActivity(_ context.Context, e store.ActivityLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, e)
	return nil
}

func (f *fakeStore) ListActivity(_ context.Context, limit int) ([]store.ActivityLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activity, nil
}

func (f *fakeStore) notificationsFor(userID string) []store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, n := range f.notices {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// fakeSessions is an in-memory refresh-session store.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

// fakeSender records outbound email instead of delivering it.
type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) IsConfigured() bool { return true }

func (f *fakeSender) SendEmail(to []string, subject, body string) error {
	return f.SendHTMLEmail(to, subject, body)
}

func (f *fakeSender) SendHTMLEmail(to []string, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, subject)
	return nil
}

func (f *fakeSender) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

var _ email.Sender = (*fakeSender)(nil)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		FirmName:   "Praxis Test",
		AppBaseURL: "http://localhost:8080",
	}
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeSender) {
	t.Helper()
	fake := newFakeStore()
	sender := &fakeSender{}
	quiet := log.New(io.Discard, "", 0)
	svc := &Service{
		cfg:       testConfig(),
		store:     fake,
		sessions:  newFakeSessions(),
		passwords: authpw.NewService(fake),
		notify:    notify.NewDispatcher(sender, "Praxis Test", "http://localhost:8080", quiet),
		mirror:    mirror.Disabled{},
		logger:    quiet,
		nowFn:     time.Now,
	}
	svc.roles = hierarchy.NewCache(svc.loadForest)
	svc.newGCal = func(context.Context, string, string) calendarAPI { return nil }
	return svc, fake, sender
}

func seedUser(t *testing.T, fake *fakeStore, id, name, accountType string, rate money.Cents) Session {
	t.Helper()
	fake.users[id] = store.User{
		ID:          id,
		DisplayName: name,
		Email:       id + "@praxis.test",
		AccountType: accountType,
		HourlyRate:  rate,
		IsActive:    true,
		Preferences: map[string]any{},
	}
	return Session{UserID: id, UserName: name, AccountType: accountType}
}

func seedMatter(t *testing.T, fake *fakeStore, id, clientID, createdBy, responsible string) store.Matter {
	t.Helper()
	m := store.Matter{
		ID:                    id,
		Title:                 "Matter " + id,
		Status:                "open",
		ClientID:              clientID,
		ResponsibleAttorneyID: responsible,
		CreatedBy:             createdBy,
	}
	fake.matters[id] = m
	return m
}

func TestSignInAndRefreshRotation(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	hash, err := authpw.HashPassword("hunter2-hunter2")
	if err != nil {
		t.Fatal(err)
	}
	fake.users["usr-1"] = store.User{
		ID:           "usr-1",
		DisplayName:  "Avery",
		Email:        "avery@praxis.test",
		PasswordHash: hash,
		AccountType:  "admin",
		IsActive:     true,
	}

	session, err := svc.SignIn(ctx, "avery@praxis.test", "hunter2-hunter2")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected token and refresh token")
	}
	if session.AccountType != "admin" {
		t.Fatalf("accountType = %q", session.AccountType)
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != "usr-1" {
		t.Fatalf("UserID = %q", parsed.UserID)
	}

	rotated, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("old refresh token should be revoked")
	}
}

func TestSessionRejectsDeactivatedUser(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	session := seedUser(t, fake, "usr-1", "Avery", "staff", 0)
	issued, err := svc.issueSession(ctx, fake.users["usr-1"])
	if err != nil {
		t.Fatal(err)
	}
	u := fake.users[session.UserID]
	u.IsActive = false
	fake.users[session.UserID] = u

	if _, err := svc.SessionFromToken(ctx, issued.Token); err == nil {
		t.Fatal("deactivated user should not pass token validation")
	}
	if _, err := svc.Refresh(ctx, issued.RefreshToken); err == nil {
		t.Fatal("deactivated user should not refresh")
	}
}

func TestBootstrapSeedsOnce(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	users, _ := fake.ListUsers(ctx)
	if len(users) == 0 {
		t.Fatal("expected seeded users")
	}
	if fake.snapshot == nil {
		t.Fatal("expected seeded hierarchy snapshot")
	}
	before := len(users)

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	users, _ = fake.ListUsers(ctx)
	if len(users) != before {
		t.Fatalf("second bootstrap added users: %d != %d", len(users), before)
	}
}
