package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"praxis/api/internal/authz"
	"praxis/api/internal/export"
	"praxis/api/internal/mirror"
	"praxis/api/internal/money"
	"praxis/api/internal/notify"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

const (
	invoiceDraft   = "draft"
	invoiceSent    = "sent"
	invoicePartial = "partial"
	invoicePaid    = "paid"
	invoiceVoid    = "void"
)

var allowedPaymentMethods = map[string]struct{}{
	"cash":          {},
	"check":         {},
	"card":          {},
	"bank_transfer": {},
	"other":         {},
}

type InvoiceItemInput struct {
	Description string `json:"description"`
	// Quantity in hundredths, e.g. 150 = 1.5 units.
	Quantity       int64       `json:"quantity"`
	UnitPrice      money.Cents `json:"unitPrice"`
	JournalEntryID string      `json:"journalEntryId"`
}

type InvoiceInput struct {
	MatterID       string             `json:"matterId"`
	Items          []InvoiceItemInput `json:"items"`
	TaxRateBps     int64              `json:"taxRateBps"`
	DiscountAmount money.Cents        `json:"discountAmount"`
	DueDate        *time.Time         `json:"dueDate"`
	Notes          string             `json:"notes"`
}

func (s *Service) CreateInvoice(ctx context.Context, session Session, input InvoiceInput) (store.Invoice, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Invoice{}, err
	}
	matter, err := s.visibleMatter(ctx, &user, input.MatterID)
	if err != nil {
		return store.Invoice{}, err
	}
	if len(input.Items) == 0 {
		return store.Invoice{}, errValidation("an invoice needs at least one line item", nil)
	}
	if input.TaxRateBps < 0 {
		return store.Invoice{}, errValidation("taxRateBps cannot be negative", nil)
	}
	if input.DiscountAmount < 0 {
		return store.Invoice{}, errValidation("discountAmount cannot be negative", nil)
	}

	invoiceID := util.NewID("inv")
	var subtotal money.Cents
	items := make([]store.InvoiceItem, 0, len(input.Items))
	for i, in := range input.Items {
		if strings.TrimSpace(in.Description) == "" {
			return store.Invoice{}, errValidation("line item description is required", map[string]any{"index": i})
		}
		if in.Quantity <= 0 {
			return store.Invoice{}, errValidation("line item quantity must be positive", map[string]any{"index": i})
		}
		amount := money.TimeAmount(in.Quantity, in.UnitPrice)
		subtotal += amount
		var entryRef *string
		if id := strings.TrimSpace(in.JournalEntryID); id != "" {
			entryRef = &id
		}
		items = append(items, store.InvoiceItem{
			ID:             util.NewID("itm"),
			InvoiceID:      invoiceID,
			Description:    strings.TrimSpace(in.Description),
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			Amount:         amount,
			JournalEntryID: entryRef,
			SortOrder:      i,
		})
	}

	tax := money.TaxAmount(subtotal, input.TaxRateBps)
	total := money.InvoiceTotal(subtotal, tax, input.DiscountAmount)
	if total < 0 {
		return store.Invoice{}, errValidation("discount exceeds the invoice total", nil)
	}

	now := s.now()
	number, err := s.store.NextInvoiceNumber(ctx, now.Year())
	if err != nil {
		return store.Invoice{}, err
	}
	dueDate := now.AddDate(0, 0, 30)
	if input.DueDate != nil {
		dueDate = *input.DueDate
	}
	invoice := store.Invoice{
		ID:             invoiceID,
		InvoiceNumber:  number,
		MatterID:       matter.ID,
		ClientID:       matter.ClientID,
		Status:         invoiceDraft,
		IssueDate:      now,
		DueDate:        dueDate,
		Subtotal:       subtotal,
		TaxRateBps:     input.TaxRateBps,
		TaxAmount:      tax,
		DiscountAmount: input.DiscountAmount,
		TotalAmount:    total,
		Notes:          input.Notes,
		CreatedBy:      session.UserID,
	}
	if err := s.store.CreateInvoice(ctx, invoice, items); err != nil {
		return store.Invoice{}, err
	}
	s.mirrorUpsert(mirror.RecordInvoice, invoiceRecord(invoice))
	s.recordActivity(ctx, session, "invoice.created", "invoice", invoice.ID, number)
	if matter.ResponsibleAttorneyID != "" && matter.ResponsibleAttorneyID != session.UserID {
		s.notifyUser(ctx, matter.ResponsibleAttorneyID, notify.TopicInvoiceCreated,
			"Invoice "+number+" created",
			session.UserName+" created invoice "+number+" for "+matter.Title+" ("+total.String()+").",
			"/invoices/"+invoice.ID)
	}
	return s.store.GetInvoice(ctx, invoice.ID)
}

// visibleInvoice resolves an invoice through the viewer's matter access.
// Invoices outside the visible set read as absent, not forbidden.
func (s *Service) visibleInvoice(ctx context.Context, session Session, invoiceID string) (store.Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, invoiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Invoice{}, errNotFound("invoice not found")
	}
	if err != nil {
		return store.Invoice{}, err
	}
	if session.IsAdmin() {
		return invoice, nil
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Invoice{}, err
	}
	matter, err := s.store.GetMatter(ctx, invoice.MatterID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Invoice{}, errNotFound("invoice not found")
	}
	if err != nil {
		return store.Invoice{}, err
	}
	if !authz.CanViewMatter(&user, &matter) {
		return store.Invoice{}, errNotFound("invoice not found")
	}
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, session Session, id string) (store.Invoice, []store.InvoiceItem, error) {
	invoice, err := s.visibleInvoice(ctx, session, id)
	if err != nil {
		return store.Invoice{}, nil, err
	}
	items, err := s.store.ListInvoiceItems(ctx, id)
	if err != nil {
		return store.Invoice{}, nil, err
	}
	return invoice, items, nil
}

func (s *Service) ListInvoices(ctx context.Context, session Session) ([]store.Invoice, error) {
	return s.store.ListInvoicesForUser(ctx, session.UserID, session.IsAdmin())
}

func (s *Service) SendInvoice(ctx context.Context, session Session, id string) (store.Invoice, error) {
	invoice, err := s.visibleInvoice(ctx, session, id)
	if err != nil {
		return store.Invoice{}, err
	}
	if invoice.Status != invoiceDraft {
		return store.Invoice{}, errInvalidState("only draft invoices can be sent")
	}
	if err := s.store.UpdateInvoiceStatus(ctx, id, invoiceSent); err != nil {
		return store.Invoice{}, err
	}
	s.recordActivity(ctx, session, "invoice.sent", "invoice", id, invoice.InvoiceNumber)
	return s.store.GetInvoice(ctx, id)
}

func (s *Service) VoidInvoice(ctx context.Context, session Session, id string) (store.Invoice, error) {
	invoice, err := s.visibleInvoice(ctx, session, id)
	if err != nil {
		return store.Invoice{}, err
	}
	if invoice.PaidAmount > 0 {
		return store.Invoice{}, errInvalidState("invoices with recorded payments cannot be voided")
	}
	if invoice.Status == invoiceVoid {
		return store.Invoice{}, errInvalidState("invoice is already void")
	}
	if err := s.store.UpdateInvoiceStatus(ctx, id, invoiceVoid); err != nil {
		return store.Invoice{}, err
	}
	s.recordActivity(ctx, session, "invoice.voided", "invoice", id, invoice.InvoiceNumber)
	return s.store.GetInvoice(ctx, id)
}

// DeleteInvoice removes a draft that was never sent. Anything past draft
// stays on the books and can only be voided.
func (s *Service) DeleteInvoice(ctx context.Context, session Session, id string) error {
	invoice, err := s.visibleInvoice(ctx, session, id)
	if err != nil {
		return err
	}
	if invoice.Status != invoiceDraft {
		return errInvalidState("only draft invoices can be deleted")
	}
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.mirrorDelete(mirror.RecordInvoice, id)
	s.recordActivity(ctx, session, "invoice.deleted", "invoice", id, invoice.InvoiceNumber)
	return nil
}

type PaymentInput struct {
	Amount      money.Cents `json:"amount"`
	Method      string      `json:"method"`
	Reference   string      `json:"reference"`
	ProofObject string      `json:"proofObject"`
	PaidAt      *time.Time  `json:"paidAt"`
}

// RecordPayment applies a payment and rolls the invoice status forward:
// paid when the running total covers the invoice, partial otherwise.
func (s *Service) RecordPayment(ctx context.Context, session Session, invoiceID string, input PaymentInput) (store.Invoice, error) {
	invoice, err := s.visibleInvoice(ctx, session, invoiceID)
	if err != nil {
		return store.Invoice{}, err
	}
	if invoice.Status == invoiceVoid {
		return store.Invoice{}, errInvalidState("void invoices cannot take payments")
	}
	if invoice.Status == invoiceDraft {
		return store.Invoice{}, errInvalidState("send the invoice before recording payments")
	}
	if input.Amount <= 0 {
		return store.Invoice{}, errValidation("payment amount must be positive", nil)
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = "other"
	}
	if _, ok := allowedPaymentMethods[method]; !ok {
		return store.Invoice{}, errValidation("unknown payment method", map[string]any{"method": method})
	}

	paidAt := s.now()
	if input.PaidAt != nil {
		paidAt = *input.PaidAt
	}
	payment := store.Payment{
		ID:          util.NewID("pay"),
		InvoiceID:   invoiceID,
		Amount:      input.Amount,
		Method:      method,
		Reference:   strings.TrimSpace(input.Reference),
		ProofObject: input.ProofObject,
		PaidAt:      paidAt,
		RecordedBy:  session.UserID,
	}
	if err := s.store.RecordPayment(ctx, payment); err != nil {
		return store.Invoice{}, err
	}
	s.recordActivity(ctx, session, "invoice.payment", "invoice", invoiceID, input.Amount.String())
	if invoice.CreatedBy != session.UserID {
		s.notifyUser(ctx, invoice.CreatedBy, notify.TopicPaymentReceived,
			"Payment received on "+invoice.InvoiceNumber,
			input.Amount.String()+" received via "+method+".",
			"/invoices/"+invoiceID)
	}
	updated, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return store.Invoice{}, err
	}
	s.mirrorUpsert(mirror.RecordInvoice, invoiceRecord(updated))
	return updated, nil
}

func (s *Service) ListPayments(ctx context.Context, session Session, invoiceID string) ([]store.Payment, error) {
	if _, err := s.visibleInvoice(ctx, session, invoiceID); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, invoiceID)
}

// InvoicePDF renders a printable invoice through headless Chrome.
func (s *Service) InvoicePDF(ctx context.Context, session Session, invoiceID string) (*export.Result, error) {
	invoice, items, err := s.GetInvoice(ctx, session, invoiceID)
	if err != nil {
		return nil, err
	}
	matter, err := s.store.GetMatter(ctx, invoice.MatterID)
	if err != nil {
		return nil, err
	}
	client, err := s.store.GetContact(ctx, invoice.ClientID)
	if err != nil {
		return nil, err
	}
	data := export.InvoiceData{
		FirmName:      s.cfg.FirmName,
		InvoiceNumber: invoice.InvoiceNumber,
		Status:        invoice.Status,
		MatterTitle:   matter.Title,
		MatterNumber:  matter.MatterNumber,
		ClientName:    client.DisplayName,
		ClientAddress: client.Address,
		IssueDate:     invoice.IssueDate,
		DueDate:       invoice.DueDate,
		Subtotal:      invoice.Subtotal,
		TaxAmount:     invoice.TaxAmount,
		Discount:      invoice.DiscountAmount,
		Total:         invoice.TotalAmount,
		PaidAmount:    invoice.PaidAmount,
		BalanceDue:    invoice.TotalAmount - invoice.PaidAmount,
		Notes:         invoice.Notes,
	}
	for _, item := range items {
		data.Lines = append(data.Lines, export.InvoiceLine{
			Description: item.Description,
			Quantity:    fmt.Sprintf("%d.%02d", item.Quantity/100, item.Quantity%100),
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return export.InvoicePDF(data)
}

func invoiceRecord(inv store.Invoice) mirror.Record {
	return mirror.Record{
		ID:     inv.ID,
		Title:  inv.InvoiceNumber,
		Body:   inv.Notes,
		Status: inv.Status,
		Extra:  map[string]string{"total": inv.TotalAmount.String()},
	}
}
