package export

import (
	"strings"
	"testing"
	"time"
)

func sampleInvoice() InvoiceData {
	return InvoiceData{
		FirmName:      "Acme Legal",
		InvoiceNumber: "INV-2026-0042",
		Status:        "sent",
		IssueDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		MatterTitle:   "Smith v. Jones",
		MatterNumber:  "M-1107",
		ClientName:    "Smith Holdings LLC",
		Lines: []InvoiceLine{
			{Description: "Deposition preparation", Quantity: "2.50", UnitPrice: 25000, Amount: 62500},
			{Description: "Court filing fee", Quantity: "1.00", UnitPrice: 40200, Amount: 40200},
		},
		Subtotal:   102700,
		TaxAmount:  8473,
		Total:      111173,
		PaidAmount: 50000,
		BalanceDue: 61173,
		Notes:      "Payment due within 30 days.",
	}
}

func TestRenderInvoiceHTML(t *testing.T) {
	html, err := RenderInvoiceHTML(sampleInvoice())
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	for _, want := range []string{
		"Acme Legal",
		"INV-2026-0042",
		"Smith Holdings LLC",
		"Smith v. Jones",
		"Deposition preparation",
		"$625.00",
		"$1027.00",
		"$1111.73",
		"Balance Due",
		"March 1, 2026",
		"Payment due within 30 days.",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered invoice missing %q", want)
		}
	}
}

func TestRenderInvoiceHTMLEscapes(t *testing.T) {
	data := sampleInvoice()
	data.Notes = `<script>alert("x")</script>`
	html, err := RenderInvoiceHTML(data)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("notes not HTML-escaped")
	}
}

func TestRenderInvoiceHTMLOmitsEmptySections(t *testing.T) {
	data := sampleInvoice()
	data.TaxAmount = 0
	data.Discount = 0
	data.PaidAmount = 0
	data.Notes = ""
	html, err := RenderInvoiceHTML(data)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "Balance Due") {
		t.Error("balance row rendered with no payments")
	}
	if strings.Contains(html, ">Tax<") {
		t.Error("tax row rendered with zero tax")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Invoice INV-2026-0042", "Invoice-INV-2026-0042"},
		{"///", "invoice"},
		{"a b/c:d", "a-bcd"},
	}
	for _, tc := range cases {
		if got := safeFilename(tc.in); got != tc.want {
			t.Errorf("safeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := encodeDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Errorf("got %q", got)
	}
	if strings.Contains(encodeDataURL("hello world"), "+") {
		t.Error("spaces must encode as %20, not +")
	}
}
