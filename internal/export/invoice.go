package export

import (
	"bytes"
	"html/template"
	"time"

	"praxis/api/internal/money"
)

// InvoiceData holds everything the invoice template renders.
type InvoiceData struct {
	FirmName      string
	InvoiceNumber string
	Status        string
	IssueDate     time.Time
	DueDate       time.Time
	MatterTitle   string
	MatterNumber  string
	ClientName    string
	ClientAddress string
	Lines         []InvoiceLine
	Subtotal      money.Cents
	TaxAmount     money.Cents
	Discount      money.Cents
	Total         money.Cents
	PaidAmount    money.Cents
	BalanceDue    money.Cents
	Notes         string
}

// InvoiceLine is one billed row.
type InvoiceLine struct {
	Description string
	Quantity    string
	UnitPrice   money.Cents
	Amount      money.Cents
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(c money.Cents) string { return "$" + c.String() },
	"formatDate": func(t time.Time) string {
		return t.Format("January 2, 2006")
	},
}).Parse(invoiceHTML))

// RenderInvoiceHTML renders the invoice template with provided data
func RenderInvoiceHTML(data InvoiceData) (string, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// InvoicePDF renders the invoice and converts it to a PDF download.
func InvoicePDF(data InvoiceData) (*Result, error) {
	html, err := RenderInvoiceHTML(data)
	if err != nil {
		return nil, err
	}
	return renderPDF(html, "Invoice-"+data.InvoiceNumber)
}

const invoiceHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Invoice {{.InvoiceNumber}}</title>
<style>
    body { font-family: Georgia, 'Times New Roman', serif; color: #222; margin: 0; }
    .top { display: flex; justify-content: space-between; border-bottom: 3px solid #1a3a5c; padding-bottom: 16px; }
    .firm { font-size: 22px; font-weight: bold; color: #1a3a5c; }
    .meta { text-align: right; font-size: 13px; }
    .meta .number { font-size: 18px; font-weight: bold; }
    .status { text-transform: uppercase; letter-spacing: 1px; font-size: 11px; color: #666; }
    .parties { margin: 24px 0; font-size: 13px; }
    .parties .label { text-transform: uppercase; font-size: 10px; color: #888; letter-spacing: 1px; }
    table { width: 100%; border-collapse: collapse; font-size: 13px; margin-top: 16px; }
    th { text-align: left; border-bottom: 2px solid #1a3a5c; padding: 6px 8px; font-size: 11px; text-transform: uppercase; letter-spacing: 1px; }
    td { border-bottom: 1px solid #ddd; padding: 6px 8px; }
    .num { text-align: right; white-space: nowrap; }
    .totals { margin-top: 16px; margin-left: auto; width: 280px; font-size: 13px; }
    .totals div { display: flex; justify-content: space-between; padding: 3px 8px; }
    .totals .grand { border-top: 2px solid #1a3a5c; font-weight: bold; font-size: 15px; padding-top: 6px; }
    .notes { margin-top: 32px; font-size: 12px; color: #555; border-top: 1px solid #ddd; padding-top: 12px; }
</style>
</head>
<body>
    <div class="top">
        <div>
            <div class="firm">{{.FirmName}}</div>
            <div class="parties">
                <div class="label">Billed To</div>
                <div>{{.ClientName}}</div>
                {{if .ClientAddress}}<div>{{.ClientAddress}}</div>{{end}}
            </div>
        </div>
        <div class="meta">
            <div class="number">Invoice {{.InvoiceNumber}}</div>
            <div class="status">{{.Status}}</div>
            <div>Issued: {{formatDate .IssueDate}}</div>
            <div>Due: {{formatDate .DueDate}}</div>
            {{if .MatterTitle}}<div>Matter: {{.MatterTitle}}{{if .MatterNumber}} ({{.MatterNumber}}){{end}}</div>{{end}}
        </div>
    </div>

    <table>
        <thead>
            <tr><th>Description</th><th class="num">Qty</th><th class="num">Rate</th><th class="num">Amount</th></tr>
        </thead>
        <tbody>
            {{range .Lines}}
            <tr>
                <td>{{.Description}}</td>
                <td class="num">{{.Quantity}}</td>
                <td class="num">{{money .UnitPrice}}</td>
                <td class="num">{{money .Amount}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <div><span>Subtotal</span><span>{{money .Subtotal}}</span></div>
        {{if .TaxAmount}}<div><span>Tax</span><span>{{money .TaxAmount}}</span></div>{{end}}
        {{if .Discount}}<div><span>Discount</span><span>-{{money .Discount}}</span></div>{{end}}
        <div class="grand"><span>Total</span><span>{{money .Total}}</span></div>
        {{if .PaidAmount}}<div><span>Paid</span><span>{{money .PaidAmount}}</span></div>
        <div><span>Balance Due</span><span>{{money .BalanceDue}}</span></div>{{end}}
    </div>

    {{if .Notes}}<div class="notes">{{.Notes}}</div>{{end}}
</body>
</html>`
