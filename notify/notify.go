/*
Package notify renders invoice documents and delivers them.

PURPOSE:
  The billing domain hands a fully-computed invoice to a billing.Notifier
  and does not care how it reaches the recipient. This package supplies
  that collaborator:

    Renderer        invoice + lessons -> HTML/plain-text document
    Sender          document -> recipient (SendGrid or console)
    Service         Renderer + Sender wired as a billing.Notifier

  Delivery is best-effort by contract: the caller treats an error here as
  a warning, never as grounds to roll back money records.

SEE ALSO:
  - billing/submit.go: the Notifier contract and its call sites
*/
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cadenza/academy-billing/billing"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a rendered invoice ready for delivery.
type Document struct {
	Filename string
	Subject  string
	HTML     []byte
	Text     string
}

// Sender delivers a rendered document to an account.
type Sender interface {
	Send(ctx context.Context, doc Document, recipient *billing.Account) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Service implements billing.Notifier: render, then send.
type Service struct {
	Sender Sender
}

var _ billing.Notifier = (*Service)(nil)

func NewService(sender Sender) *Service {
	return &Service{Sender: sender}
}

func (s *Service) GenerateAndSend(ctx context.Context, inv *billing.Invoice, lessons []*billing.Lesson, recipient *billing.Account) (string, error) {
	doc, err := Render(inv, lessons, recipient)
	if err != nil {
		return "", fmt.Errorf("rendering invoice %s: %w", inv.Number, err)
	}
	if err := s.Sender.Send(ctx, doc, recipient); err != nil {
		return "", fmt.Errorf("sending invoice %s: %w", inv.Number, err)
	}
	return fmt.Sprintf("invoice %s sent to %s", inv.Number, recipient.Email), nil
}

// =============================================================================
// RENDERER
// =============================================================================

var invoiceTmpl = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.Number}}</title></head>
<body>
<h1>Invoice {{.Number}}</h1>
<p>{{.Heading}}</p>
<p><strong>{{.PartyLabel}}:</strong> {{.PartyName}}<br>
<strong>Date:</strong> {{.Date}}{{if .DueDate}}<br>
<strong>Due:</strong> {{.DueDate}}{{end}}</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Date</th><th>Type</th><th>Hours</th><th>Rate</th><th>Amount</th></tr>
{{range .Lines}}<tr><td>{{.Date}}</td><td>{{.Type}}</td><td>{{.Hours}}</td><td>{{.Rate}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
<p><strong>Total: {{.Total}}</strong></p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
</body>
</html>
`))

type invoiceLine struct {
	Date   string
	Type   string
	Hours  string
	Rate   string
	Amount string
}

type invoiceView struct {
	Number     string
	Heading    string
	PartyLabel string
	PartyName  string
	Date       string
	DueDate    string
	Lines      []invoiceLine
	Total      string
	Notes      string
}

// Render produces the invoice document. The amounts come straight off the
// invoice and its lessons; nothing is recomputed here.
func Render(inv *billing.Invoice, lessons []*billing.Lesson, recipient *billing.Account) (Document, error) {
	view := invoiceView{
		Number: inv.Number,
		Date:   inv.CreatedAt.Format("2006-01-02"),
		Total:  money(inv.PaymentBalance),
		Notes:  inv.Notes,
	}
	if !inv.DueDate.IsZero() {
		view.DueDate = inv.DueDate.Format("2006-01-02")
	}
	if recipient != nil {
		view.PartyName = recipient.FullName()
	}

	switch inv.Type {
	case billing.TeacherPayment:
		view.Heading = "Payment statement for lessons taught."
		view.PartyLabel = "Teacher"
	case billing.StudentBilling:
		view.Heading = "Billing statement for lessons received."
		view.PartyLabel = "Student"
	}

	for _, l := range lessons {
		rate := l.TeacherRate
		if inv.Type == billing.StudentBilling {
			rate = l.StudentRate
		}
		date := l.ScheduledDate
		if l.CompletedDate != nil {
			date = *l.CompletedDate
		}
		view.Lines = append(view.Lines, invoiceLine{
			Date:   date.Format("2006-01-02"),
			Type:   lessonTypeLabel(l.Type),
			Hours:  l.Duration.String(),
			Rate:   money(rate),
			Amount: money(l.CostFor(inv.Type)),
		})
	}

	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, view); err != nil {
		return Document{}, err
	}

	return Document{
		Filename: fmt.Sprintf("%s.html", inv.Number),
		Subject:  fmt.Sprintf("Invoice %s", inv.Number),
		HTML:     buf.Bytes(),
		Text:     textSummary(view),
	}, nil
}

func textSummary(v invoiceView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s\n%s\n", v.Number, v.Heading)
	fmt.Fprintf(&b, "%s: %s\nDate: %s\n", v.PartyLabel, v.PartyName, v.Date)
	if v.DueDate != "" {
		fmt.Fprintf(&b, "Due: %s\n", v.DueDate)
	}
	for _, l := range v.Lines {
		fmt.Fprintf(&b, "  %s  %-9s  %sh x %s = %s\n", l.Date, l.Type, l.Hours, l.Rate, l.Amount)
	}
	fmt.Fprintf(&b, "Total: %s\n", v.Total)
	return b.String()
}

func lessonTypeLabel(t billing.LessonType) string {
	if t == billing.LessonOnline {
		return "online"
	}
	return "in person"
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
