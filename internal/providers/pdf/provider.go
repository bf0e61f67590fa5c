// Package pdf renders unit invoices as PDF documents.
package pdf

import (
	"context"
	"fmt"
	"io"
)

// LineItem is one allocated expense on the invoice.
type LineItem struct {
	Category    string
	Method      string
	AmountCents int64
}

// InvoiceDocument carries everything the renderer needs; callers
// assemble it from the billing, building and allocation services so the
// renderer stays free of storage concerns.
type InvoiceDocument struct {
	Number       string
	Period       string
	Status       string
	IssueDate    string
	DueDate      string
	BuildingName string
	Address      string
	UnitLabel    string
	ResidentName string

	Items []LineItem

	SubtotalCents    int64
	LateFeeCents     int64
	CreditUsedCents  int64
	PaidCents        int64
	OutstandingCents int64
}

type Provider interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) (io.Reader, error)
}

// NoOpProvider satisfies Provider without producing output; used where
// PDF generation is disabled.
type NoOpProvider struct{}

func (p *NoOpProvider) RenderInvoice(ctx context.Context, doc InvoiceDocument) (io.Reader, error) {
	return nil, nil
}

// FormatCents renders an amount of cents as a decimal string,
// e.g. 123456 -> "1234.56" and -50 -> "-0.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
