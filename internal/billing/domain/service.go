package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
)

type Service interface {
	// IssueInvoices creates one invoice per unit from the period's
	// active allocations. Units that already hold a non-void invoice
	// for the period are skipped, so reruns are safe.
	IssueInvoices(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]Invoice, error)

	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)
	ListInvoices(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]Invoice, error)
	ListUnitInvoices(ctx context.Context, unitID snowflake.ID) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
	CreditBalance(ctx context.Context, unitID snowflake.ID) (int64, error)

	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*Invoice, error)

	// VoidInvoice cancels an invoice no money has touched.
	VoidInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)

	// AddLateFee applies the building's late fee to an overdue unpaid
	// invoice, once.
	AddLateFee(ctx context.Context, id snowflake.ID) (*Invoice, error)

	// Recalculate refreshes a needs_recalc invoice from the current
	// active allocations.
	Recalculate(ctx context.Context, id snowflake.ID) (*Invoice, error)
}

type ApplyPaymentRequest struct {
	InvoiceID   snowflake.ID
	AmountCents int64
	Method      string
	Reference   string
	ReceivedBy  snowflake.ID
}

var (
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInvoiceVoid           = errors.New("invoice_void")
	ErrInvoiceNotVoidable    = errors.New("invoice_not_voidable")
	ErrInvalidPaymentAmount  = errors.New("invalid_payment_amount")
	ErrOverpaymentNotAllowed = errors.New("overpayment_not_allowed")
	ErrNothingToInvoice      = errors.New("nothing_to_invoice")
	ErrLateFeeNotDue         = errors.New("late_fee_not_due")
	ErrLateFeeApplied        = errors.New("late_fee_applied")
	ErrRecalcNotNeeded       = errors.New("recalc_not_needed")
	ErrRecalcAfterPayment    = errors.New("recalc_after_payment")
)
