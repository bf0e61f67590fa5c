// Package domain contains persistence models for unit invoices,
// payments and credit balances. All amounts are integer cents.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
)

// InvoiceStatus is the invoice lifecycle state. Money can only move it
// forward: open -> partially_paid -> paid. Void is terminal and reachable
// only before any payment.
type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
)

// Invoice bills one unit for one period.
type Invoice struct {
	ID              snowflake.ID         `gorm:"primaryKey" json:"id"`
	Number          string               `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"number"`
	BuildingID      snowflake.ID         `gorm:"not null;index:idx_invoices_building_period,priority:1" json:"building_id"`
	UnitID          snowflake.ID         `gorm:"not null;index" json:"unit_id"`
	Period          expensedomain.Period `gorm:"type:text;not null;index:idx_invoices_building_period,priority:2" json:"period"`
	Status          InvoiceStatus        `gorm:"type:text;not null;default:'open'" json:"status"`
	AmountDueCents  int64                `gorm:"not null" json:"amount_due_cents"`
	AmountPaidCents int64                `gorm:"not null;default:0" json:"amount_paid_cents"`
	LateFeeCents    int64                `gorm:"not null;default:0" json:"late_fee_cents"`
	CreditUsedCents int64                `gorm:"not null;default:0" json:"credit_used_cents"`
	NeedsRecalc     bool                 `gorm:"not null;default:false;index" json:"needs_recalc"`
	DueDate         time.Time            `gorm:"not null" json:"due_date"`
	IssuedAt        time.Time            `gorm:"not null" json:"issued_at"`
	UpdatedAt       time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Outstanding is what remains to be paid.
func (i Invoice) Outstanding() int64 {
	out := i.AmountDueCents - i.AmountPaidCents
	if out < 0 {
		return 0
	}
	return out
}

// Payment records money received against an invoice.
type Payment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Method      string       `gorm:"type:text;not null;default:'cash'" json:"method"`
	Reference   string       `gorm:"type:text" json:"reference"`
	ReceivedBy  snowflake.ID `gorm:"not null;default:0" json:"received_by"`
	ReceivedAt  time.Time    `gorm:"not null" json:"received_at"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// UnitCredit carries a unit's prepaid balance between periods.
type UnitCredit struct {
	UnitID       snowflake.ID `gorm:"primaryKey" json:"unit_id"`
	BuildingID   snowflake.ID `gorm:"not null;index" json:"building_id"`
	BalanceCents int64        `gorm:"not null;default:0" json:"balance_cents"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UnitCredit) TableName() string { return "unit_credits" }
