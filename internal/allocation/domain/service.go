package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/allocation/engine"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"gorm.io/gorm"
)

// Result summarizes one allocation run.
type Result struct {
	ExpenseID  snowflake.ID         `json:"expense_id"`
	Period     expensedomain.Period `json:"period"`
	Parts      []engine.Part        `json:"parts"`
	Superseded int                  `json:"superseded"`
}

type Service interface {
	// WithTx returns a copy bound to the given transaction.
	WithTx(tx *gorm.DB) Service

	// Recompute splits the expense across its building's units. Prior
	// allocations for the expense are marked superseded in the same
	// transaction; running it twice with unchanged inputs yields the
	// same amounts.
	Recompute(ctx context.Context, expenseID snowflake.ID) (*Result, error)

	// RecomputePeriod reruns every non-voided expense of the building
	// for the period.
	RecomputePeriod(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]Result, error)

	ListForExpense(ctx context.Context, expenseID snowflake.ID) ([]ExpenseAllocation, error)
	ActiveForUnitPeriod(ctx context.Context, unitID snowflake.ID, period expensedomain.Period) ([]ExpenseAllocation, error)
	ActiveTotalsForPeriod(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) (map[snowflake.ID]int64, error)
}

// InvoiceFlagger marks already-issued invoices stale after a recompute.
// Implemented by the billing service; optional so the allocation
// engine stays usable standalone.
type InvoiceFlagger interface {
	FlagForRecalc(ctx context.Context, tx *gorm.DB, buildingID snowflake.ID, period expensedomain.Period) (int64, error)
}

// FlaggerSink accepts a late-bound flagger. The billing service is
// constructed after the allocation engine, so the flagger is attached
// during startup rather than through the constructor.
type FlaggerSink interface {
	BindInvoiceFlagger(InvoiceFlagger)
}

// Re-exported engine sentinels so callers depend on one package.
var (
	ErrInvalidWeight        = engine.ErrInvalidWeight
	ErrNoAllocationTargets  = engine.ErrNoAllocationTargets
	ErrRoundingInvariant    = engine.ErrRoundingInvariant
	ErrMeteredTotalMismatch = engine.ErrMeteredTotalMismatch
)
