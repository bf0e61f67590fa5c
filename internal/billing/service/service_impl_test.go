package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	allocationservice "github.com/vhodhq/vhod/internal/allocation/service"
	"github.com/vhodhq/vhod/internal/billing/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	expenseservice "github.com/vhodhq/vhod/internal/expense/service"
	meteringservice "github.com/vhodhq/vhod/internal/metering/service"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db          *gorm.DB
	svc         domain.Service
	allocations allocationdomain.Service
	expenses    expensedomain.Service
	genID       *snowflake.Node
	clk         *clock.FakeClock
	categorySeq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&buildingdomain.Building{},
		&buildingdomain.Unit{},
		&expensedomain.ExpenseCategory{},
		&expensedomain.Expense{},
		&allocationdomain.ExpenseAllocation{},
		&domain.Invoice{},
		&domain.Payment{},
		&domain.UnitCredit{},
	))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	metering := meteringservice.NewService(gdb, nil, time.Second, node, clk, nil, zap.NewNop())
	expenses := expenseservice.NewService(
		gdb,
		repository.ProvideStore[expensedomain.ExpenseCategory](gdb),
		repository.ProvideStore[expensedomain.Expense](gdb),
		node,
		clk,
		zap.NewNop(),
	)

	// First pass without the flagger so billing can be built, then the
	// real allocation service wired to it.
	bootstrap := allocationservice.NewService(allocationservice.Params{
		DB: gdb, Metering: metering, GenID: node, Clock: clk, Log: zap.NewNop(),
	})
	billing := NewService(Params{
		DB: gdb, Allocations: bootstrap, GenID: node, Clock: clk, Log: zap.NewNop(),
	})
	allocations := allocationservice.NewService(allocationservice.Params{
		DB:       gdb,
		Metering: metering,
		Flagger:  billing.(allocationdomain.InvoiceFlagger),
		GenID:    node,
		Clock:    clk,
		Log:      zap.NewNop(),
	})

	return &fixture{
		db:          gdb,
		svc:         billing,
		allocations: allocations,
		expenses:    expenses,
		genID:       node,
		clk:         clk,
	}
}

func (f *fixture) addBuilding(t *testing.T, settings buildingdomain.Settings) snowflake.ID {
	t.Helper()
	building := buildingdomain.Building{
		ID:       f.genID.Generate(),
		Name:     "Test building",
		Slug:     fmt.Sprintf("test-%d", f.genID.Generate()),
		Settings: datatypes.NewJSONType(settings),
	}
	require.NoError(t, f.db.Create(&building).Error)
	return building.ID
}

func (f *fixture) addUnit(t *testing.T, buildingID snowflake.ID, sharesMilli int64) snowflake.ID {
	t.Helper()
	unit := buildingdomain.Unit{
		ID:          f.genID.Generate(),
		BuildingID:  buildingID,
		Label:       fmt.Sprintf("u-%d", f.genID.Generate()),
		SharesMilli: sharesMilli,
		Occupants:   1,
		Active:      true,
	}
	require.NoError(t, f.db.Create(&unit).Error)
	return unit.ID
}

func (f *fixture) allocate(t *testing.T, buildingID snowflake.ID, period expensedomain.Period, amountCents int64) snowflake.ID {
	t.Helper()
	ctx := context.Background()
	f.categorySeq++
	category, err := f.expenses.CreateCategory(ctx, expensedomain.CreateCategoryRequest{
		BuildingID: buildingID,
		Name:       fmt.Sprintf("category %d", f.categorySeq),
		Method:     expensedomain.MethodShares,
	})
	require.NoError(t, err)
	expense, err := f.expenses.CreateExpense(ctx, expensedomain.CreateExpenseRequest{
		BuildingID:  buildingID,
		CategoryID:  category.ID,
		Period:      period,
		AmountCents: amountCents,
		CreatedBy:   1,
	})
	require.NoError(t, err)
	_, err = f.allocations.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	return expense.ID
}

func TestIssueInvoicesIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{DueDay: 15})
	u1 := f.addUnit(t, buildingID, 600)
	u2 := f.addUnit(t, buildingID, 400)
	f.allocate(t, buildingID, "2026-02", 10_000)

	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	require.Len(t, issued, 2)

	byUnit := map[snowflake.ID]domain.Invoice{}
	for _, inv := range issued {
		byUnit[inv.UnitID] = inv
	}
	assert.Equal(t, int64(6_000), byUnit[u1].AmountDueCents)
	assert.Equal(t, int64(4_000), byUnit[u2].AmountDueCents)
	assert.Equal(t, fmt.Sprintf("INV-%s-202602-1", u1), byUnit[u1].Number)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), byUnit[u1].DueDate)
	assert.Equal(t, domain.InvoiceOpen, byUnit[u1].Status)

	// Rerun hands back the same invoice set, no duplicates.
	again, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	require.Len(t, again, 2)
	for _, inv := range again {
		assert.Equal(t, byUnit[inv.UnitID].ID, inv.ID)
		assert.Equal(t, byUnit[inv.UnitID].Number, inv.Number)
	}

	all, err := f.svc.ListInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIssueInvoicesNothingToInvoice(t *testing.T) {
	f := newFixture(t)
	buildingID := f.addBuilding(t, buildingdomain.Settings{})

	_, err := f.svc.IssueInvoices(context.Background(), buildingID, "2026-02")
	assert.ErrorIs(t, err, domain.ErrNothingToInvoice)
}

func TestApplyPaymentDerivesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{DueDay: 15})
	f.addUnit(t, buildingID, 1_000)
	f.allocate(t, buildingID, "2026-02", 5_000)

	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	invoice := issued[0]

	partial, err := f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: invoice.ID, AmountCents: 2_000, Method: "bank", Reference: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePartiallyPaid, partial.Status)
	assert.Equal(t, int64(3_000), partial.Outstanding())

	paid, err := f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: invoice.ID, AmountCents: 3_000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, paid.Status)

	payments, err := f.svc.ListPayments(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	_, err = f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{InvoiceID: invoice.ID, AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPaymentAmount)
}

func TestOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	strict := f.addBuilding(t, buildingdomain.Settings{})
	f.addUnit(t, strict, 1_000)
	f.allocate(t, strict, "2026-02", 1_000)
	issued, err := f.svc.IssueInvoices(ctx, strict, "2026-02")
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: issued[0].ID, AmountCents: 1_500,
	})
	assert.ErrorIs(t, err, domain.ErrOverpaymentNotAllowed)

	lenient := f.addBuilding(t, buildingdomain.Settings{AllowOverpayment: true})
	unitID := f.addUnit(t, lenient, 1_000)
	f.allocate(t, lenient, "2026-02", 1_000)
	issued, err = f.svc.IssueInvoices(ctx, lenient, "2026-02")
	require.NoError(t, err)

	paid, err := f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: issued[0].ID, AmountCents: 1_500,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, paid.Status)
	assert.Equal(t, int64(1_000), paid.AmountPaidCents)

	balance, err := f.svc.CreditBalance(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	// Credit prepays the next period's invoice.
	f.allocate(t, lenient, "2026-03", 2_000)
	next, err := f.svc.IssueInvoices(ctx, lenient, "2026-03")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, int64(500), next[0].CreditUsedCents)
	assert.Equal(t, domain.InvoicePartiallyPaid, next[0].Status)
	assert.Equal(t, int64(1_500), next[0].Outstanding())

	balance, err = f.svc.CreditBalance(ctx, unitID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestVoidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{})
	unitID := f.addUnit(t, buildingID, 1_000)
	f.allocate(t, buildingID, "2026-02", 2_000)
	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	invoice := issued[0]

	voided, err := f.svc.VoidInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceVoid, voided.Status)

	_, err = f.svc.VoidInvoice(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceVoid)

	// Reissue after void bumps the sequence.
	reissued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	require.Len(t, reissued, 1)
	assert.Equal(t, fmt.Sprintf("INV-%s-202602-2", unitID), reissued[0].Number)

	// Money on the invoice blocks voiding.
	_, err = f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: reissued[0].ID, AmountCents: 100,
	})
	require.NoError(t, err)
	_, err = f.svc.VoidInvoice(ctx, reissued[0].ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotVoidable)
}

func TestVoidInvoiceCreditSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{AllowOverpayment: true})
	f.addUnit(t, buildingID, 1_000)
	f.allocate(t, buildingID, "2026-02", 1_000)
	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	_, err = f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{
		InvoiceID: issued[0].ID, AmountCents: 3_000,
	})
	require.NoError(t, err)

	// The next invoice settles entirely from credit, with no payment
	// rows at all. It is paid, so it must not be voidable.
	f.allocate(t, buildingID, "2026-03", 1_000)
	next, err := f.svc.IssueInvoices(ctx, buildingID, "2026-03")
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, domain.InvoicePaid, next[0].Status)
	assert.Zero(t, next[0].Outstanding())

	_, err = f.svc.VoidInvoice(ctx, next[0].ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotVoidable)
}

func TestAddLateFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{
		DueDay:     15,
		GraceDays:  5,
		LateFeeBps: 500,
	})
	f.addUnit(t, buildingID, 1_000)
	f.allocate(t, buildingID, "2026-02", 3_000)
	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	invoice := issued[0]

	// Clock is 2026-03-01, before the due date.
	_, err = f.svc.AddLateFee(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrLateFeeNotDue)

	// Past due plus grace: 5% of 30.00 is 1.50.
	f.clk.Advance(21 * 24 * time.Hour)
	withFee, err := f.svc.AddLateFee(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), withFee.LateFeeCents)
	assert.Equal(t, int64(3_150), withFee.AmountDueCents)

	_, err = f.svc.AddLateFee(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrLateFeeApplied)
}

func TestRecalculateAfterRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buildingID := f.addBuilding(t, buildingdomain.Settings{DueDay: 15})
	f.addUnit(t, buildingID, 1_000)
	expenseID := f.allocate(t, buildingID, "2026-02", 4_000)

	issued, err := f.svc.IssueInvoices(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	invoice := issued[0]

	_, err = f.svc.Recalculate(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrRecalcNotNeeded)

	// Amending the expense and recomputing flags the invoice.
	_, err = f.expenses.UpdateExpenseAmount(ctx, expenseID, 6_000)
	require.NoError(t, err)
	_, err = f.allocations.Recompute(ctx, expenseID)
	require.NoError(t, err)

	stale, err := f.svc.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, stale.NeedsRecalc)

	fresh, err := f.svc.Recalculate(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), fresh.AmountDueCents)
	assert.False(t, fresh.NeedsRecalc)

	// A paid-on invoice refuses silent recalculation.
	_, err = f.expenses.UpdateExpenseAmount(ctx, expenseID, 6_500)
	require.NoError(t, err)
	_, err = f.allocations.Recompute(ctx, expenseID)
	require.NoError(t, err)
	_, err = f.svc.ApplyPayment(ctx, domain.ApplyPaymentRequest{InvoiceID: invoice.ID, AmountCents: 100})
	require.NoError(t, err)
	_, err = f.svc.Recalculate(ctx, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrRecalcAfterPayment)
}
