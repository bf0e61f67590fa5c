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
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&domain.ExpenseCategory{}, &domain.Expense{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC))

	return NewService(
		gdb,
		repository.ProvideStore[domain.ExpenseCategory](gdb),
		repository.ProvideStore[domain.Expense](gdb),
		node,
		clk,
		zap.NewNop(),
	)
}

func TestCreateCategoryDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 1,
		Name:       "Cleaning",
		Method:     domain.MethodShares,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BasisShares, category.Settings.Data().WeightBasis)

	metered, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 1,
		Name:       "Cold water",
		Method:     domain.MethodMetered,
		Settings: domain.CategorySettings{
			MeterKind:          "water",
			TariffCentsPerUnit: 325,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RemainderError, metered.Settings.Data().MeteredRemainder)
}

func TestCategoryCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 2,
		Name:       "Electricity common areas",
		Method:     domain.MethodPerUnit,
	})
	require.NoError(t, err)
	assert.Equal(t, "electricity-common-areas", category.Code)

	// A different name that slugifies to the same code is rejected.
	_, err = svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 2,
		Name:       "Electricity Common Areas",
		Method:     domain.MethodPerUnit,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCategory)

	// The same code is free in another building.
	other, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 3,
		Name:       "Electricity common areas",
		Method:     domain.MethodPerUnit,
	})
	require.NoError(t, err)
	assert.Equal(t, category.Code, other.Code)
}

func TestCreateCategoryValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{BuildingID: 1, Name: "X", Method: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidMethod)

	// Metered without a tariff is unusable.
	_, err = svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 1, Name: "Water", Method: domain.MethodMetered,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTariff)

	_, err = svc.CreateCategory(ctx, domain.CreateCategoryRequest{BuildingID: 1, Name: "Lift", Method: domain.MethodPerUnit})
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, domain.CreateCategoryRequest{BuildingID: 1, Name: "Lift", Method: domain.MethodPerUnit})
	assert.ErrorIs(t, err, domain.ErrDuplicateCategory)
}

func TestExpenseLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 5, Name: "Electricity common areas", Method: domain.MethodShares,
	})
	require.NoError(t, err)

	expense, err := svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID:  5,
		CategoryID:  category.ID,
		Period:      "2026-02",
		AmountCents: 10_000,
		CreatedBy:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExpenseRecorded, expense.Status)

	updated, err := svc.UpdateExpenseAmount(ctx, expense.ID, 12_500)
	require.NoError(t, err)
	assert.Equal(t, int64(12_500), updated.AmountCents)

	require.NoError(t, svc.VoidExpense(ctx, expense.ID))
	err = svc.VoidExpense(ctx, expense.ID)
	assert.ErrorIs(t, err, domain.ErrExpenseVoided)

	_, err = svc.UpdateExpenseAmount(ctx, expense.ID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.UpdateExpenseAmount(ctx, expense.ID, 100)
	assert.ErrorIs(t, err, domain.ErrExpenseVoided)
}

func TestCreateExpenseValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, domain.CreateCategoryRequest{
		BuildingID: 7, Name: "Repairs", Method: domain.MethodPerUnit,
	})
	require.NoError(t, err)

	_, err = svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID: 7, CategoryID: category.ID, Period: "2026-02", AmountCents: -100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// A zero total is a valid expense, not a validation error.
	zero, err := svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID: 7, CategoryID: category.ID, Period: "2026-02", AmountCents: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero.AmountCents)

	_, err = svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID: 7, CategoryID: category.ID, Period: "2026-2", AmountCents: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	// Category from another building must be rejected.
	_, err = svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID: 8, CategoryID: category.ID, Period: "2026-02", AmountCents: 100,
	})
	assert.ErrorIs(t, err, domain.ErrCategoryMismatch)

	_, err = svc.CreateExpense(ctx, domain.CreateExpenseRequest{
		BuildingID: 7, CategoryID: snowflake.ID(404), Period: "2026-02", AmountCents: 100,
	})
	assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
}
