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
	"github.com/vhodhq/vhod/internal/allocation/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	expenseservice "github.com/vhodhq/vhod/internal/expense/service"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	meteringservice "github.com/vhodhq/vhod/internal/metering/service"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countingFlagger struct {
	calls int
}

func (f *countingFlagger) FlagForRecalc(context.Context, *gorm.DB, snowflake.ID, expensedomain.Period) (int64, error) {
	f.calls++
	return 0, nil
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	expenses expensedomain.Service
	metering meteringdomain.Service
	flagger  *countingFlagger
	genID    *snowflake.Node
	clk      *clock.FakeClock
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
		&buildingdomain.Unit{},
		&expensedomain.ExpenseCategory{},
		&expensedomain.Expense{},
		&domain.ExpenseAllocation{},
		&meteringdomain.Meter{},
		&meteringdomain.MeterReading{},
	))

	node, err := snowflake.NewNode(6)
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
	flagger := &countingFlagger{}
	svc := NewService(Params{
		DB:       gdb,
		Metering: metering,
		Flagger:  flagger,
		GenID:    node,
		Clock:    clk,
		Log:      zap.NewNop(),
	})
	return &fixture{db: gdb, svc: svc, expenses: expenses, metering: metering, flagger: flagger, genID: node, clk: clk}
}

func (f *fixture) addUnit(t *testing.T, buildingID snowflake.ID, sharesMilli, areaDm2 int64, occupants int) buildingdomain.Unit {
	t.Helper()
	unit := buildingdomain.Unit{
		ID:          f.genID.Generate(),
		BuildingID:  buildingID,
		Label:       unitLabel(f, buildingID),
		SharesMilli: sharesMilli,
		AreaDm2:     areaDm2,
		Occupants:   occupants,
		Active:      true,
	}
	require.NoError(t, f.db.Create(&unit).Error)
	return unit
}

func unitLabel(f *fixture, buildingID snowflake.ID) string {
	var count int64
	f.db.Model(&buildingdomain.Unit{}).Where("building_id = ?", buildingID).Count(&count)
	return string(rune('A' + count))
}

func (f *fixture) addExpense(t *testing.T, buildingID snowflake.ID, method expensedomain.AllocationMethod, settings expensedomain.CategorySettings, amountCents int64) *expensedomain.Expense {
	t.Helper()
	ctx := context.Background()
	category, err := f.expenses.CreateCategory(ctx, expensedomain.CreateCategoryRequest{
		BuildingID: buildingID,
		Name:       string(method) + " category",
		Method:     method,
		Settings:   settings,
	})
	require.NoError(t, err)
	expense, err := f.expenses.CreateExpense(ctx, expensedomain.CreateExpenseRequest{
		BuildingID:  buildingID,
		CategoryID:  category.ID,
		Period:      "2026-02",
		AmountCents: amountCents,
		CreatedBy:   1,
	})
	require.NoError(t, err)
	return expense
}

func TestRecomputeEqualShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(1)

	u1 := f.addUnit(t, buildingID, 1_000, 0, 1)
	u2 := f.addUnit(t, buildingID, 1_000, 0, 1)
	u3 := f.addUnit(t, buildingID, 1_000, 0, 1)

	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 10_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	require.Len(t, result.Parts, 3)

	got := map[snowflake.ID]int64{}
	sum := int64(0)
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
		sum += p.AmountCents
	}
	assert.Equal(t, int64(10_000), sum)
	// The residual cent lands on the lowest unit id.
	assert.Equal(t, int64(3_334), got[u1.ID])
	assert.Equal(t, int64(3_333), got[u2.ID])
	assert.Equal(t, int64(3_333), got[u3.ID])

	updated, err := f.expenses.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, expensedomain.ExpenseAllocated, updated.Status)
	assert.Equal(t, 1, f.flagger.calls)
}

func TestRecomputeIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(2)

	f.addUnit(t, buildingID, 600, 0, 1)
	f.addUnit(t, buildingID, 400, 0, 1)
	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 7_777)

	first, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Superseded)

	second, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Superseded)

	firstAmounts := map[snowflake.ID]int64{}
	for _, p := range first.Parts {
		firstAmounts[p.UnitID] = p.AmountCents
	}
	for _, p := range second.Parts {
		assert.Equal(t, firstAmounts[p.UnitID], p.AmountCents)
	}

	// History keeps both generations, only one active.
	all, err := f.svc.ListForExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	totals, err := f.svc.ActiveTotalsForPeriod(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	sum := int64(0)
	for _, v := range totals {
		sum += v
	}
	assert.Equal(t, int64(7_777), sum)
}

func TestRecomputePerPersonSkipsVacant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(3)

	u1 := f.addUnit(t, buildingID, 0, 0, 2)
	u2 := f.addUnit(t, buildingID, 0, 0, 0)
	u3 := f.addUnit(t, buildingID, 0, 0, 3)
	expense := f.addExpense(t, buildingID, expensedomain.MethodPerPerson, expensedomain.CategorySettings{}, 5_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)

	got := map[snowflake.ID]int64{}
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
	}
	assert.Equal(t, int64(2_000), got[u1.ID])
	assert.Equal(t, int64(0), got[u2.ID])
	assert.Equal(t, int64(3_000), got[u3.ID])
}

func TestRecomputeAreaBasis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(4)

	u1 := f.addUnit(t, buildingID, 0, 7_500, 1)
	u2 := f.addUnit(t, buildingID, 0, 2_500, 1)
	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{
		WeightBasis: expensedomain.BasisArea,
	}, 10_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)

	got := map[snowflake.ID]int64{}
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
	}
	assert.Equal(t, int64(7_500), got[u1.ID])
	assert.Equal(t, int64(2_500), got[u2.ID])
}

func TestRecomputePerUnitExcludesVacant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(5)

	u1 := f.addUnit(t, buildingID, 0, 0, 1)
	u2 := f.addUnit(t, buildingID, 0, 0, 0)
	expense := f.addExpense(t, buildingID, expensedomain.MethodPerUnit, expensedomain.CategorySettings{
		ExcludeVacantUnits: true,
	}, 4_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, u1.ID, result.Parts[0].UnitID)
	assert.Equal(t, int64(4_000), result.Parts[0].AmountCents)
	_ = u2
}

func TestRecomputeZeroTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(12)

	u1 := f.addUnit(t, buildingID, 600, 0, 1)
	u2 := f.addUnit(t, buildingID, 400, 0, 1)
	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 0)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	require.Len(t, result.Parts, 2)
	got := map[snowflake.ID]int64{}
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
	}
	assert.Equal(t, int64(0), got[u1.ID])
	assert.Equal(t, int64(0), got[u2.ID])
}

func TestRecomputeSkipsDisabledUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(11)

	u1 := f.addUnit(t, buildingID, 1_000, 0, 1)
	u2 := f.addUnit(t, buildingID, 1_000, 0, 1)
	u3 := f.addUnit(t, buildingID, 1_000, 0, 1)
	require.NoError(t, f.db.Model(&buildingdomain.Unit{}).Where("id = ?", u3.ID).Update("active", false).Error)

	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 6_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	require.Len(t, result.Parts, 2)

	got := map[snowflake.ID]int64{}
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
	}
	assert.Equal(t, int64(3_000), got[u1.ID])
	assert.Equal(t, int64(3_000), got[u2.ID])
	assert.NotContains(t, got, u3.ID)
}

func TestRecomputeNoTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(6)

	f.addUnit(t, buildingID, 0, 0, 0)
	expense := f.addExpense(t, buildingID, expensedomain.MethodPerPerson, expensedomain.CategorySettings{}, 1_000)

	_, err := f.svc.Recompute(ctx, expense.ID)
	assert.ErrorIs(t, err, domain.ErrNoAllocationTargets)
}

func TestRecomputeMetered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(7)

	u1 := f.addUnit(t, buildingID, 0, 0, 1)
	u2 := f.addUnit(t, buildingID, 0, 0, 1)

	m1, err := f.metering.RegisterMeter(ctx, meteringdomain.RegisterMeterRequest{BuildingID: buildingID, UnitID: u1.ID, Kind: "water"})
	require.NoError(t, err)
	m2, err := f.metering.RegisterMeter(ctx, meteringdomain.RegisterMeterRequest{BuildingID: buildingID, UnitID: u2.ID, Kind: "water"})
	require.NoError(t, err)

	for _, r := range []struct {
		meter  snowflake.ID
		period expensedomain.Period
		value  int64
	}{
		{m1.ID, "2026-01", 0},
		{m1.ID, "2026-02", 10_000},
		{m2.ID, "2026-01", 0},
		{m2.ID, "2026-02", 30_000},
	} {
		_, err := f.metering.RecordReading(ctx, meteringdomain.RecordReadingRequest{
			MeterID: r.meter, Period: r.period, ValueMilli: r.value,
		})
		require.NoError(t, err)
	}

	// 40 units at 1.00/unit = 40.00, matches the expense exactly.
	expense := f.addExpense(t, buildingID, expensedomain.MethodMetered, expensedomain.CategorySettings{
		MeterKind:          "water",
		TariffCentsPerUnit: 100,
	}, 4_000)

	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)

	got := map[snowflake.ID]int64{}
	for _, p := range result.Parts {
		got[p.UnitID] = p.AmountCents
	}
	assert.Equal(t, int64(1_000), got[u1.ID])
	assert.Equal(t, int64(3_000), got[u2.ID])
}

func TestRecomputeMeteredMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(8)

	u1 := f.addUnit(t, buildingID, 0, 0, 1)
	m1, err := f.metering.RegisterMeter(ctx, meteringdomain.RegisterMeterRequest{BuildingID: buildingID, UnitID: u1.ID, Kind: "water"})
	require.NoError(t, err)
	for _, r := range []struct {
		period expensedomain.Period
		value  int64
	}{{"2026-01", 0}, {"2026-02", 10_000}} {
		_, err := f.metering.RecordReading(ctx, meteringdomain.RecordReadingRequest{MeterID: m1.ID, Period: r.period, ValueMilli: r.value})
		require.NoError(t, err)
	}

	strict := f.addExpense(t, buildingID, expensedomain.MethodMetered, expensedomain.CategorySettings{
		MeterKind:          "water",
		TariffCentsPerUnit: 100,
	}, 1_100)
	_, err = f.svc.Recompute(ctx, strict.ID)
	assert.ErrorIs(t, err, domain.ErrMeteredTotalMismatch)

	// No allocation rows survive a failed run.
	rows, err := f.svc.ListForExpense(ctx, strict.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecomputeVoidedExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(9)

	f.addUnit(t, buildingID, 1_000, 0, 1)
	expense := f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 2_000)

	_, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)

	require.NoError(t, f.expenses.VoidExpense(ctx, expense.ID))
	result, err := f.svc.Recompute(ctx, expense.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Parts)
	assert.Equal(t, 1, result.Superseded)

	totals, err := f.svc.ActiveTotalsForPeriod(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestRecomputePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buildingID := snowflake.ID(10)

	f.addUnit(t, buildingID, 500, 0, 1)
	f.addUnit(t, buildingID, 500, 0, 1)
	f.addExpense(t, buildingID, expensedomain.MethodShares, expensedomain.CategorySettings{}, 3_000)
	f.addExpense(t, buildingID, expensedomain.MethodPerUnit, expensedomain.CategorySettings{}, 1_000)

	results, err := f.svc.RecomputePeriod(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	require.Len(t, results, 2)

	totals, err := f.svc.ActiveTotalsForPeriod(ctx, buildingID, "2026-02")
	require.NoError(t, err)
	sum := int64(0)
	for _, v := range totals {
		sum += v
	}
	assert.Equal(t, int64(4_000), sum)
}
