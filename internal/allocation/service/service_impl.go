package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/allocation/domain"
	"github.com/vhodhq/vhod/internal/allocation/engine"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/events"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Metering meteringdomain.Service
	Flagger  domain.InvoiceFlagger `optional:"true"`
	Hub      *events.Hub           `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
	Log      *zap.Logger
}

type service struct {
	db       *gorm.DB
	metering meteringdomain.Service
	flagger  domain.InvoiceFlagger
	hub      *events.Hub
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		metering: p.Metering,
		flagger:  p.Flagger,
		hub:      p.Hub,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
		log:      p.Log.Named("allocation.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

// BindInvoiceFlagger attaches the billing flagger after construction.
func (s *service) BindInvoiceFlagger(f domain.InvoiceFlagger) {
	s.flagger = f
}

// lockExpense takes a row lock where the dialect supports it. SQLite
// serializes writers anyway.
func lockExpense(tx *gorm.DB) *gorm.DB {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	default:
		return tx
	}
}

func (s *service) Recompute(ctx context.Context, expenseID snowflake.ID) (*domain.Result, error) {
	start := s.clock.Now()
	method := "unknown"

	var result *domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expense expensedomain.Expense
		if err := lockExpense(tx).First(&expense, "id = ?", expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return expensedomain.ErrExpenseNotFound
			}
			return err
		}

		superseded, err := s.supersede(tx, expense.ID)
		if err != nil {
			return err
		}

		if expense.Status == expensedomain.ExpenseVoided {
			result = &domain.Result{ExpenseID: expense.ID, Period: expense.Period, Superseded: int(superseded)}
			return s.flagInvoices(ctx, tx, expense.BuildingID, expense.Period)
		}

		var category expensedomain.ExpenseCategory
		if err := tx.First(&category, "id = ?", expense.CategoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return expensedomain.ErrCategoryNotFound
			}
			return err
		}
		method = string(category.Method)

		parts, snapshot, err := s.split(ctx, tx, &expense, &category)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		rows := make([]domain.ExpenseAllocation, 0, len(parts))
		for _, part := range parts {
			rows = append(rows, domain.ExpenseAllocation{
				ID:          s.genID.Generate(),
				ExpenseID:   expense.ID,
				BuildingID:  expense.BuildingID,
				UnitID:      part.UnitID,
				Period:      expense.Period,
				AmountCents: part.AmountCents,
				Snapshot:    snapshot,
				CreatedAt:   now,
			})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&expensedomain.Expense{}).
			Where("id = ?", expense.ID).
			Updates(map[string]any{
				"status":     expensedomain.ExpenseAllocated,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		if err := s.flagInvoices(ctx, tx, expense.BuildingID, expense.Period); err != nil {
			return err
		}

		result = &domain.Result{
			ExpenseID:  expense.ID,
			Period:     expense.Period,
			Parts:      parts,
			Superseded: int(superseded),
		}
		return nil
	})

	s.metrics.ObserveAllocationDuration(s.clock.Now().Sub(start))
	if err != nil {
		s.metrics.IncAllocationRun(method, "error")
		return nil, err
	}
	s.metrics.IncAllocationRun(method, "ok")

	s.hub.Publish(events.New(events.TypeAllocationRecomputed, map[string]any{
		"expense_id": result.ExpenseID.String(),
		"period":     result.Period.String(),
		"parts":      len(result.Parts),
		"superseded": result.Superseded,
	}))
	s.log.Info("expense allocated",
		zap.String("expense_id", result.ExpenseID.String()),
		zap.String("method", method),
		zap.Int("parts", len(result.Parts)),
		zap.Int("superseded", result.Superseded),
	)
	return result, nil
}

func (s *service) supersede(tx *gorm.DB, expenseID snowflake.ID) (int64, error) {
	res := tx.Model(&domain.ExpenseAllocation{}).
		Where("expense_id = ? AND superseded = ?", expenseID, false).
		Update("superseded", true)
	return res.RowsAffected, res.Error
}

func (s *service) flagInvoices(ctx context.Context, tx *gorm.DB, buildingID snowflake.ID, period expensedomain.Period) error {
	if s.flagger == nil {
		return nil
	}
	flagged, err := s.flagger.FlagForRecalc(ctx, tx, buildingID, period)
	if err != nil {
		return err
	}
	if flagged > 0 {
		s.log.Info("issued invoices flagged for recalc",
			zap.String("building_id", buildingID.String()),
			zap.String("period", period.String()),
			zap.Int64("count", flagged),
		)
	}
	return nil
}

func (s *service) split(ctx context.Context, tx *gorm.DB, expense *expensedomain.Expense, category *expensedomain.ExpenseCategory) ([]engine.Part, datatypes.JSONType[domain.FormulaSnapshot], error) {
	settings := category.Settings.Data()
	snapshot := domain.FormulaSnapshot{
		Method:             category.Method,
		WeightBasis:        settings.WeightBasis,
		ExcludeVacantUnits: settings.ExcludeVacantUnits,
		ExpenseAmountCents: expense.AmountCents,
		Weights:            map[string]int64{},
	}

	if category.Method == expensedomain.MethodMetered {
		snapshot.TariffCentsPerUnit = settings.TariffCentsPerUnit
		consumptionByUnit, err := s.metering.WithTx(tx).ConsumptionForPeriod(ctx, expense.BuildingID, settings.MeterKind, expense.Period)
		if err != nil {
			return nil, datatypes.NewJSONType(snapshot), err
		}
		consumption := make([]engine.Consumption, 0, len(consumptionByUnit))
		for unitID, milli := range consumptionByUnit {
			consumption = append(consumption, engine.Consumption{UnitID: unitID, ValueMilli: milli})
			snapshot.Weights[strconv.FormatInt(int64(unitID), 10)] = milli
		}
		parts, err := engine.SplitMetered(
			expense.AmountCents,
			consumption,
			settings.TariffCentsPerUnit,
			settings.MeteredRemainder == expensedomain.RemainderRedistribute,
		)
		return parts, datatypes.NewJSONType(snapshot), err
	}

	// Soft-disabled units drop out of new allocations; their historical
	// snapshots keep referencing them.
	var units []buildingdomain.Unit
	if err := tx.Where("building_id = ? AND active = ?", expense.BuildingID, true).Order("id ASC").Find(&units).Error; err != nil {
		return nil, datatypes.NewJSONType(snapshot), err
	}

	weights := make([]engine.Weight, 0, len(units))
	for _, unit := range units {
		if settings.ExcludeVacantUnits && unit.Occupants == 0 {
			continue
		}
		var value int64
		switch category.Method {
		case expensedomain.MethodShares:
			if settings.WeightBasis == expensedomain.BasisArea {
				value = unit.AreaDm2
			} else {
				value = unit.SharesMilli
			}
		case expensedomain.MethodPerUnit:
			value = 1
		case expensedomain.MethodPerPerson:
			value = int64(unit.Occupants)
		default:
			return nil, datatypes.NewJSONType(snapshot), fmt.Errorf("%w: %s", expensedomain.ErrInvalidMethod, category.Method)
		}
		weights = append(weights, engine.Weight{UnitID: unit.ID, Value: value})
		snapshot.Weights[strconv.FormatInt(int64(unit.ID), 10)] = value
	}

	parts, err := engine.Split(expense.AmountCents, weights)
	return parts, datatypes.NewJSONType(snapshot), err
}

func (s *service) RecomputePeriod(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]domain.Result, error) {
	if !period.Valid() {
		return nil, expensedomain.ErrInvalidPeriod
	}

	var expenses []expensedomain.Expense
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND period = ? AND status <> ?", buildingID, period, expensedomain.ExpenseVoided).
		Order("created_at ASC").
		Find(&expenses).Error
	if err != nil {
		return nil, err
	}

	results := make([]domain.Result, 0, len(expenses))
	for _, expense := range expenses {
		result, err := s.Recompute(ctx, expense.ID)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", expense.ID, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *service) ListForExpense(ctx context.Context, expenseID snowflake.ID) ([]domain.ExpenseAllocation, error) {
	var rows []domain.ExpenseAllocation
	err := s.db.WithContext(ctx).
		Where("expense_id = ?", expenseID).
		Order("created_at ASC, unit_id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *service) ActiveForUnitPeriod(ctx context.Context, unitID snowflake.ID, period expensedomain.Period) ([]domain.ExpenseAllocation, error) {
	var rows []domain.ExpenseAllocation
	err := s.db.WithContext(ctx).
		Where("unit_id = ? AND period = ? AND superseded = ?", unitID, period, false).
		Order("expense_id ASC").
		Find(&rows).Error
	return rows, err
}

func (s *service) ActiveTotalsForPeriod(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) (map[snowflake.ID]int64, error) {
	var rows []domain.ExpenseAllocation
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND period = ? AND superseded = ?", buildingID, period, false).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[snowflake.ID]int64)
	for _, row := range rows {
		totals[row.UnitID] += row.AmountCents
	}
	return totals, nil
}
