package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/pkg/db"
	"github.com/vhodhq/vhod/pkg/repository"
	"github.com/vhodhq/vhod/pkg/repository/option"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db         *gorm.DB
	categories repository.Repository[domain.ExpenseCategory]
	expenses   repository.Repository[domain.Expense]
	genID      *snowflake.Node
	clock      clock.Clock
	log        *zap.Logger
}

func NewService(
	gdb *gorm.DB,
	categories repository.Repository[domain.ExpenseCategory],
	expenses repository.Repository[domain.Expense],
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:         gdb,
		categories: categories,
		expenses:   expenses,
		genID:      genID,
		clock:      clk,
		log:        log.Named("expense.service"),
	}
}

func (s *service) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (*domain.ExpenseCategory, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidCategoryName
	}
	settings, err := normalizeSettings(req.Method, req.Settings)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	category := domain.ExpenseCategory{
		ID:         s.genID.Generate(),
		BuildingID: req.BuildingID,
		Name:       name,
		Code:       slug.Make(name),
		Method:     req.Method,
		Settings:   datatypes.NewJSONType(settings),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.categories.Create(ctx, &category); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCategory
		}
		return nil, err
	}
	return &category, nil
}

func (s *service) UpdateCategory(ctx context.Context, id snowflake.ID, req domain.UpdateCategoryRequest) (*domain.ExpenseCategory, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidCategoryName
		}
		category.Name = name
	}
	if req.Settings != nil {
		settings, err := normalizeSettings(category.Method, *req.Settings)
		if err != nil {
			return nil, err
		}
		category.Settings = datatypes.NewJSONType(settings)
	}
	if req.Active != nil {
		category.Active = *req.Active
	}

	category.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

func (s *service) GetCategory(ctx context.Context, id snowflake.ID) (*domain.ExpenseCategory, error) {
	category, err := s.categories.FindOne(ctx, &domain.ExpenseCategory{ID: id})
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (s *service) ListCategories(ctx context.Context, buildingID snowflake.ID) ([]domain.ExpenseCategory, error) {
	rows, err := s.categories.Find(ctx, &domain.ExpenseCategory{BuildingID: buildingID}, option.WithOrder("name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExpenseCategory, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *service) CreateExpense(ctx context.Context, req domain.CreateExpenseRequest) (*domain.Expense, error) {
	// Zero is a legal total: the allocation run produces all-zero
	// parts so the period still carries a record of the expense.
	if req.AmountCents < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !req.Period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}

	category, err := s.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if category.BuildingID != req.BuildingID {
		return nil, domain.ErrCategoryMismatch
	}

	now := s.clock.Now()
	expense := domain.Expense{
		ID:          s.genID.Generate(),
		BuildingID:  req.BuildingID,
		CategoryID:  req.CategoryID,
		Period:      req.Period,
		Description: strings.TrimSpace(req.Description),
		AmountCents: req.AmountCents,
		Status:      domain.ExpenseRecorded,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.expenses.Create(ctx, &expense); err != nil {
		return nil, err
	}

	s.log.Info("expense recorded",
		zap.String("expense_id", expense.ID.String()),
		zap.String("period", expense.Period.String()),
		zap.Int64("amount_cents", expense.AmountCents),
	)
	return &expense, nil
}

func (s *service) UpdateExpenseAmount(ctx context.Context, id snowflake.ID, amountCents int64) (*domain.Expense, error) {
	if amountCents < 0 {
		return nil, domain.ErrInvalidAmount
	}

	expense, err := s.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if expense.Status == domain.ExpenseVoided {
		return nil, domain.ErrExpenseVoided
	}

	expense.AmountCents = amountCents
	// An allocated expense drops back to recorded; its splits stay
	// visible but superseded once the allocation reruns.
	expense.Status = domain.ExpenseRecorded
	expense.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(expense).Error; err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *service) VoidExpense(ctx context.Context, id snowflake.ID) error {
	expense, err := s.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if expense.Status == domain.ExpenseVoided {
		return domain.ErrExpenseVoided
	}

	return s.db.WithContext(ctx).Model(&domain.Expense{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.ExpenseVoided,
			"updated_at": s.clock.Now(),
		}).Error
}

func (s *service) GetExpense(ctx context.Context, id snowflake.ID) (*domain.Expense, error) {
	expense, err := s.expenses.FindOne(ctx, &domain.Expense{ID: id})
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, domain.ErrExpenseNotFound
	}
	return expense, nil
}

func (s *service) ListExpenses(ctx context.Context, buildingID snowflake.ID, period domain.Period) ([]domain.Expense, error) {
	opts := []option.QueryOption{option.WithOrder("created_at ASC")}
	query := &domain.Expense{BuildingID: buildingID}
	if period != "" {
		if !period.Valid() {
			return nil, domain.ErrInvalidPeriod
		}
		query.Period = period
	}
	rows, err := s.expenses.Find(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func normalizeSettings(method domain.AllocationMethod, settings domain.CategorySettings) (domain.CategorySettings, error) {
	if !domain.KnownMethod(method) {
		return settings, domain.ErrInvalidMethod
	}

	switch method {
	case domain.MethodShares:
		if settings.WeightBasis == "" {
			settings.WeightBasis = domain.BasisShares
		}
		if settings.WeightBasis != domain.BasisShares && settings.WeightBasis != domain.BasisArea {
			return settings, domain.ErrInvalidMethod
		}
	case domain.MethodMetered:
		if settings.MeterKind == "" || settings.TariffCentsPerUnit <= 0 {
			return settings, domain.ErrInvalidTariff
		}
		if settings.MeteredRemainder == "" {
			settings.MeteredRemainder = domain.RemainderError
		}
		if settings.MeteredRemainder != domain.RemainderError && settings.MeteredRemainder != domain.RemainderRedistribute {
			return settings, domain.ErrInvalidMethod
		}
	}
	return settings, nil
}
