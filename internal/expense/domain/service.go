package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*ExpenseCategory, error)
	UpdateCategory(ctx context.Context, id snowflake.ID, req UpdateCategoryRequest) (*ExpenseCategory, error)
	GetCategory(ctx context.Context, id snowflake.ID) (*ExpenseCategory, error)
	ListCategories(ctx context.Context, buildingID snowflake.ID) ([]ExpenseCategory, error)

	CreateExpense(ctx context.Context, req CreateExpenseRequest) (*Expense, error)
	UpdateExpenseAmount(ctx context.Context, id snowflake.ID, amountCents int64) (*Expense, error)
	VoidExpense(ctx context.Context, id snowflake.ID) error
	GetExpense(ctx context.Context, id snowflake.ID) (*Expense, error)
	ListExpenses(ctx context.Context, buildingID snowflake.ID, period Period) ([]Expense, error)
}

type CreateCategoryRequest struct {
	BuildingID snowflake.ID
	Name       string
	Method     AllocationMethod
	Settings   CategorySettings
}

// UpdateCategoryRequest carries optional field updates; nil means
// unchanged.
type UpdateCategoryRequest struct {
	Name     *string           `json:"name,omitempty"`
	Settings *CategorySettings `json:"settings,omitempty"`
	Active   *bool             `json:"active,omitempty"`
}

type CreateExpenseRequest struct {
	BuildingID  snowflake.ID
	CategoryID  snowflake.ID
	Period      Period
	Description string
	AmountCents int64
	CreatedBy   snowflake.ID
}

var (
	ErrInvalidCategoryName = errors.New("invalid_category_name")
	ErrInvalidMethod       = errors.New("invalid_method")
	ErrInvalidTariff       = errors.New("invalid_tariff")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrDuplicateCategory   = errors.New("duplicate_category")
	ErrCategoryNotFound    = errors.New("category_not_found")
	ErrCategoryMismatch    = errors.New("category_mismatch")
	ErrExpenseNotFound     = errors.New("expense_not_found")
	ErrExpenseVoided       = errors.New("expense_voided")
)
