// Package domain contains persistence models for expense allocations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"gorm.io/datatypes"
)

// FormulaSnapshot freezes the inputs an allocation run used, so a past
// split stays explainable after units or tariffs change.
type FormulaSnapshot struct {
	Method             expensedomain.AllocationMethod `json:"method"`
	WeightBasis        expensedomain.WeightBasis      `json:"weight_basis,omitempty"`
	ExcludeVacantUnits bool                           `json:"exclude_vacant_units,omitempty"`
	ExpenseAmountCents int64                          `json:"expense_amount_cents"`
	TariffCentsPerUnit int64                          `json:"tariff_cents_per_unit,omitempty"`
	// Weights keys are unit ids in decimal form.
	Weights map[string]int64 `json:"weights"`
}

// ExpenseAllocation is one unit's slice of one expense. Recomputes
// never mutate rows; they mark the old generation superseded and write
// a new one.
type ExpenseAllocation struct {
	ID          snowflake.ID                        `gorm:"primaryKey" json:"id"`
	ExpenseID   snowflake.ID                        `gorm:"not null;index" json:"expense_id"`
	BuildingID  snowflake.ID                        `gorm:"not null;index:idx_allocations_building_period,priority:1" json:"building_id"`
	UnitID      snowflake.ID                        `gorm:"not null;index" json:"unit_id"`
	Period      expensedomain.Period                `gorm:"type:text;not null;index:idx_allocations_building_period,priority:2" json:"period"`
	AmountCents int64                               `gorm:"not null" json:"amount_cents"`
	Superseded  bool                                `gorm:"not null;default:false;index" json:"superseded"`
	Snapshot    datatypes.JSONType[FormulaSnapshot] `gorm:"type:jsonb" json:"snapshot"`
	CreatedAt   time.Time                           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ExpenseAllocation) TableName() string { return "expense_allocations" }
