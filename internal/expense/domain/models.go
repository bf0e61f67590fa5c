// Package domain contains persistence models for expense categories and
// recorded expenses.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AllocationMethod selects how a category's expenses split across units.
type AllocationMethod string

const (
	MethodShares    AllocationMethod = "shares"
	MethodPerUnit   AllocationMethod = "per_unit"
	MethodPerPerson AllocationMethod = "per_person"
	MethodMetered   AllocationMethod = "metered"
)

// KnownMethod reports whether value names a defined allocation method.
func KnownMethod(value AllocationMethod) bool {
	switch value {
	case MethodShares, MethodPerUnit, MethodPerPerson, MethodMetered:
		return true
	default:
		return false
	}
}

// WeightBasis picks the weight column the shares method uses.
type WeightBasis string

const (
	BasisShares WeightBasis = "shares"
	BasisArea   WeightBasis = "area"
)

// MeteredRemainder selects what happens when metered consumption priced
// at the tariff does not add up to the recorded expense amount.
type MeteredRemainder string

const (
	RemainderError        MeteredRemainder = "error"
	RemainderRedistribute MeteredRemainder = "redistribute"
)

// CategorySettings are the per-category allocation knobs.
type CategorySettings struct {
	WeightBasis        WeightBasis      `json:"weight_basis,omitempty"`
	ExcludeVacantUnits bool             `json:"exclude_vacant_units,omitempty"`
	MeterKind          string           `json:"meter_kind,omitempty"`
	TariffCentsPerUnit int64            `json:"tariff_cents_per_unit,omitempty"`
	MeteredRemainder   MeteredRemainder `json:"metered_remainder,omitempty"`
}

// ExpenseCategory groups expenses that share an allocation method.
type ExpenseCategory struct {
	ID         snowflake.ID                         `gorm:"primaryKey" json:"id"`
	BuildingID snowflake.ID                         `gorm:"not null;index;uniqueIndex:ux_categories_building_name,priority:1;uniqueIndex:ux_categories_building_code,priority:1" json:"building_id"`
	Name       string                               `gorm:"type:text;not null;uniqueIndex:ux_categories_building_name,priority:2" json:"name"`
	Code       string                               `gorm:"type:text;not null;uniqueIndex:ux_categories_building_code,priority:2" json:"code"`
	Method     AllocationMethod                     `gorm:"type:text;not null" json:"method"`
	Settings   datatypes.JSONType[CategorySettings] `gorm:"type:jsonb" json:"settings"`
	Active     bool                                 `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time                            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time                            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ExpenseCategory) TableName() string { return "expense_categories" }

// ExpenseStatus tracks an expense through its lifecycle.
type ExpenseStatus string

const (
	ExpenseRecorded  ExpenseStatus = "recorded"
	ExpenseAllocated ExpenseStatus = "allocated"
	ExpenseVoided    ExpenseStatus = "voided"
)

// Expense is one cost to be split across a building's units for one
// period. Amounts are integer cents.
type Expense struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	BuildingID  snowflake.ID  `gorm:"not null;index:idx_expenses_building_period,priority:1" json:"building_id"`
	CategoryID  snowflake.ID  `gorm:"not null;index" json:"category_id"`
	Period      Period        `gorm:"type:text;not null;index:idx_expenses_building_period,priority:2" json:"period"`
	Description string        `gorm:"type:text" json:"description"`
	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	Status      ExpenseStatus `gorm:"type:text;not null;default:'recorded'" json:"status"`
	CreatedBy   snowflake.ID  `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Expense) TableName() string { return "expenses" }
