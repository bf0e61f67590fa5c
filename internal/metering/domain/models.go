// Package domain contains persistence models for unit meters and their
// readings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
)

// Meter is one physical counter attached to a unit. Kind matches the
// meter_kind of metered expense categories ("water", "heat", ...).
type Meter struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BuildingID snowflake.ID `gorm:"not null;index" json:"building_id"`
	UnitID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_meters_unit_kind,priority:1" json:"unit_id"`
	Kind       string       `gorm:"type:text;not null;uniqueIndex:ux_meters_unit_kind,priority:2" json:"kind"`
	Serial     string       `gorm:"type:text" json:"serial"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Meter) TableName() string { return "meters" }

// ReadingSourceKind records where a reading came from.
type ReadingSourceKind string

const (
	SourceManual ReadingSourceKind = "manual"
	SourceRemote ReadingSourceKind = "remote"
)

// MeterReading is the cumulative counter value at the end of a period,
// in milli-units. One row per (meter, period); re-recording replaces it
// as long as the sequence stays monotonic.
type MeterReading struct {
	ID         snowflake.ID         `gorm:"primaryKey" json:"id"`
	MeterID    snowflake.ID         `gorm:"not null;index;uniqueIndex:ux_readings_meter_period,priority:1" json:"meter_id"`
	Period     expensedomain.Period `gorm:"type:text;not null;uniqueIndex:ux_readings_meter_period,priority:2" json:"period"`
	ValueMilli int64                `gorm:"not null" json:"value_milli"`
	Source     ReadingSourceKind    `gorm:"type:text;not null;default:'manual'" json:"source"`
	RecordedBy snowflake.ID         `gorm:"not null;default:0" json:"recorded_by"`
	CreatedAt  time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MeterReading) TableName() string { return "meter_readings" }
