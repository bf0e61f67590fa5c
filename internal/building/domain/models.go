// Package domain contains persistence models for buildings and units.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OverrideEffect is the outcome a building-level policy override assigns.
type OverrideEffect string

const (
	OverrideAllow OverrideEffect = "allow"
	OverrideDeny  OverrideEffect = "deny"
)

// PolicyOverride adjusts one (role, action) cell of the membership matrix
// for a single building. Validated before it ever reaches the enforcer.
type PolicyOverride struct {
	Role   string         `json:"role"`
	Action string         `json:"action"`
	Effect OverrideEffect `json:"effect"`
}

// QuietHours is the daily window during which intercom calls to units
// are rejected unless the caller is staff.
type QuietHours struct {
	Start string `json:"start"` // "HH:MM", building-local
	End   string `json:"end"`
}

// Settings holds the per-building billing and policy knobs.
type Settings struct {
	DueDay           int              `json:"due_day"`
	GraceDays        int              `json:"grace_days"`
	LateFeeBps       int64            `json:"late_fee_bps"`
	AllowOverpayment bool             `json:"allow_overpayment"`
	QuietHours       *QuietHours      `json:"quiet_hours,omitempty"`
	PolicyOverrides  []PolicyOverride `json:"policy_overrides,omitempty"`
}

// DueDayOrDefault clamps the configured due day into a valid range.
func (s Settings) DueDayOrDefault() int {
	if s.DueDay < 1 || s.DueDay > 28 {
		return 15
	}
	return s.DueDay
}

// Building represents one managed residential building. Entrances is
// the ordered list of entrance labels ("A", "B"); units reference one
// of them.
type Building struct {
	ID        snowflake.ID                 `gorm:"primaryKey" json:"id"`
	Name      string                       `gorm:"type:text;not null" json:"name"`
	Slug      string                       `gorm:"type:text;not null;uniqueIndex:ux_buildings_slug" json:"slug"`
	Address   string                       `gorm:"type:text" json:"address"`
	City      string                       `gorm:"type:text" json:"city"`
	Entrances datatypes.JSONType[[]string] `gorm:"type:jsonb" json:"entrances"`
	Settings  datatypes.JSONType[Settings] `gorm:"type:jsonb" json:"settings"`
	CreatedAt time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Building) TableName() string { return "buildings" }

// Unit is a single apartment or commercial space within a building.
type Unit struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	BuildingID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_units_building_label,priority:1" json:"building_id"`
	Label       string       `gorm:"type:text;not null;uniqueIndex:ux_units_building_label,priority:2" json:"label"`
	Entrance    string       `gorm:"type:text" json:"entrance"`
	Floor       int          `gorm:"not null;default:0" json:"floor"`
	AreaDm2     int64        `gorm:"column:area_dm2;not null;default:0" json:"area_dm2"`
	SharesMilli int64        `gorm:"column:shares_milli;not null;default:0" json:"shares_milli"`
	Occupants   int          `gorm:"not null;default:0" json:"occupants"`
	IntercomExt string       `gorm:"column:intercom_ext;type:text" json:"intercom_ext"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Unit) TableName() string { return "units" }
