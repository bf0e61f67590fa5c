// Package domain contains persistence models for intercom endpoints.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Endpoint is a unit's intercom reachable at a transport address.
// Public endpoints admit any resolved caller; otherwise the policy
// resolver decides, adjusted by the endpoint's own allow/block lists.
// List entries are role names ("tenant") or unit references
// ("unit:<id>") matched against the caller's active memberships; a
// block entry always wins.
type Endpoint struct {
	ID         snowflake.ID                 `gorm:"primaryKey" json:"id"`
	BuildingID snowflake.ID                 `gorm:"not null;index" json:"building_id"`
	UnitID     snowflake.ID                 `gorm:"not null;index;uniqueIndex:ux_endpoints_unit_address,priority:1" json:"unit_id"`
	Transport  string                       `gorm:"type:text;not null" json:"transport"`
	Address    string                       `gorm:"type:text;not null;uniqueIndex:ux_endpoints_unit_address,priority:2" json:"address"`
	Public     bool                         `gorm:"not null;default:false" json:"public"`
	Allow      datatypes.JSONType[[]string] `gorm:"type:jsonb" json:"allow"`
	Block      datatypes.JSONType[[]string] `gorm:"type:jsonb" json:"block"`
	Active     bool                         `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Endpoint) TableName() string { return "intercom_endpoints" }
