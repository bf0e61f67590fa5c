// Package domain contains persistence models for the resident directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MembershipRole is the role a person holds within one unit.
type MembershipRole string

const (
	RoleManager    MembershipRole = "manager"
	RoleOwner      MembershipRole = "owner"
	RoleTenant     MembershipRole = "tenant"
	RoleFamily     MembershipRole = "family"
	RoleAccountant MembershipRole = "accountant"
	RoleGuest      MembershipRole = "guest"
)

// KnownMembershipRole reports whether value names a defined membership role.
func KnownMembershipRole(value MembershipRole) bool {
	switch value {
	case RoleManager, RoleOwner, RoleTenant, RoleFamily, RoleAccountant, RoleGuest:
		return true
	default:
		return false
	}
}

// User is a directory entry. Credentials live in the identity provider;
// the directory only mirrors the attributes billing and policy need.
type User struct {
	ID          snowflake.ID                 `gorm:"primaryKey" json:"id"`
	Email       string                       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	FullName    string                       `gorm:"type:text;not null" json:"full_name"`
	Phone       string                       `gorm:"type:text" json:"phone"`
	SiteRoles   datatypes.JSONType[[]string] `gorm:"type:jsonb" json:"site_roles"`
	IsSuperuser bool                         `gorm:"not null;default:false" json:"is_superuser"`
	Active      bool                         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time                    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Membership binds a user to a unit with a role over a half-open
// interval [Since, Until). A nil Until means the membership is current.
type Membership struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID   `gorm:"not null;index" json:"user_id"`
	BuildingID snowflake.ID   `gorm:"not null;index" json:"building_id"`
	UnitID     snowflake.ID   `gorm:"not null;index" json:"unit_id"`
	Role       MembershipRole `gorm:"type:text;not null" json:"role"`
	Since      time.Time      `gorm:"not null" json:"since"`
	Until      *time.Time     `gorm:"index" json:"until,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "memberships" }

// ActiveAt reports whether the membership covers the given instant.
func (m Membership) ActiveAt(at time.Time) bool {
	if at.Before(m.Since) {
		return false
	}
	return m.Until == nil || at.Before(*m.Until)
}
