package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Assign closes any membership of the same user in the same unit that
	// is still open at the new Since instant, then records the new one.
	Assign(ctx context.Context, req AssignRequest) (*Membership, error)
	GetMembership(ctx context.Context, id snowflake.ID) (*Membership, error)
	End(ctx context.Context, membershipID snowflake.ID, at time.Time) error

	ActiveForUser(ctx context.Context, userID snowflake.ID, at time.Time) ([]Membership, error)
	ActiveForUnit(ctx context.Context, unitID snowflake.ID, at time.Time) ([]Membership, error)
	ActiveForBuilding(ctx context.Context, buildingID snowflake.ID, at time.Time) ([]Membership, error)
}

type CreateUserRequest struct {
	Email       string
	FullName    string
	Phone       string
	SiteRoles   []string
	IsSuperuser bool
}

type AssignRequest struct {
	UserID     snowflake.ID
	BuildingID snowflake.ID
	UnitID     snowflake.ID
	Role       MembershipRole
	Since      time.Time
}

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrDuplicateEmail     = errors.New("duplicate_email")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrMembershipNotFound = errors.New("membership_not_found")
	ErrMembershipClosed   = errors.New("membership_closed")
)
