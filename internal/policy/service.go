// Package policy answers "may this caller perform this action in this
// building" by layering the site matrix, the caller's membership roles
// and per-building overrides. Denies always beat allows.
package policy

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/identity"
)

// Decision is the outcome of a resolution, with the layer that decided.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

const (
	ReasonSuperuser      = "superuser"
	ReasonSiteRole       = "site_role"
	ReasonMembershipRole = "membership_role"
	ReasonNoGrant        = "no_grant"
)

type Service interface {
	// Resolve runs the full layered decision for one (caller, building,
	// unit, action) tuple. A zero unitID means the action has no unit
	// target; a concrete unitID narrows membership resolution to that
	// unit for unit-scoped actions. It never errors on a plain deny.
	Resolve(ctx context.Context, caller identity.Identity, buildingID, unitID snowflake.ID, action string) (Decision, error)

	// Authorize is Resolve collapsed to an error: nil when allowed,
	// ErrNoGrant when denied.
	Authorize(ctx context.Context, caller identity.Identity, buildingID, unitID snowflake.ID, action string) error

	// SyncOverrides validates and installs the override set for one
	// building, replacing whatever was installed before.
	SyncOverrides(ctx context.Context, buildingID snowflake.ID, overrides []buildingdomain.PolicyOverride) error

	ValidateOverrides(overrides []buildingdomain.PolicyOverride) error
}

var (
	ErrNoGrant                   = errors.New("no_grant")
	ErrUnknownAction             = errors.New("unknown_policy_action")
	ErrUnknownRole               = errors.New("unknown_policy_role")
	ErrInvalidOverrideEffect     = errors.New("invalid_override_effect")
	ErrDestructiveActionOverride = errors.New("destructive_action_override")
)
