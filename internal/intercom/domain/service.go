package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/vhodhq/vhod/internal/identity"
)

var (
	ErrEndpointNotFound  = errors.New("intercom endpoint not found")
	ErrDuplicateEndpoint = errors.New("intercom endpoint address already taken")
	ErrInvalidEndpoint   = errors.New("invalid intercom endpoint")
)

// Call decision reasons, recorded on CallDecision.
const (
	ReasonBlocked     = "blocked"
	ReasonInactive    = "endpoint_inactive"
	ReasonPublic      = "public"
	ReasonGranted     = "granted"
	ReasonAllowListed = "allow_listed"
	ReasonNoGrant     = "no_grant"
	ReasonQuietHours  = "quiet_hours"
)

// CallDecision is the outcome of a CanCall check.
type CallDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type CreateEndpointRequest struct {
	UnitID    snowflake.ID `json:"unit_id"`
	Transport string       `json:"transport"`
	Address   string       `json:"address"`
	Public    bool         `json:"public"`
	Allow     []string     `json:"allow"`
	Block     []string     `json:"block"`
}

type UpdateEndpointRequest struct {
	Public *bool     `json:"public,omitempty"`
	Allow  *[]string `json:"allow,omitempty"`
	Block  *[]string `json:"block,omitempty"`
	Active *bool     `json:"active,omitempty"`
}

type Service interface {
	CreateEndpoint(ctx context.Context, req CreateEndpointRequest) (*Endpoint, error)
	UpdateEndpoint(ctx context.Context, id snowflake.ID, req UpdateEndpointRequest) (*Endpoint, error)
	GetEndpoint(ctx context.Context, id snowflake.ID) (*Endpoint, error)
	ListEndpoints(ctx context.Context, buildingID snowflake.ID) ([]*Endpoint, error)

	// CanCall decides whether the caller may ring the endpoint's unit.
	// A block entry wins over everything else; public endpoints admit
	// any resolved caller; allow entries admit callers the policy
	// alone would deny; quiet hours reject non-staff callers.
	CanCall(ctx context.Context, caller identity.Identity, endpointID snowflake.ID) (CallDecision, error)
}
