// Package identity defines the contract with the external identity
// context provider. The core never manages credentials; it consumes the
// already-resolved identity of the caller.
package identity

import (
	"context"
	"errors"
	"time"
)

// SiteRole is a global capability assigned outside any building.
type SiteRole string

const (
	SiteRoleSuperadmin SiteRole = "superadmin"
	SiteRoleStaff      SiteRole = "staff"
	SiteRoleAccountant SiteRole = "accountant"
	SiteRoleDeveloper  SiteRole = "developer"
	SiteRoleResident   SiteRole = "resident"
)

// KnownSiteRole reports whether value names a defined site role.
func KnownSiteRole(value SiteRole) bool {
	switch value {
	case SiteRoleSuperadmin, SiteRoleStaff, SiteRoleAccountant, SiteRoleDeveloper, SiteRoleResident:
		return true
	default:
		return false
	}
}

// Identity is the resolved caller context supplied per request.
type Identity struct {
	UserID      int64
	SiteRoles   []SiteRole
	IsSuperuser bool
}

// HasSiteRole reports whether the identity carries the given site role.
func (id Identity) HasSiteRole(role SiteRole) bool {
	for _, r := range id.SiteRoles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	ErrIdentityNotFound = errors.New("identity_not_found")
	// ErrCollaboratorUnavailable marks a retryable collaborator failure;
	// no partial state is persisted when it surfaces.
	ErrCollaboratorUnavailable = errors.New("collaborator_unavailable")
)

// Provider resolves the identity context for an authenticated user id.
type Provider interface {
	Resolve(ctx context.Context, userID int64) (Identity, error)
}

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// NewTimeoutProvider bounds every Resolve call and maps deadline expiry to
// ErrCollaboratorUnavailable so callers can retry safely.
func NewTimeoutProvider(next Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &timeoutProvider{next: next, timeout: timeout}
}

func (p *timeoutProvider) Resolve(ctx context.Context, userID int64) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resolved, err := p.next.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Identity{}, ErrCollaboratorUnavailable
		}
		return Identity{}, err
	}
	return resolved, nil
}

// StaticProvider serves a fixed identity set; used by tests and local runs.
type StaticProvider struct {
	Identities map[int64]Identity
}

func (p *StaticProvider) Resolve(_ context.Context, userID int64) (Identity, error) {
	if p == nil {
		return Identity{}, ErrIdentityNotFound
	}
	resolved, ok := p.Identities[userID]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return resolved, nil
}
