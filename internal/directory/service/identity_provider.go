package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/identity"
)

// directoryProvider resolves identities from the local users table. Used
// for self-hosted deployments that run without an external identity
// gateway; callers still go through identity.NewTimeoutProvider.
type directoryProvider struct {
	svc domain.Service
}

func NewIdentityProvider(svc domain.Service) identity.Provider {
	return &directoryProvider{svc: svc}
}

func (p *directoryProvider) Resolve(ctx context.Context, userID int64) (identity.Identity, error) {
	user, err := p.svc.GetUser(ctx, snowflake.ID(userID))
	if err != nil {
		if err == domain.ErrUserNotFound {
			return identity.Identity{}, identity.ErrIdentityNotFound
		}
		return identity.Identity{}, err
	}
	if !user.Active {
		return identity.Identity{}, identity.ErrIdentityNotFound
	}

	roles := make([]identity.SiteRole, 0, len(user.SiteRoles.Data()))
	for _, raw := range user.SiteRoles.Data() {
		role := identity.SiteRole(raw)
		if identity.KnownSiteRole(role) {
			roles = append(roles, role)
		}
	}

	return identity.Identity{
		UserID:      int64(user.ID),
		SiteRoles:   roles,
		IsSuperuser: user.IsSuperuser,
	}, nil
}
