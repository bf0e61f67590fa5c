package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowProvider struct {
	delay time.Duration
	out   Identity
}

func (p *slowProvider) Resolve(ctx context.Context, _ int64) (Identity, error) {
	select {
	case <-time.After(p.delay):
		return p.out, nil
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}
}

func TestStaticProviderResolve(t *testing.T) {
	provider := &StaticProvider{Identities: map[int64]Identity{
		7: {UserID: 7, SiteRoles: []SiteRole{SiteRoleStaff}},
	}}

	resolved, err := provider.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, resolved.HasSiteRole(SiteRoleStaff))
	assert.False(t, resolved.HasSiteRole(SiteRoleSuperadmin))

	_, err = provider.Resolve(context.Background(), 8)
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestTimeoutProviderMapsDeadline(t *testing.T) {
	provider := NewTimeoutProvider(&slowProvider{delay: 200 * time.Millisecond}, 10*time.Millisecond)

	_, err := provider.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
}

func TestTimeoutProviderPassesThrough(t *testing.T) {
	provider := NewTimeoutProvider(&slowProvider{out: Identity{UserID: 3, IsSuperuser: true}}, time.Second)

	resolved, err := provider.Resolve(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, resolved.IsSuperuser)
}

func TestKnownSiteRole(t *testing.T) {
	assert.True(t, KnownSiteRole(SiteRoleAccountant))
	assert.False(t, KnownSiteRole(SiteRole("janitor")))
}
