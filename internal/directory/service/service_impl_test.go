package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&domain.User{}, &domain.Membership{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(
		gdb,
		repository.ProvideStore[domain.User](gdb),
		node,
		clk,
		zap.NewNop(),
	)
	return svc, clk
}

func TestCreateUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Email:    " Ivan.Petrov@Example.com ",
		FullName: "Ivan Petrov",
	})
	require.NoError(t, err)
	assert.Equal(t, "ivan.petrov@example.com", user.Email)

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{Email: "ivan.petrov@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestAssignClosesOverlap(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{Email: "a@example.com"})
	require.NoError(t, err)

	unitID := snowflake.ID(100)
	buildingID := snowflake.ID(10)

	first, err := svc.Assign(ctx, domain.AssignRequest{
		UserID:     user.ID,
		BuildingID: buildingID,
		UnitID:     unitID,
		Role:       domain.RoleTenant,
	})
	require.NoError(t, err)

	clk.Advance(30 * 24 * time.Hour)
	moveIn := clk.Now()

	second, err := svc.Assign(ctx, domain.AssignRequest{
		UserID:     user.ID,
		BuildingID: buildingID,
		UnitID:     unitID,
		Role:       domain.RoleOwner,
		Since:      moveIn,
	})
	require.NoError(t, err)

	active, err := svc.ActiveForUnit(ctx, unitID, moveIn.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, domain.RoleOwner, active[0].Role)

	// The first interval still covers instants before the handover.
	before, err := svc.ActiveForUnit(ctx, unitID, moveIn.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, first.ID, before[0].ID)
}

func TestEndMembership(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{Email: "b@example.com"})
	require.NoError(t, err)

	m, err := svc.Assign(ctx, domain.AssignRequest{
		UserID: user.ID, BuildingID: 1, UnitID: 2, Role: domain.RoleTenant,
	})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	require.NoError(t, svc.End(ctx, m.ID, clk.Now()))

	err = svc.End(ctx, m.ID, clk.Now())
	assert.ErrorIs(t, err, domain.ErrMembershipClosed)

	active, err := svc.ActiveForUser(ctx, user.ID, clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUnknownRoleRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Assign(context.Background(), domain.AssignRequest{
		UserID: 1, Role: domain.MembershipRole("janitor"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestDirectoryIdentityProvider(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Email:     "c@example.com",
		SiteRoles: []string{"staff", "janitor"},
	})
	require.NoError(t, err)

	provider := NewIdentityProvider(svc)
	resolved, err := provider.Resolve(ctx, int64(user.ID))
	require.NoError(t, err)
	assert.True(t, resolved.HasSiteRole(identity.SiteRoleStaff))
	// Unknown role strings are dropped, not surfaced.
	assert.Len(t, resolved.SiteRoles, 1)

	_, err = provider.Resolve(ctx, 999)
	assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
}
