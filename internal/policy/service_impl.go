package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	domainSite = "site"
	// domainMembership carries the shared membership matrix; requests
	// always arrive with a concrete "building:<id>" domain and the
	// matcher folds this one in.
	domainMembership = "building"
)

func siteRoleSubject(role identity.SiteRole) string {
	return fmt.Sprintf("role:site:%s", role)
}

func membershipRoleSubject(role directorydomain.MembershipRole) string {
	return fmt.Sprintf("role:%s", role)
}

func buildingDomain(id snowflake.ID) string {
	return fmt.Sprintf("building:%s", id)
}

// NewEnforcer builds the synced enforcer, persists rules through the
// gorm adapter and reseeds the static matrices.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedMatrices(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// seedMatrices replaces the matrix-owned rules with the compiled-in
// matrices. Building overrides live in their own domains and survive.
func seedMatrices(enforcer *casbin.SyncedEnforcer) error {
	for _, dom := range []string{domainSite, domainMembership} {
		if _, err := enforcer.RemoveFilteredPolicy(1, dom); err != nil {
			return err
		}
	}

	for role, actions := range siteMatrix {
		for _, action := range actions {
			obj, ok := ObjectFor(action)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownAction, action)
			}
			if _, err := enforcer.AddPolicy(siteRoleSubject(role), domainSite, obj, action, "allow"); err != nil {
				return err
			}
		}
	}
	for role, actions := range membershipMatrix {
		for _, action := range actions {
			obj, ok := ObjectFor(action)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownAction, action)
			}
			if _, err := enforcer.AddPolicy(membershipRoleSubject(role), domainMembership, obj, action, "allow"); err != nil {
				return err
			}
		}
	}
	return nil
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Enforcer  *casbin.SyncedEnforcer
	Directory directorydomain.Service
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
}

type serviceImpl struct {
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	directory directorydomain.Service
	clock     clock.Clock
	metrics   *metrics.Metrics
}

func NewService(p Params) Service {
	return &serviceImpl{
		log:       p.Log.Named("policy.service"),
		enforcer:  p.Enforcer,
		directory: p.Directory,
		clock:     p.Clock,
		metrics:   p.Metrics,
	}
}

func (s *serviceImpl) Resolve(ctx context.Context, caller identity.Identity, buildingID, unitID snowflake.ID, action string) (Decision, error) {
	obj, ok := ObjectFor(action)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if caller.IsSuperuser {
		return Decision{Allowed: true, Reason: ReasonSuperuser}, nil
	}

	for _, role := range caller.SiteRoles {
		if !identity.KnownSiteRole(role) {
			continue
		}
		allowed, err := s.enforcer.Enforce(siteRoleSubject(role), domainSite, obj, action)
		if err != nil {
			return Decision{}, err
		}
		if allowed {
			return Decision{Allowed: true, Reason: fmt.Sprintf("%s:%s", ReasonSiteRole, role)}, nil
		}
	}

	if buildingID != 0 {
		memberships, err := s.directory.ActiveForUser(ctx, snowflake.ID(caller.UserID), s.clock.Now())
		if err != nil {
			return Decision{}, err
		}
		dom := buildingDomain(buildingID)
		narrowToUnit := unitID != 0 && UnitScoped(action)
		for _, m := range memberships {
			if m.BuildingID != buildingID {
				continue
			}
			if narrowToUnit && !buildingWideRoles[m.Role] && m.UnitID != unitID {
				continue
			}
			allowed, err := s.enforcer.Enforce(membershipRoleSubject(m.Role), dom, obj, action)
			if err != nil {
				return Decision{}, err
			}
			if allowed {
				return Decision{Allowed: true, Reason: fmt.Sprintf("%s:%s", ReasonMembershipRole, m.Role)}, nil
			}
		}
	}

	s.metrics.IncPermissionDenial(action)
	s.log.Debug("permission denied",
		zap.Int64("user_id", caller.UserID),
		zap.String("building_id", buildingID.String()),
		zap.String("action", action),
	)
	return Decision{Allowed: false, Reason: ReasonNoGrant}, nil
}

func (s *serviceImpl) Authorize(ctx context.Context, caller identity.Identity, buildingID, unitID snowflake.ID, action string) error {
	decision, err := s.Resolve(ctx, caller, buildingID, unitID, action)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ErrNoGrant
	}
	return nil
}

func (s *serviceImpl) ValidateOverrides(overrides []buildingdomain.PolicyOverride) error {
	for _, o := range overrides {
		if !KnownAction(o.Action) {
			return fmt.Errorf("%w: %s", ErrUnknownAction, o.Action)
		}
		if !directorydomain.KnownMembershipRole(directorydomain.MembershipRole(o.Role)) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, o.Role)
		}
		switch o.Effect {
		case buildingdomain.OverrideAllow:
			if destructiveActions[o.Action] {
				return fmt.Errorf("%w: %s", ErrDestructiveActionOverride, o.Action)
			}
		case buildingdomain.OverrideDeny:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidOverrideEffect, o.Effect)
		}
	}
	return nil
}

func (s *serviceImpl) SyncOverrides(_ context.Context, buildingID snowflake.ID, overrides []buildingdomain.PolicyOverride) error {
	if err := s.ValidateOverrides(overrides); err != nil {
		return err
	}

	dom := buildingDomain(buildingID)
	if _, err := s.enforcer.RemoveFilteredPolicy(1, dom); err != nil {
		return err
	}
	for _, o := range overrides {
		obj, _ := ObjectFor(o.Action)
		if _, err := s.enforcer.AddPolicy(membershipRoleSubject(directorydomain.MembershipRole(o.Role)), dom, obj, o.Action, string(o.Effect)); err != nil {
			return err
		}
	}

	s.log.Info("policy overrides installed",
		zap.String("building_id", buildingID.String()),
		zap.Int("count", len(overrides)),
	)
	return nil
}
