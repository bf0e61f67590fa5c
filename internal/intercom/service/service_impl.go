package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/internal/intercom/domain"
	"github.com/vhodhq/vhod/internal/policy"
	"github.com/vhodhq/vhod/pkg/db"
	"github.com/vhodhq/vhod/pkg/repository"
	"github.com/vhodhq/vhod/pkg/repository/option"
)

type service struct {
	endpoints repository.Repository[domain.Endpoint]
	buildings buildingdomain.Service
	directory directorydomain.Service
	policies  policy.Service
	genID     *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
}

func NewService(
	endpoints repository.Repository[domain.Endpoint],
	buildings buildingdomain.Service,
	directory directorydomain.Service,
	policies policy.Service,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		endpoints: endpoints,
		buildings: buildings,
		directory: directory,
		policies:  policies,
		genID:     genID,
		clock:     clk,
		log:       log.Named("intercom.service"),
	}
}

func (s *service) CreateEndpoint(ctx context.Context, req domain.CreateEndpointRequest) (*domain.Endpoint, error) {
	transport := strings.TrimSpace(req.Transport)
	address := strings.TrimSpace(req.Address)
	if transport == "" || address == "" {
		return nil, domain.ErrInvalidEndpoint
	}
	unit, err := s.buildings.GetUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	endpoint := domain.Endpoint{
		ID:         s.genID.Generate(),
		BuildingID: unit.BuildingID,
		UnitID:     unit.ID,
		Transport:  transport,
		Address:    address,
		Public:     req.Public,
		Allow:      datatypes.NewJSONType(normalizeRefs(req.Allow)),
		Block:      datatypes.NewJSONType(normalizeRefs(req.Block)),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.endpoints.Create(ctx, &endpoint); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateEndpoint
		}
		return nil, err
	}
	return &endpoint, nil
}

func (s *service) UpdateEndpoint(ctx context.Context, id snowflake.ID, req domain.UpdateEndpointRequest) (*domain.Endpoint, error) {
	endpoint, err := s.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Public != nil {
		endpoint.Public = *req.Public
	}
	if req.Allow != nil {
		endpoint.Allow = datatypes.NewJSONType(normalizeRefs(*req.Allow))
	}
	if req.Block != nil {
		endpoint.Block = datatypes.NewJSONType(normalizeRefs(*req.Block))
	}
	if req.Active != nil {
		endpoint.Active = *req.Active
	}

	endpoint.UpdatedAt = s.clock.Now().UTC()
	if err := s.endpoints.Update(ctx, endpoint.ID.String(), endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (s *service) GetEndpoint(ctx context.Context, id snowflake.ID) (*domain.Endpoint, error) {
	endpoint, err := s.endpoints.FindOne(ctx, &domain.Endpoint{ID: id})
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, domain.ErrEndpointNotFound
	}
	return endpoint, nil
}

func (s *service) ListEndpoints(ctx context.Context, buildingID snowflake.ID) ([]*domain.Endpoint, error) {
	return s.endpoints.Find(ctx, &domain.Endpoint{BuildingID: buildingID}, option.WithOrder("address ASC"))
}

func (s *service) CanCall(ctx context.Context, caller identity.Identity, endpointID snowflake.ID) (domain.CallDecision, error) {
	endpoint, err := s.GetEndpoint(ctx, endpointID)
	if err != nil {
		return domain.CallDecision{}, err
	}
	if !endpoint.Active {
		return s.deny(caller, endpoint, domain.ReasonInactive), nil
	}

	refs, err := s.callerRefs(ctx, caller, endpoint.BuildingID)
	if err != nil {
		return domain.CallDecision{}, err
	}

	// A block entry wins over every other rule, public endpoints
	// included.
	if matchesAny(endpoint.Block.Data(), refs) {
		return s.deny(caller, endpoint, domain.ReasonBlocked), nil
	}

	if s.inQuietHours(ctx, endpoint.BuildingID) && !staffExempt(caller) {
		return s.deny(caller, endpoint, domain.ReasonQuietHours), nil
	}

	if endpoint.Public {
		return domain.CallDecision{Allowed: true, Reason: domain.ReasonPublic}, nil
	}

	decision, err := s.policies.Resolve(ctx, caller, endpoint.BuildingID, 0, policy.ActionIntercomCallUnit)
	if err != nil {
		return domain.CallDecision{}, err
	}
	if decision.Allowed {
		return domain.CallDecision{Allowed: true, Reason: domain.ReasonGranted}, nil
	}
	if matchesAny(endpoint.Allow.Data(), refs) {
		return domain.CallDecision{Allowed: true, Reason: domain.ReasonAllowListed}, nil
	}
	return s.deny(caller, endpoint, domain.ReasonNoGrant), nil
}

// callerRefs builds the list-matchable references for the caller in the
// endpoint's building: site role names, active membership role names,
// and "unit:<id>" for every unit the caller actively occupies there.
func (s *service) callerRefs(ctx context.Context, caller identity.Identity, buildingID snowflake.ID) ([]string, error) {
	refs := make([]string, 0, 4)
	for _, role := range caller.SiteRoles {
		refs = append(refs, string(role))
	}

	memberships, err := s.directory.ActiveForUser(ctx, snowflake.ID(caller.UserID), s.clock.Now())
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		if m.BuildingID != buildingID {
			continue
		}
		role := string(m.Role)
		if !slices.Contains(refs, role) {
			refs = append(refs, role)
		}
		refs = append(refs, fmt.Sprintf("unit:%s", m.UnitID))
	}
	return refs, nil
}

func matchesAny(list, refs []string) bool {
	for _, entry := range list {
		if slices.Contains(refs, entry) {
			return true
		}
	}
	return false
}

func (s *service) deny(caller identity.Identity, endpoint *domain.Endpoint, reason string) domain.CallDecision {
	s.log.Info("intercom call denied",
		zap.Int64("user_id", caller.UserID),
		zap.String("endpoint", endpoint.Address),
		zap.Int64("unit_id", int64(endpoint.UnitID)),
		zap.String("reason", reason),
	)
	return domain.CallDecision{Allowed: false, Reason: reason}
}

// inQuietHours reports whether the building's quiet window covers the
// current wall clock. Windows may wrap past midnight ("22:00"-"07:00").
func (s *service) inQuietHours(ctx context.Context, buildingID snowflake.ID) bool {
	building, err := s.buildings.GetByID(ctx, buildingID)
	if err != nil {
		return false
	}
	qh := building.Settings.Data().QuietHours
	if qh == nil {
		return false
	}
	start, err := time.Parse("15:04", qh.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", qh.End)
	if err != nil {
		return false
	}

	now := s.clock.Now().UTC()
	minute := now.Hour()*60 + now.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()

	if from == to {
		return false
	}
	if from < to {
		return minute >= from && minute < to
	}
	return minute >= from || minute < to
}

func staffExempt(caller identity.Identity) bool {
	return caller.IsSuperuser ||
		caller.HasSiteRole(identity.SiteRoleSuperadmin) ||
		caller.HasSiteRole(identity.SiteRoleStaff)
}

func normalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref != "" && !slices.Contains(out, ref) {
			out = append(out, ref)
		}
	}
	return out
}
