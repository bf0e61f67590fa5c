package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/pkg/db"
	"github.com/vhodhq/vhod/pkg/repository"
	"github.com/vhodhq/vhod/pkg/repository/option"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	buildings repository.Repository[domain.Building]
	units     repository.Repository[domain.Unit]
	genID     *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
}

func NewService(
	gdb *gorm.DB,
	buildings repository.Repository[domain.Building],
	units repository.Repository[domain.Unit],
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:        gdb,
		buildings: buildings,
		units:     units,
		genID:     genID,
		clock:     clk,
		log:       log.Named("building.service"),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateBuildingRequest) (*domain.Building, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := validateSettings(req.Settings); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	building := domain.Building{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Address:   strings.TrimSpace(req.Address),
		City:      strings.TrimSpace(req.City),
		Entrances: datatypes.NewJSONType(normalizeEntrances(req.Entrances)),
		Settings:  datatypes.NewJSONType(req.Settings),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.buildings.Create(ctx, &building); err != nil {
		return nil, err
	}

	s.log.Info("building created",
		zap.String("building_id", building.ID.String()),
		zap.String("slug", building.Slug),
	)
	return &building, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Building, error) {
	building, err := s.buildings.FindOne(ctx, &domain.Building{ID: id})
	if err != nil {
		return nil, err
	}
	if building == nil {
		return nil, domain.ErrBuildingNotFound
	}
	return building, nil
}

func (s *service) List(ctx context.Context) ([]domain.Building, error) {
	rows, err := s.buildings.Find(ctx, &domain.Building{}, option.WithOrder("name ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Building, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *service) UpdateSettings(ctx context.Context, id snowflake.ID, settings domain.Settings) (*domain.Building, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	building, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	building.Settings = datatypes.NewJSONType(settings)
	building.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(building).Error; err != nil {
		return nil, err
	}
	return building, nil
}

func (s *service) CreateUnit(ctx context.Context, req domain.CreateUnitRequest) (*domain.Unit, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, domain.ErrInvalidLabel
	}
	if req.AreaDm2 < 0 || req.SharesMilli < 0 {
		return nil, domain.ErrInvalidWeight
	}
	if req.Occupants < 0 {
		return nil, domain.ErrInvalidOccupants
	}

	building, err := s.GetByID(ctx, req.BuildingID)
	if err != nil {
		return nil, err
	}
	entrance := strings.TrimSpace(req.Entrance)
	if err := validateEntrance(building, entrance); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	unit := domain.Unit{
		ID:          s.genID.Generate(),
		BuildingID:  req.BuildingID,
		Label:       label,
		Entrance:    entrance,
		Floor:       req.Floor,
		AreaDm2:     req.AreaDm2,
		SharesMilli: req.SharesMilli,
		Occupants:   req.Occupants,
		IntercomExt: strings.TrimSpace(req.IntercomExt),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.units.Create(ctx, &unit); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateUnit
		}
		return nil, err
	}
	return &unit, nil
}

func (s *service) UpdateUnit(ctx context.Context, id snowflake.ID, req domain.UpdateUnitRequest) (*domain.Unit, error) {
	unit, err := s.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Label != nil {
		label := strings.TrimSpace(*req.Label)
		if label == "" {
			return nil, domain.ErrInvalidLabel
		}
		unit.Label = label
	}
	if req.Entrance != nil {
		building, err := s.GetByID(ctx, unit.BuildingID)
		if err != nil {
			return nil, err
		}
		entrance := strings.TrimSpace(*req.Entrance)
		if err := validateEntrance(building, entrance); err != nil {
			return nil, err
		}
		unit.Entrance = entrance
	}
	if req.Floor != nil {
		unit.Floor = *req.Floor
	}
	if req.AreaDm2 != nil {
		if *req.AreaDm2 < 0 {
			return nil, domain.ErrInvalidWeight
		}
		unit.AreaDm2 = *req.AreaDm2
	}
	if req.SharesMilli != nil {
		if *req.SharesMilli < 0 {
			return nil, domain.ErrInvalidWeight
		}
		unit.SharesMilli = *req.SharesMilli
	}
	if req.Occupants != nil {
		if *req.Occupants < 0 {
			return nil, domain.ErrInvalidOccupants
		}
		unit.Occupants = *req.Occupants
	}
	if req.IntercomExt != nil {
		unit.IntercomExt = strings.TrimSpace(*req.IntercomExt)
	}

	unit.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(unit).Error; err != nil {
		return nil, err
	}
	return unit, nil
}

func (s *service) GetUnit(ctx context.Context, id snowflake.ID) (*domain.Unit, error) {
	unit, err := s.units.FindOne(ctx, &domain.Unit{ID: id})
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, domain.ErrUnitNotFound
	}
	return unit, nil
}

func (s *service) ListUnits(ctx context.Context, buildingID snowflake.ID) ([]domain.Unit, error) {
	rows, err := s.units.Find(ctx, &domain.Unit{BuildingID: buildingID}, option.WithOrder("label ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Unit, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *service) ListActiveUnits(ctx context.Context, buildingID snowflake.ID) ([]domain.Unit, error) {
	rows, err := s.units.Find(ctx, &domain.Unit{BuildingID: buildingID, Active: true}, option.WithOrder("id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Unit, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

func (s *service) SetUnitActive(ctx context.Context, id snowflake.ID, active bool) (*domain.Unit, error) {
	unit, err := s.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if unit.Active == active {
		return unit, nil
	}

	unit.Active = active
	unit.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(unit).Error; err != nil {
		return nil, err
	}
	s.log.Info("unit active flag changed",
		zap.String("unit_id", unit.ID.String()),
		zap.Bool("active", active),
	)
	return unit, nil
}

func (s *service) UpdateEntrances(ctx context.Context, id snowflake.ID, entrances []string) (*domain.Building, error) {
	building, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := normalizeEntrances(entrances)
	units, err := s.ListUnits(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		if unit.Entrance != "" && !slices.Contains(next, unit.Entrance) {
			return nil, domain.ErrEntranceInUse
		}
	}

	building.Entrances = datatypes.NewJSONType(next)
	building.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(building).Error; err != nil {
		return nil, err
	}
	return building, nil
}

// validateEntrance checks a unit's entrance against the building's
// label list. Buildings without declared entrances accept anything.
func validateEntrance(building *domain.Building, entrance string) error {
	if entrance == "" {
		return nil
	}
	declared := building.Entrances.Data()
	if len(declared) == 0 {
		return nil
	}
	if !slices.Contains(declared, entrance) {
		return domain.ErrUnknownEntrance
	}
	return nil
}

func normalizeEntrances(entrances []string) []string {
	out := make([]string, 0, len(entrances))
	for _, label := range entrances {
		label = strings.TrimSpace(label)
		if label != "" && !slices.Contains(out, label) {
			out = append(out, label)
		}
	}
	return out
}

func validateSettings(settings domain.Settings) error {
	if settings.DueDay < 0 || settings.DueDay > 28 {
		return domain.ErrInvalidSettings
	}
	if settings.GraceDays < 0 || settings.LateFeeBps < 0 {
		return domain.ErrInvalidSettings
	}
	if qh := settings.QuietHours; qh != nil {
		if !validClock(qh.Start) || !validClock(qh.End) {
			return domain.ErrInvalidSettings
		}
	}
	return nil
}

func validClock(value string) bool {
	_, err := time.Parse("15:04", value)
	return err == nil
}
