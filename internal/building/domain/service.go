package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateBuildingRequest) (*Building, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Building, error)
	List(ctx context.Context) ([]Building, error)
	UpdateSettings(ctx context.Context, id snowflake.ID, settings Settings) (*Building, error)

	// UpdateEntrances replaces the entrance label list. A label still
	// referenced by a unit cannot be removed.
	UpdateEntrances(ctx context.Context, id snowflake.ID, entrances []string) (*Building, error)

	CreateUnit(ctx context.Context, req CreateUnitRequest) (*Unit, error)
	UpdateUnit(ctx context.Context, id snowflake.ID, req UpdateUnitRequest) (*Unit, error)
	GetUnit(ctx context.Context, id snowflake.ID) (*Unit, error)
	ListUnits(ctx context.Context, buildingID snowflake.ID) ([]Unit, error)

	// ListActiveUnits returns the units the allocation engine bills.
	ListActiveUnits(ctx context.Context, buildingID snowflake.ID) ([]Unit, error)

	// SetUnitActive soft-disables or re-enables a unit. Historical
	// allocations and invoices keep referencing disabled units.
	SetUnitActive(ctx context.Context, id snowflake.ID, active bool) (*Unit, error)
}

type CreateBuildingRequest struct {
	Name      string
	Address   string
	City      string
	Entrances []string
	Settings  Settings
}

type CreateUnitRequest struct {
	BuildingID  snowflake.ID
	Label       string
	Entrance    string
	Floor       int
	AreaDm2     int64
	SharesMilli int64
	Occupants   int
	IntercomExt string
}

// UpdateUnitRequest carries optional field updates; nil means unchanged.
type UpdateUnitRequest struct {
	Label       *string `json:"label,omitempty"`
	Entrance    *string `json:"entrance,omitempty"`
	Floor       *int    `json:"floor,omitempty"`
	AreaDm2     *int64  `json:"area_dm2,omitempty"`
	SharesMilli *int64  `json:"shares_milli,omitempty"`
	Occupants   *int    `json:"occupants,omitempty"`
	IntercomExt *string `json:"intercom_ext,omitempty"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidLabel     = errors.New("invalid_label")
	ErrInvalidWeight    = errors.New("invalid_weight")
	ErrInvalidOccupants = errors.New("invalid_occupants")
	ErrInvalidSettings  = errors.New("invalid_settings")
	ErrUnknownEntrance  = errors.New("unknown_entrance")
	ErrEntranceInUse    = errors.New("entrance_in_use")
	ErrBuildingNotFound = errors.New("building_not_found")
	ErrUnitNotFound     = errors.New("unit_not_found")
	ErrDuplicateUnit    = errors.New("duplicate_unit")
)
