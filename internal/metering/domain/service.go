package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a copy bound to the given transaction so callers
	// can read consumption inside their own unit of work.
	WithTx(tx *gorm.DB) Service

	RegisterMeter(ctx context.Context, req RegisterMeterRequest) (*Meter, error)
	GetMeter(ctx context.Context, id snowflake.ID) (*Meter, error)
	ListMeters(ctx context.Context, buildingID snowflake.ID, kind string) ([]Meter, error)

	// RecordReading stores the cumulative value for (meter, period).
	// A second call for the same pair replaces the stored value; either
	// way the sequence across periods must stay non-decreasing.
	RecordReading(ctx context.Context, req RecordReadingRequest) (*MeterReading, error)
	ListReadings(ctx context.Context, meterID snowflake.ID) ([]MeterReading, error)

	// ConsumptionForPeriod returns per-unit consumption in milli-units
	// for one meter kind: the period's value minus the previous
	// period's. Units without both readings are absent from the map.
	ConsumptionForPeriod(ctx context.Context, buildingID snowflake.ID, kind string, period expensedomain.Period) (map[snowflake.ID]int64, error)

	// ImportReadings pulls a period's readings from the remote source
	// and records them. Partial imports roll back.
	ImportReadings(ctx context.Context, buildingID snowflake.ID, kind string, period expensedomain.Period) (int, error)
}

type RegisterMeterRequest struct {
	BuildingID snowflake.ID
	UnitID     snowflake.ID
	Kind       string
	Serial     string
}

type RecordReadingRequest struct {
	MeterID    snowflake.ID
	Period     expensedomain.Period
	ValueMilli int64
	Source     ReadingSourceKind
	RecordedBy snowflake.ID
}

// ImportedReading is one row fetched from the remote reading source.
type ImportedReading struct {
	MeterSerial string
	ValueMilli  int64
}

// Source is the external meter reading collaborator.
type Source interface {
	FetchReadings(ctx context.Context, buildingID snowflake.ID, kind string, period expensedomain.Period) ([]ImportedReading, error)
}

var (
	ErrInvalidKind         = errors.New("invalid_meter_kind")
	ErrInvalidReading      = errors.New("invalid_reading")
	ErrDuplicateMeter      = errors.New("duplicate_meter")
	ErrMeterNotFound       = errors.New("meter_not_found")
	ErrNonMonotonicReading = errors.New("non_monotonic_reading")
)
