package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/clock"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/observability/metrics"
	"github.com/vhodhq/vhod/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db      *gorm.DB
	source  domain.Source
	timeout time.Duration
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewService(
	gdb *gorm.DB,
	source domain.Source,
	timeout time.Duration,
	genID *snowflake.Node,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &service{
		db:      gdb,
		source:  source,
		timeout: timeout,
		genID:   genID,
		clock:   clk,
		metrics: m,
		log:     log.Named("metering.service"),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	return &clone
}

func (s *service) RegisterMeter(ctx context.Context, req domain.RegisterMeterRequest) (*domain.Meter, error) {
	kind := strings.TrimSpace(strings.ToLower(req.Kind))
	if kind == "" {
		return nil, domain.ErrInvalidKind
	}

	meter := domain.Meter{
		ID:         s.genID.Generate(),
		BuildingID: req.BuildingID,
		UnitID:     req.UnitID,
		Kind:       kind,
		Serial:     strings.TrimSpace(req.Serial),
		CreatedAt:  s.clock.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&meter).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateMeter
		}
		return nil, err
	}
	return &meter, nil
}

func (s *service) GetMeter(ctx context.Context, id snowflake.ID) (*domain.Meter, error) {
	var meter domain.Meter
	if err := s.db.WithContext(ctx).First(&meter, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMeterNotFound
		}
		return nil, err
	}
	return &meter, nil
}

func (s *service) ListMeters(ctx context.Context, buildingID snowflake.ID, kind string) ([]domain.Meter, error) {
	stmt := s.db.WithContext(ctx).Where("building_id = ?", buildingID)
	if kind != "" {
		stmt = stmt.Where("kind = ?", strings.ToLower(kind))
	}
	var rows []domain.Meter
	err := stmt.Order("unit_id ASC").Find(&rows).Error
	return rows, err
}

func (s *service) RecordReading(ctx context.Context, req domain.RecordReadingRequest) (*domain.MeterReading, error) {
	if !req.Period.Valid() {
		return nil, expensedomain.ErrInvalidPeriod
	}
	if req.ValueMilli < 0 {
		return nil, domain.ErrInvalidReading
	}
	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}

	var saved domain.MeterReading
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meter domain.Meter
		if err := tx.First(&meter, "id = ?", req.MeterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrMeterNotFound
			}
			return err
		}

		return s.upsertReading(tx, req, source, &saved)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// upsertReading enforces monotonicity against both neighbors: the
// stored values before and after the period. "YYYY-MM" sorts
// chronologically, so string ordering works.
func (s *service) upsertReading(tx *gorm.DB, req domain.RecordReadingRequest, source domain.ReadingSourceKind, out *domain.MeterReading) error {
	var prev domain.MeterReading
	err := tx.Where("meter_id = ? AND period < ?", req.MeterID, req.Period).
		Order("period DESC").First(&prev).Error
	if err == nil && prev.ValueMilli > req.ValueMilli {
		return domain.ErrNonMonotonicReading
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var next domain.MeterReading
	err = tx.Where("meter_id = ? AND period > ?", req.MeterID, req.Period).
		Order("period ASC").First(&next).Error
	if err == nil && next.ValueMilli < req.ValueMilli {
		return domain.ErrNonMonotonicReading
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := s.clock.Now()
	var existing domain.MeterReading
	err = tx.Where("meter_id = ? AND period = ?", req.MeterID, req.Period).First(&existing).Error
	switch {
	case err == nil:
		existing.ValueMilli = req.ValueMilli
		existing.Source = source
		existing.RecordedBy = req.RecordedBy
		existing.UpdatedAt = now
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*out = existing
	case errors.Is(err, gorm.ErrRecordNotFound):
		reading := domain.MeterReading{
			ID:         s.genID.Generate(),
			MeterID:    req.MeterID,
			Period:     req.Period,
			ValueMilli: req.ValueMilli,
			Source:     source,
			RecordedBy: req.RecordedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&reading).Error; err != nil {
			return err
		}
		*out = reading
	default:
		return err
	}
	return nil
}

func (s *service) ListReadings(ctx context.Context, meterID snowflake.ID) ([]domain.MeterReading, error) {
	var rows []domain.MeterReading
	err := s.db.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order("period ASC").
		Find(&rows).Error
	return rows, err
}

func (s *service) ConsumptionForPeriod(ctx context.Context, buildingID snowflake.ID, kind string, period expensedomain.Period) (map[snowflake.ID]int64, error) {
	if !period.Valid() {
		return nil, expensedomain.ErrInvalidPeriod
	}

	meters, err := s.ListMeters(ctx, buildingID, kind)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return map[snowflake.ID]int64{}, nil
	}

	meterIDs := make([]snowflake.ID, 0, len(meters))
	meterUnit := make(map[snowflake.ID]snowflake.ID, len(meters))
	for _, m := range meters {
		meterIDs = append(meterIDs, m.ID)
		meterUnit[m.ID] = m.UnitID
	}

	var rows []domain.MeterReading
	err = s.db.WithContext(ctx).
		Where("meter_id IN ?", meterIDs).
		Where("period IN ?", []expensedomain.Period{period, prevPeriod(period)}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	current := make(map[snowflake.ID]int64)
	previous := make(map[snowflake.ID]int64)
	for _, r := range rows {
		if r.Period == period {
			current[r.MeterID] = r.ValueMilli
		} else {
			previous[r.MeterID] = r.ValueMilli
		}
	}

	consumption := make(map[snowflake.ID]int64)
	for meterID, end := range current {
		start, ok := previous[meterID]
		if !ok {
			continue
		}
		consumption[meterUnit[meterID]] += end - start
	}
	return consumption, nil
}

func (s *service) ImportReadings(ctx context.Context, buildingID snowflake.ID, kind string, period expensedomain.Period) (int, error) {
	if s.source == nil {
		return 0, identity.ErrCollaboratorUnavailable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	imported, err := s.source.FetchReadings(fetchCtx, buildingID, kind, period)
	if err != nil {
		s.metrics.IncCollaboratorError("reading_source")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return 0, identity.ErrCollaboratorUnavailable
		}
		return 0, err
	}

	meters, err := s.ListMeters(ctx, buildingID, kind)
	if err != nil {
		return 0, err
	}
	bySerial := make(map[string]snowflake.ID, len(meters))
	for _, m := range meters {
		if m.Serial != "" {
			bySerial[m.Serial] = m.ID
		}
	}

	count := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range imported {
			meterID, ok := bySerial[row.MeterSerial]
			if !ok {
				s.log.Warn("imported reading for unknown meter",
					zap.String("serial", row.MeterSerial),
					zap.String("building_id", buildingID.String()),
				)
				continue
			}
			var saved domain.MeterReading
			req := domain.RecordReadingRequest{
				MeterID:    meterID,
				Period:     period,
				ValueMilli: row.ValueMilli,
				Source:     domain.SourceRemote,
			}
			if err := s.upsertReading(tx, req, domain.SourceRemote, &saved); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("readings imported",
		zap.String("building_id", buildingID.String()),
		zap.String("kind", kind),
		zap.String("period", period.String()),
		zap.Int("count", count),
	)
	return count, nil
}

func prevPeriod(p expensedomain.Period) expensedomain.Period {
	return expensedomain.PeriodOf(p.Start().AddDate(0, -1, 0))
}
