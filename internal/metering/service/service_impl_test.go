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
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/internal/metering/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSource struct {
	rows []domain.ImportedReading
	err  error
}

func (f *fakeSource) FetchReadings(context.Context, snowflake.ID, string, expensedomain.Period) ([]domain.ImportedReading, error) {
	return f.rows, f.err
}

func newTestService(t *testing.T, source domain.Source) domain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&domain.Meter{}, &domain.MeterReading{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))

	return NewService(gdb, source, time.Second, node, clk, nil, zap.NewNop())
}

func TestRecordReadingMonotonic(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	meter, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{
		BuildingID: 1, UnitID: 11, Kind: "water", Serial: "W-001",
	})
	require.NoError(t, err)

	_, err = svc.RecordReading(ctx, domain.RecordReadingRequest{
		MeterID: meter.ID, Period: "2026-01", ValueMilli: 100_000,
	})
	require.NoError(t, err)

	_, err = svc.RecordReading(ctx, domain.RecordReadingRequest{
		MeterID: meter.ID, Period: "2026-02", ValueMilli: 103_500,
	})
	require.NoError(t, err)

	// Lower than January is a rollback.
	_, err = svc.RecordReading(ctx, domain.RecordReadingRequest{
		MeterID: meter.ID, Period: "2026-03", ValueMilli: 90_000,
	})
	assert.ErrorIs(t, err, domain.ErrNonMonotonicReading)

	// Backfilling between neighbors must respect both.
	_, err = svc.RecordReading(ctx, domain.RecordReadingRequest{
		MeterID: meter.ID, Period: "2026-01", ValueMilli: 104_000,
	})
	assert.ErrorIs(t, err, domain.ErrNonMonotonicReading)

	// Re-recording the same period with a valid value replaces it.
	updated, err := svc.RecordReading(ctx, domain.RecordReadingRequest{
		MeterID: meter.ID, Period: "2026-02", ValueMilli: 104_000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(104_000), updated.ValueMilli)

	readings, err := svc.ListReadings(ctx, meter.ID)
	require.NoError(t, err)
	require.Len(t, readings, 2)
}

func TestConsumptionForPeriod(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	m1, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 2, UnitID: 21, Kind: "water"})
	require.NoError(t, err)
	m2, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 2, UnitID: 22, Kind: "water"})
	require.NoError(t, err)
	// A meter with no February reading stays out of the result.
	m3, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 2, UnitID: 23, Kind: "water"})
	require.NoError(t, err)

	for _, r := range []struct {
		meter  snowflake.ID
		period expensedomain.Period
		value  int64
	}{
		{m1.ID, "2026-01", 50_000},
		{m1.ID, "2026-02", 62_000},
		{m2.ID, "2026-01", 10_000},
		{m2.ID, "2026-02", 10_000},
		{m3.ID, "2026-01", 5_000},
	} {
		_, err := svc.RecordReading(ctx, domain.RecordReadingRequest{
			MeterID: r.meter, Period: r.period, ValueMilli: r.value,
		})
		require.NoError(t, err)
	}

	consumption, err := svc.ConsumptionForPeriod(ctx, 2, "water", "2026-02")
	require.NoError(t, err)
	assert.Equal(t, map[snowflake.ID]int64{
		21: 12_000,
		22: 0,
	}, consumption)
}

func TestImportReadings(t *testing.T) {
	source := &fakeSource{rows: []domain.ImportedReading{
		{MeterSerial: "W-100", ValueMilli: 1_000},
		{MeterSerial: "UNKNOWN", ValueMilli: 9_999},
	}}
	svc := newTestService(t, source)
	ctx := context.Background()

	meter, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{
		BuildingID: 3, UnitID: 31, Kind: "water", Serial: "W-100",
	})
	require.NoError(t, err)

	count, err := svc.ImportReadings(ctx, 3, "water", "2026-02")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	readings, err := svc.ListReadings(ctx, meter.ID)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, domain.SourceRemote, readings[0].Source)
}

func TestImportReadingsSourceTimeout(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: context.DeadlineExceeded})

	_, err := svc.ImportReadings(context.Background(), 3, "water", "2026-02")
	assert.ErrorIs(t, err, identity.ErrCollaboratorUnavailable)
}

func TestRegisterMeterValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 1, UnitID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 1, UnitID: 1, Kind: "Water"})
	require.NoError(t, err)
	_, err = svc.RegisterMeter(ctx, domain.RegisterMeterRequest{BuildingID: 1, UnitID: 1, Kind: "water"})
	assert.ErrorIs(t, err, domain.ErrDuplicateMeter)
}
