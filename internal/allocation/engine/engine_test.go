package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(parts []Part) map[int64]int64 {
	out := make(map[int64]int64, len(parts))
	for _, p := range parts {
		out[int64(p.UnitID)] = p.AmountCents
	}
	return out
}

func TestSplitEqualWeightsResidualCent(t *testing.T) {
	// 100.00 over three equal units: the leftover cent goes to the
	// lowest unit id.
	parts, err := Split(10_000, []Weight{
		{UnitID: 1, Value: 1},
		{UnitID: 2, Value: 1},
		{UnitID: 3, Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 3334, 2: 3333, 3: 3333}, amounts(parts))
}

func TestSplitPerPersonWithVacantUnit(t *testing.T) {
	// 50.00 across occupants {2, 0, 3}: the vacant unit pays nothing.
	parts, err := Split(5_000, []Weight{
		{UnitID: 1, Value: 2},
		{UnitID: 2, Value: 0},
		{UnitID: 3, Value: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 2000, 2: 0, 3: 3000}, amounts(parts))
}

func TestSplitLargestRemainderWins(t *testing.T) {
	// 1/7, 2/7, 4/7 of 1.00: exact slices are 14.28…, 28.57…, 57.14…
	// so the residual cent lands on the 2/7 slice.
	parts, err := Split(100, []Weight{
		{UnitID: 1, Value: 1},
		{UnitID: 2, Value: 2},
		{UnitID: 3, Value: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 14, 2: 29, 3: 57}, amounts(parts))
}

func TestSplitSumsExactly(t *testing.T) {
	weights := []Weight{
		{UnitID: 1, Value: 8_513},
		{UnitID: 2, Value: 7_211},
		{UnitID: 3, Value: 12_949},
		{UnitID: 4, Value: 3},
		{UnitID: 5, Value: 0},
		{UnitID: 6, Value: 99_101},
	}
	for _, total := range []int64{1, 97, 12_345, 1_000_001, 987_654_321} {
		parts, err := Split(total, weights)
		require.NoError(t, err)
		sum := int64(0)
		for _, p := range parts {
			assert.GreaterOrEqual(t, p.AmountCents, int64(0))
			sum += p.AmountCents
		}
		assert.Equal(t, total, sum)
	}
}

func TestSplitNegativeTotal(t *testing.T) {
	parts, err := Split(-100, []Weight{
		{UnitID: 1, Value: 1},
		{UnitID: 2, Value: 2},
	})
	require.NoError(t, err)
	sum := int64(0)
	for _, p := range parts {
		sum += p.AmountCents
	}
	assert.Equal(t, int64(-100), sum)
}

func TestSplitRejectsBadWeights(t *testing.T) {
	_, err := Split(100, []Weight{{UnitID: 1, Value: -1}})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = Split(100, []Weight{{UnitID: 1, Value: 0}, {UnitID: 2, Value: 0}})
	assert.ErrorIs(t, err, ErrNoAllocationTargets)

	_, err = Split(100, nil)
	assert.ErrorIs(t, err, ErrNoAllocationTargets)
}

func TestMeteredTotalCents(t *testing.T) {
	// 12.000 units at 3.25/unit = 39.00.
	total, err := MeteredTotalCents([]Consumption{
		{UnitID: 1, ValueMilli: 12_000},
	}, 325)
	require.NoError(t, err)
	assert.Equal(t, int64(3_900), total)

	// 1.5 units at 0.33/unit = 0.495, rounds half-up to 0.50.
	total, err = MeteredTotalCents([]Consumption{
		{UnitID: 1, ValueMilli: 1_500},
	}, 33)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)
}

func TestSplitMeteredExactMatch(t *testing.T) {
	consumption := []Consumption{
		{UnitID: 1, ValueMilli: 10_000},
		{UnitID: 2, ValueMilli: 30_000},
	}
	parts, err := SplitMetered(4_000, consumption, 100, false)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 1_000, 2: 3_000}, amounts(parts))
}

func TestSplitMeteredMismatch(t *testing.T) {
	consumption := []Consumption{
		{UnitID: 1, ValueMilli: 10_000},
		{UnitID: 2, ValueMilli: 30_000},
	}

	_, err := SplitMetered(4_100, consumption, 100, false)
	assert.ErrorIs(t, err, ErrMeteredTotalMismatch)

	// Redistribute mode absorbs the difference proportionally.
	parts, err := SplitMetered(4_100, consumption, 100, true)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 1_025, 2: 3_075}, amounts(parts))
}

func TestSplitMeteredNoConsumption(t *testing.T) {
	_, err := SplitMetered(4_000, []Consumption{{UnitID: 1, ValueMilli: 0}}, 100, true)
	assert.ErrorIs(t, err, ErrNoAllocationTargets)
}
