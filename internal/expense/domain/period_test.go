package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-02")
	require.NoError(t, err)
	assert.Equal(t, Period("2026-02"), p)

	for _, raw := range []string{"2026-13", "2026-2", "202602", "feb 2026", ""} {
		_, err := ParsePeriod(raw)
		assert.ErrorIs(t, err, ErrInvalidPeriod, raw)
	}
}

func TestPeriodBounds(t *testing.T) {
	p := Period("2026-02")
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, Period("2026-03"), p.Next())
	assert.Equal(t, "202602", p.Compact())

	// December rolls the year.
	assert.Equal(t, Period("2027-01"), Period("2026-12").Next())
}

func TestPeriodOf(t *testing.T) {
	at := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, Period("2026-07"), PeriodOf(at))
}
