package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMeanReversionClosedForm(t *testing.T) {
	m := NewMeanReversion(1100, 180)
	start := day(2026, 1, 1)

	s := m.Forecast(1000, start, 365)
	require.Equal(t, 365, s.Len())

	// The forecast starts the day after the anchor.
	first, _ := s.First()
	require.Equal(t, day(2026, 1, 2), first.Date)

	// After one half-life the deviation from the mean has halved.
	atHalfLife, ok := s.At(start.AddDate(0, 0, 180))
	require.True(t, ok)
	require.InDelta(t, 1050, atHalfLife, 1e-9)

	// Monotone relaxation toward the mean from below.
	values := s.Values()
	for i := 1; i < len(values); i++ {
		require.Greater(t, values[i], values[i-1])
		require.Less(t, values[i], 1100.0)
	}
}

func TestMeanReversionAtMeanStaysFlat(t *testing.T) {
	m := NewMeanReversion(1100, 180)
	s := m.Forecast(1100, day(2026, 1, 1), 30)
	for _, v := range s.Values() {
		require.InDelta(t, 1100, v, 1e-9)
	}
}

func TestMeanReversionDefaultHalfLife(t *testing.T) {
	m := NewMeanReversion(900, 0)
	require.Equal(t, 180, m.HalfLifeDays)
}

func TestMeanReversionZeroHorizon(t *testing.T) {
	m := NewMeanReversion(1100, 180)
	require.True(t, m.Forecast(1000, day(2026, 1, 1), 0).IsEmpty())
}
