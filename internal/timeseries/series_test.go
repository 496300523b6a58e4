package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewSortsAndDeduplicates(t *testing.T) {
	s, err := New(
		[]time.Time{day(2026, 1, 3), day(2026, 1, 1), day(2026, 1, 3), day(2026, 1, 2)},
		[]float64{30, 10, 31, 20},
	)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	require.Equal(t, []float64{10, 20, 31}, s.Values())

	first, ok := s.First()
	require.True(t, ok)
	require.Equal(t, day(2026, 1, 1), first.Date)
}

func TestNewLengthMismatch(t *testing.T) {
	_, err := New([]time.Time{day(2026, 1, 1)}, []float64{1, 2})
	require.Error(t, err)
}

func TestNewNormalisesToMidnightUTC(t *testing.T) {
	noon := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)
	s, err := New([]time.Time{noon}, []float64{5})
	require.NoError(t, err)

	v, ok := s.At(day(2026, 1, 1))
	require.True(t, ok)
	require.Equal(t, 5.0, v)
}

func TestResampleDailyForwardFills(t *testing.T) {
	s, err := New([]time.Time{day(2026, 1, 1), day(2026, 1, 4)}, []float64{100, 130})
	require.NoError(t, err)

	daily := s.ResampleDaily()
	require.Equal(t, 4, daily.Len())
	require.Equal(t, []float64{100, 100, 100, 130}, daily.Values())
}

func TestReindex(t *testing.T) {
	s, err := New([]time.Time{day(2026, 1, 2), day(2026, 1, 4)}, []float64{20, 40})
	require.NoError(t, err)

	axis := DailyAxis(day(2026, 1, 1), 5)
	out := s.Reindex(axis, -1)
	// Jan 1 back-filled from Jan 2, Jan 3 forward-filled from Jan 2.
	require.Equal(t, []float64{20, 20, 20, 40, 40}, out.Values())
}

func TestReindexFallbackWhenDisjoint(t *testing.T) {
	var empty Series
	axis := DailyAxis(day(2026, 1, 1), 3)
	out := empty.Reindex(axis, 7)
	require.Equal(t, []float64{7, 7, 7}, out.Values())
}

func TestDiff(t *testing.T) {
	s, err := New(
		[]time.Time{day(2026, 1, 1), day(2026, 1, 2), day(2026, 1, 3)},
		[]float64{100, 105, 103},
	)
	require.NoError(t, err)

	d := s.Diff()
	require.Equal(t, 2, d.Len())
	require.InDelta(t, 5, d.Values()[0], 1e-12)
	require.InDelta(t, -2, d.Values()[1], 1e-12)
}

func TestPctReturnsSkipsZeroDenominator(t *testing.T) {
	s, err := New(
		[]time.Time{day(2026, 1, 1), day(2026, 1, 2), day(2026, 1, 3)},
		[]float64{0, 100, 110},
	)
	require.NoError(t, err)

	returns := s.PctReturns()
	require.Len(t, returns, 1)
	require.InDelta(t, 0.10, returns[0], 1e-12)
}

func TestMeanStd(t *testing.T) {
	s, err := New(
		[]time.Time{day(2026, 1, 1), day(2026, 1, 2), day(2026, 1, 3)},
		[]float64{1, 2, 3},
	)
	require.NoError(t, err)
	require.InDelta(t, 2, s.Mean(), 1e-12)
	require.InDelta(t, 1, s.Std(), 1e-12)

	var empty Series
	require.True(t, math.IsNaN(empty.Mean()))
	require.True(t, math.IsNaN(empty.Std()))
}

func TestTail(t *testing.T) {
	s, err := New(
		[]time.Time{day(2026, 1, 1), day(2026, 1, 2), day(2026, 1, 3)},
		[]float64{1, 2, 3},
	)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 3}, s.Tail(2).Values())
	require.Equal(t, 3, s.Tail(10).Len())
}
