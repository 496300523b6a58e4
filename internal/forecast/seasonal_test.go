package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pulp-price-forecast/internal/timeseries"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func seasonalHistory(t *testing.T, start time.Time, n int) timeseries.Series {
	t.Helper()
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = start.AddDate(0, 0, i)
		values[i] = 1000 + 50*math.Sin(2*math.Pi*float64(i)/365)
	}
	s, err := timeseries.New(dates, values)
	require.NoError(t, err)
	return s
}

func TestSeasonalTrendNeedsTwoCycles(t *testing.T) {
	m := NewSeasonalTrend()
	err := m.Fit(seasonalHistory(t, day(2024, 1, 1), 400))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientData))
}

func TestSeasonalTrendFitAndForecast(t *testing.T) {
	m := NewSeasonalTrend()
	history := seasonalHistory(t, day(2024, 1, 1), 800)
	require.NoError(t, m.Fit(history))

	result, err := m.Forecast(90, 0.90)
	require.NoError(t, err)
	require.Equal(t, 90, result.Point.Len())

	// A pure seasonal signal around 1000 should forecast near that band.
	for _, v := range result.Point.Values() {
		require.Greater(t, v, 850.0)
		require.Less(t, v, 1150.0)
	}
}

func TestMovingAverageConstantHistory(t *testing.T) {
	m := NewMovingAverage()
	history := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 60), 1000)
	require.NoError(t, m.Fit(history))

	result, err := m.Forecast(10, 0.90)
	require.NoError(t, err)
	for _, v := range result.Point.Values() {
		require.InDelta(t, 1000, v, 1e-9)
	}
}

func TestMovingAverageLinearTrend(t *testing.T) {
	n := 30
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = day(2026, 1, 1).AddDate(0, 0, i)
		values[i] = 1000 + 2*float64(i)
	}
	history, err := timeseries.New(dates, values)
	require.NoError(t, err)

	m := NewMovingAverage()
	require.NoError(t, m.Fit(history))

	result, err := m.Forecast(5, 0.90)
	require.NoError(t, err)

	// The projection continues upward from the window mean.
	point := result.Point.Values()
	for i := 1; i < len(point); i++ {
		require.Greater(t, point[i], point[i-1])
	}
}

func TestMovingAverageEmptyHistory(t *testing.T) {
	m := NewMovingAverage()
	err := m.Fit(timeseries.Series{})
	require.True(t, errors.Is(err, ErrInsufficientData))
}

func TestGARCHVolatility(t *testing.T) {
	n := 120
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = day(2026, 1, 1).AddDate(0, 0, i)
		values[i] = 1000 * (1 + 0.01*math.Sin(1.7*float64(i)))
	}
	history, err := timeseries.New(dates, values)
	require.NoError(t, err)

	m := NewGARCHVolatility()
	require.NoError(t, m.Fit(history))

	vols, err := m.ForecastVolatility(30)
	require.NoError(t, err)
	require.Len(t, vols, 30)
	for _, v := range vols {
		require.Greater(t, v, 0.0)
		require.Less(t, v, 1.0) // fractional daily vol, not percent
	}
}

func TestGARCHInsufficientReturns(t *testing.T) {
	m := NewGARCHVolatility()
	history := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 10), 1000)
	err := m.Fit(history)
	require.True(t, errors.Is(err, ErrInsufficientData))
}

func TestGARCHDegenerateVariance(t *testing.T) {
	m := NewGARCHVolatility()
	history := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 60), 1000)
	err := m.Fit(history)
	require.True(t, errors.Is(err, ErrFitFailed))
}

func TestSelectBestFallsBackOnShortHistory(t *testing.T) {
	history := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 10), 1000)
	name := SelectBest(history, 30, nopLogger())
	require.Equal(t, "SMA", name)
}

func TestSelectBestReturnsCandidateName(t *testing.T) {
	history := syntheticHistory(t, day(2025, 1, 1), 240)
	name := SelectBest(history, 30, nopLogger())
	require.Contains(t, []string{"ARIMA(2,1,2)", "SeasonalTrend", "SMA"}, name)
}
