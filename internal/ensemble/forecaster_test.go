package ensemble

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/forecast"
	"pulp-price-forecast/internal/timeseries"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// stubBuilder returns a fixed series, or an error when Err is set.
type stubBuilder struct {
	series timeseries.Series
	err    error
}

func (b stubBuilder) Build(spotDate time.Time, spotPrice float64, contracts []curve.ContractBlock) (timeseries.Series, error) {
	if b.err != nil {
		return timeseries.Series{}, b.err
	}
	return b.series, nil
}

// failingModel never fits.
type failingModel struct{}

func (failingModel) Name() string                { return "failing" }
func (failingModel) Fit(timeseries.Series) error { return forecast.ErrInsufficientData }
func (failingModel) Forecast(int, float64) (forecast.Result, error) {
	return forecast.Result{}, forecast.ErrNotFitted
}

func risingCurve(t *testing.T, start time.Time, n int) timeseries.Series {
	t.Helper()
	axis := timeseries.DailyAxis(start, n)
	values := make([]float64, n)
	for i := range values {
		values[i] = 1000 + float64(i)
	}
	s, err := timeseries.New(axis, values)
	require.NoError(t, err)
	return s
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	require.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-12)
}

func TestNormalizedZeroMassFallsBack(t *testing.T) {
	w := Weights{}.Normalized()
	require.Equal(t, DefaultWeights(), w)

	w = Weights{FuturesCurve: 2, Statistical: 1, MeanReversion: 1}.Normalized()
	require.InDelta(t, 0.50, w.FuturesCurve, 1e-12)
	require.InDelta(t, 1.0, w.Sum(), 1e-12)
}

func TestNormalizedKeepsUnitMassExact(t *testing.T) {
	// 0.7+0.2+0.1 sums to 0.9999999999999999 in float64; dividing through
	// would perturb every component, so unit-mass weights pass untouched.
	w := Weights{FuturesCurve: 0.7, Statistical: 0.2, MeanReversion: 0.1}
	require.Equal(t, w, w.Normalized())
}

func TestHorizonWeightsBuckets(t *testing.T) {
	f := New(stubBuilder{}, Options{AdaptWeights: true}, zerolog.Nop())

	w := f.HorizonWeights(15)
	require.InDelta(t, 0.60, w.FuturesCurve, 1e-12)
	require.InDelta(t, 0.15, w.MeanReversion, 1e-12)

	w = f.HorizonWeights(60)
	require.InDelta(t, 0.45, w.FuturesCurve, 1e-12)

	w = f.HorizonWeights(200)
	require.InDelta(t, 0.40, w.MeanReversion, 1e-12)
}

func TestHorizonWeightsFixedWhenAdaptationOff(t *testing.T) {
	configured := Weights{FuturesCurve: 0.7, Statistical: 0.2, MeanReversion: 0.1}
	f := New(stubBuilder{}, Options{Weights: configured}, zerolog.Nop())

	for _, horizon := range []int{10, 60, 300} {
		require.Equal(t, configured, f.HorizonWeights(horizon))
	}
}

func TestForecastBandOrdering(t *testing.T) {
	spot := day(2026, 1, 1)
	history := risingCurve(t, spot.AddDate(0, 0, -60), 60)
	f := New(stubBuilder{series: risingCurve(t, spot, 120)}, Options{LongTermMean: 1100, HalfLifeDays: 180}, zerolog.Nop())

	result := f.Forecast(1000, spot, nil, history, 90)
	require.Equal(t, 90, result.Point.Len())
	require.Len(t, result.Dates, 90)

	point := result.Point.Values()
	lower90 := result.Lower90.Values()
	upper90 := result.Upper90.Values()
	lower50 := result.Lower50.Values()
	upper50 := result.Upper50.Values()
	for i := range point {
		require.LessOrEqual(t, lower90[i], lower50[i])
		require.LessOrEqual(t, lower50[i], point[i])
		require.LessOrEqual(t, point[i], upper50[i])
		require.LessOrEqual(t, upper50[i], upper90[i])
	}
}

func TestForecastComponentsPresent(t *testing.T) {
	spot := day(2026, 1, 1)
	f := New(stubBuilder{series: risingCurve(t, spot, 40)}, Options{}, zerolog.Nop())

	result := f.Forecast(1000, spot, nil, timeseries.Series{}, 30)
	require.Contains(t, result.Components, ComponentFuturesCurve)
	require.Contains(t, result.Components, ComponentStatistical)
	require.Contains(t, result.Components, ComponentMeanReversion)
	for _, series := range result.Components {
		require.Equal(t, 30, series.Len())
	}
}

func TestForecastCurveFailureUsesFlatProjection(t *testing.T) {
	spot := day(2026, 1, 1)
	f := New(stubBuilder{err: errors.New("solver blew up")}, Options{}, zerolog.Nop())

	result := f.Forecast(1000, spot, nil, timeseries.Series{}, 20)
	for _, v := range result.Components[ComponentFuturesCurve].Values() {
		require.InDelta(t, 1000, v, 1e-9)
	}
}

func TestForecastAllStatisticalModelsFail(t *testing.T) {
	spot := day(2026, 1, 1)
	f := New(stubBuilder{series: risingCurve(t, spot, 40)}, Options{
		StatisticalModels: []forecast.Model{failingModel{}},
	}, zerolog.Nop())

	result := f.Forecast(1000, spot, nil, timeseries.Series{}, 20)
	for _, v := range result.Components[ComponentStatistical].Values() {
		require.InDelta(t, 1000, v, 1e-9)
	}
}

func TestForecastFromCurveMatchesStoredSnapshot(t *testing.T) {
	spot := day(2026, 1, 1)
	stored := risingCurve(t, spot, 60)
	f := New(stubBuilder{err: errors.New("unused")}, Options{}, zerolog.Nop())

	result := f.ForecastFromCurve(1000, spot, stored, timeseries.Series{}, 30)
	curveComponent := result.Components[ComponentFuturesCurve]
	require.Equal(t, 30, curveComponent.Len())
	v, ok := curveComponent.At(spot.AddDate(0, 0, 10))
	require.True(t, ok)
	require.InDelta(t, 1010, v, 1e-9)
}

func TestForecastFromCurveEmptySnapshot(t *testing.T) {
	spot := day(2026, 1, 1)
	f := New(stubBuilder{}, Options{}, zerolog.Nop())

	result := f.ForecastFromCurve(950, spot, timeseries.Series{}, timeseries.Series{}, 10)
	for _, v := range result.Components[ComponentFuturesCurve].Values() {
		require.InDelta(t, 950, v, 1e-9)
	}
}

func TestGARCHBandSizing(t *testing.T) {
	spot := day(2026, 1, 1)
	n := 120
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = spot.AddDate(0, 0, i-n)
		values[i] = 1000 * (1 + 0.01*float64(1-2*(i%2)))
	}
	history, err := timeseries.New(dates, values)
	require.NoError(t, err)

	f := New(stubBuilder{series: risingCurve(t, spot, 120)}, Options{
		VolatilityModel: forecast.NewGARCHVolatility(),
	}, zerolog.Nop())
	result := f.Forecast(1000, spot, nil, history, 90)

	last, _ := history.Last()
	ceiling := volatilityCap * last.Value
	point := result.Point.Values()
	upper90 := result.Upper90.Values()
	prev := 0.0
	for i := range point {
		half := upper90[i] - point[i]
		require.Greater(t, half, 0.0)
		require.GreaterOrEqual(t, half+1e-9, prev)
		require.LessOrEqual(t, half, z90*ceiling+1e-9)
		prev = half
	}
}

func TestGARCHBandSizingFallsBackOnShortHistory(t *testing.T) {
	spot := day(2026, 1, 1)
	history := risingCurve(t, spot.AddDate(0, 0, -10), 10)

	withModel := New(stubBuilder{series: risingCurve(t, spot, 60)}, Options{
		VolatilityModel: forecast.NewGARCHVolatility(),
	}, zerolog.Nop())
	without := New(stubBuilder{series: risingCurve(t, spot, 60)}, Options{}, zerolog.Nop())

	a := withModel.Forecast(1000, spot, nil, history, 30)
	b := without.Forecast(1000, spot, nil, history, 30)
	require.Equal(t, b.Upper90.Values(), a.Upper90.Values())
}

func TestBandWidthCapped(t *testing.T) {
	spot := day(2026, 1, 1)
	// Alternating returns give a large daily vol so long horizons hit the cap.
	n := 80
	dates := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = spot.AddDate(0, 0, i-n)
		values[i] = 1000 + 100*float64(i%2)
	}
	history, err := timeseries.New(dates, values)
	require.NoError(t, err)

	f := New(stubBuilder{series: risingCurve(t, spot, 120)}, Options{}, zerolog.Nop())
	result := f.Forecast(1000, spot, nil, history, 90)

	last, _ := history.Last()
	maxHalfWidth := z90 * volatilityCap * last.Value
	point := result.Point.Values()
	upper90 := result.Upper90.Values()
	for i := range point {
		require.LessOrEqual(t, upper90[i]-point[i], maxHalfWidth+1e-9)
	}
}
