package ensemble

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pulp-price-forecast/internal/timeseries"
)

func TestLearnWeightsNoScorableSnapshots(t *testing.T) {
	configured := Weights{FuturesCurve: 0.5, Statistical: 0.3, MeanReversion: 0.2}
	f := New(stubBuilder{}, Options{Weights: configured}, zerolog.Nop())

	// No realized price overlaps any snapshot target, so every candidate
	// scores +Inf and the configured weights survive.
	snapshots := map[time.Time]timeseries.Series{
		day(2026, 1, 1): risingCurve(t, day(2026, 1, 1), 60),
	}
	learned := f.LearnWeights(snapshots, timeseries.Series{}, 30)
	require.Equal(t, configured, learned)
}

func TestLearnWeightsPrefersCurveWhenCurveIsRight(t *testing.T) {
	spot := day(2026, 1, 1)
	snapshot := risingCurve(t, spot, 60)

	// Realized price equals the curve's value at the horizon, so heavier
	// curve weight means lower error.
	target := spot.AddDate(0, 0, 30)
	curveValue, ok := snapshot.At(target)
	require.True(t, ok)
	realized, err := timeseries.New([]time.Time{target}, []float64{curveValue})
	require.NoError(t, err)

	// With equilibrium and spot both below the realized price, any mass
	// off the curve raises the error, so the search maxes the curve weight.
	f := New(stubBuilder{}, Options{LongTermMean: 500}, zerolog.Nop())
	learned := f.LearnWeights(map[time.Time]timeseries.Series{spot: snapshot}, realized, 30)

	// 0.6 is the lattice ceiling for a single component.
	require.InDelta(t, 0.6, learned.FuturesCurve, 1e-9)
	require.InDelta(t, 1.0, learned.Sum(), 1e-9)
}

func TestLearnWeightsRespectsMinimumComponentWeight(t *testing.T) {
	spot := day(2026, 1, 1)
	snapshot := risingCurve(t, spot, 60)
	target := spot.AddDate(0, 0, 30)
	realized, err := timeseries.New([]time.Time{target}, []float64{1030})
	require.NoError(t, err)

	f := New(stubBuilder{}, Options{}, zerolog.Nop())
	learned := f.LearnWeights(map[time.Time]timeseries.Series{spot: snapshot}, realized, 30)

	require.GreaterOrEqual(t, learned.FuturesCurve, minComponentWeight)
	require.GreaterOrEqual(t, learned.Statistical, minComponentWeight)
	require.GreaterOrEqual(t, learned.MeanReversion, minComponentWeight)
}
