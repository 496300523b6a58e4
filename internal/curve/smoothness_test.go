package curve

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pulp-price-forecast/internal/timeseries"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quarterContracts() []ContractBlock {
	return []ContractBlock{
		{Start: day(2026, 1, 1), End: day(2026, 1, 31), Price: 1000},
		{Start: day(2026, 2, 1), End: day(2026, 2, 28), Price: 1050},
		{Start: day(2026, 3, 1), End: day(2026, 3, 31), Price: 1100},
	}
}

func blockMean(t *testing.T, c timeseries.Series, start, end time.Time) float64 {
	t.Helper()
	sum, count := 0.0, 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		v, ok := c.At(d)
		require.True(t, ok, "curve missing day %s", d)
		sum += v
		count++
	}
	return sum / float64(count)
}

func TestSmoothnessSatisfiesConstraints(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())
	contracts := quarterContracts()

	c, err := b.Build(day(2026, 1, 1), 1000, contracts)
	require.NoError(t, err)
	require.Equal(t, 90, c.Len())

	first, _ := c.First()
	require.InDelta(t, 1000, first.Value, 1e-6)

	for _, contract := range contracts {
		mean := blockMean(t, c, contract.Start, contract.End)
		require.InDelta(t, contract.Price, mean, 1e-4)
	}

	// Rising contract prices must yield rising monthly means.
	jan := blockMean(t, c, day(2026, 1, 1), day(2026, 1, 31))
	feb := blockMean(t, c, day(2026, 2, 1), day(2026, 2, 28))
	mar := blockMean(t, c, day(2026, 3, 1), day(2026, 3, 31))
	require.Less(t, jan, feb)
	require.Less(t, feb, mar)
}

func TestSmoothnessDeterministic(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())

	first, err := b.Build(day(2026, 1, 1), 1000, quarterContracts())
	require.NoError(t, err)
	second, err := b.Build(day(2026, 1, 1), 1000, quarterContracts())
	require.NoError(t, err)

	require.Equal(t, first.Values(), second.Values())
}

func TestSmoothnessRespectsBounds(t *testing.T) {
	bounds := Bounds{MinPrice: 950, MaxPrice: 1080, MaxDailyChange: 50}
	b := NewSmoothnessBuilder(bounds, zerolog.Nop())

	c, err := b.Build(day(2026, 1, 1), 1000, []ContractBlock{
		{Start: day(2026, 1, 1), End: day(2026, 1, 31), Price: 1000},
		{Start: day(2026, 2, 1), End: day(2026, 2, 28), Price: 1070},
	})
	require.NoError(t, err)

	for _, v := range c.Values() {
		require.GreaterOrEqual(t, v, bounds.MinPrice-1e-9)
		require.LessOrEqual(t, v, bounds.MaxPrice+1e-9)
	}
}

func TestSmoothnessEmptyInput(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())

	c, err := b.Build(day(2026, 1, 1), 1000, nil)
	require.NoError(t, err)
	require.True(t, c.IsEmpty())
}

func TestSmoothnessDropsMalformedContracts(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())

	c, err := b.Build(day(2026, 1, 1), 1000, []ContractBlock{
		{Start: day(2026, 1, 1), End: day(2026, 1, 31), Price: 1000},
		{Start: day(2026, 2, 28), End: day(2026, 2, 1), Price: 1050}, // end before start
		{Start: day(2026, 3, 1), End: day(2026, 3, 31), Price: -5},   // non-positive price
	})
	require.NoError(t, err)
	require.Equal(t, 31, c.Len())
}

func TestSmoothnessCapsHorizon(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())

	c, err := b.Build(day(2026, 1, 1), 1000, []ContractBlock{
		{Start: day(2026, 1, 1), End: day(2026, 1, 31), Price: 1000},
		{Start: day(2027, 1, 1), End: day(2027, 12, 31), Price: 1100},
	})
	require.NoError(t, err)
	require.Equal(t, maxHorizonDays+1, c.Len())
}

func TestSmoothnessInfeasibleConstraints(t *testing.T) {
	// A contract mean above the price ceiling cannot be satisfied once the
	// envelope pins every day in the block.
	bounds := Bounds{MinPrice: 900, MaxPrice: 1000, MaxDailyChange: 50}
	b := NewSmoothnessBuilder(bounds, zerolog.Nop())

	_, err := b.Build(day(2026, 1, 1), 1000, []ContractBlock{
		{Start: day(2026, 2, 1), End: day(2026, 2, 28), Price: 1005},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoConvergence))
}

func TestIsDegenerateFlat(t *testing.T) {
	flat := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 10), 1000)
	require.True(t, IsDegenerateFlat(flat))

	single := timeseries.Constant(timeseries.DailyAxis(day(2026, 1, 1), 1), 1000)
	require.False(t, IsDegenerateFlat(single))

	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())
	c, err := b.Build(day(2026, 1, 1), 1000, quarterContracts())
	require.NoError(t, err)
	require.False(t, IsDegenerateFlat(c))
}

func TestResiduals(t *testing.T) {
	b := NewSmoothnessBuilder(DefaultBounds(), zerolog.Nop())
	contracts := quarterContracts()
	c, err := b.Build(day(2026, 1, 1), 1000, contracts)
	require.NoError(t, err)

	residuals := Residuals(c, day(2026, 1, 1), contracts)
	require.Len(t, residuals, 3)
	for _, r := range residuals {
		require.True(t, r.Covered)
		require.InDelta(t, 0, r.Error, 1e-4)
	}

	outside := Residuals(c, day(2026, 1, 1), []ContractBlock{
		{Start: day(2027, 6, 1), End: day(2027, 6, 30), Price: 1200},
	})
	require.Len(t, outside, 1)
	require.False(t, outside[0].Covered)
}
