package forecast

import (
	"math"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// MeanReversion is the closed-form exponential relaxation toward a
// long-term equilibrium price:
//
//	f[t] = mu + (P0 - mu) * exp(-theta * t), theta = ln(2) / half-life
//
// There is no fitting step and the forecast is deterministic.
type MeanReversion struct {
	LongTermMean float64
	HalfLifeDays int
}

// NewMeanReversion constructs the model; a non-positive half-life falls
// back to 180 days.
func NewMeanReversion(longTermMean float64, halfLifeDays int) MeanReversion {
	if halfLifeDays <= 0 {
		halfLifeDays = 180
	}
	return MeanReversion{LongTermMean: longTermMean, HalfLifeDays: halfLifeDays}
}

// Forecast relaxes the current price toward the equilibrium, one value per
// day for t = 1..horizon starting the day after start.
func (m MeanReversion) Forecast(currentPrice float64, start time.Time, horizonDays int) timeseries.Series {
	if horizonDays <= 0 {
		return timeseries.Series{}
	}
	theta := math.Ln2 / float64(m.HalfLifeDays)
	deviation := currentPrice - m.LongTermMean

	values := make([]float64, horizonDays)
	for t := 1; t <= horizonDays; t++ {
		values[t-1] = m.LongTermMean + deviation*math.Exp(-theta*float64(t))
	}
	axis := timeseries.DailyAxis(timeseries.Day(start).AddDate(0, 0, 1), horizonDays)
	series, _ := timeseries.New(axis, values)
	return series
}
