package forecast

import (
	"fmt"
	"math"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// yearlyPeriod is the seasonal cycle length in days.
const yearlyPeriod = 365

// SeasonalTrend is an additive trend plus yearly-seasonality
// decomposition, estimated by additive Holt-Winters smoothing on the
// daily-resampled history. It needs at least two full seasonal cycles; a
// shorter history returns ErrInsufficientData so the ensemble can fall
// back.
type SeasonalTrend struct {
	alpha, beta, gamma float64

	level       float64
	trend       float64
	seasonal    []float64
	cursor      int
	residualStd float64
	lastDate    time.Time
	fitted      bool
}

// NewSeasonalTrend constructs the model with conventional smoothing
// factors.
func NewSeasonalTrend() *SeasonalTrend {
	return &SeasonalTrend{alpha: 0.2, beta: 0.05, gamma: 0.1}
}

func (m *SeasonalTrend) Name() string { return "SeasonalTrend" }

// Fit runs the smoothing recursion over the history.
func (m *SeasonalTrend) Fit(history timeseries.Series) error {
	daily := history.ResampleDaily()
	values := daily.Values()
	if len(values) < 2*yearlyPeriod {
		return fmt.Errorf("%w: %d observations, need %d for yearly seasonality", ErrInsufficientData, len(values), 2*yearlyPeriod)
	}

	// Initial level/trend from the first cycle, seasonal indices from the
	// first two cycles.
	level := mean(values[:yearlyPeriod])
	secondMean := mean(values[yearlyPeriod : 2*yearlyPeriod])
	trend := (secondMean - level) / yearlyPeriod

	seasonal := make([]float64, yearlyPeriod)
	for i := 0; i < yearlyPeriod; i++ {
		seasonal[i] = (values[i] - level + values[yearlyPeriod+i] - secondMean) / 2
	}

	var sumSq float64
	count := 0
	for t := 0; t < len(values); t++ {
		idx := t % yearlyPeriod
		fitted := level + trend + seasonal[idx]
		err := values[t] - fitted
		sumSq += err * err
		count++

		prevLevel := level
		level = m.alpha*(values[t]-seasonal[idx]) + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prevLevel) + (1-m.beta)*trend
		seasonal[idx] = m.gamma*(values[t]-level) + (1-m.gamma)*seasonal[idx]
	}

	m.level = level
	m.trend = trend
	m.seasonal = seasonal
	m.cursor = len(values) % yearlyPeriod
	m.residualStd = math.Sqrt(sumSq / float64(count))
	if math.IsNaN(m.residualStd) || math.IsInf(m.residualStd, 0) {
		return fmt.Errorf("%w: non-finite residual variance", ErrFitFailed)
	}
	if last, ok := daily.Last(); ok {
		m.lastDate = last.Date
	}
	m.fitted = true
	return nil
}

// Forecast extends level, trend, and the seasonal cycle forward.
func (m *SeasonalTrend) Forecast(horizonDays int, confidence float64) (Result, error) {
	if !m.fitted {
		return Result{}, ErrNotFitted
	}
	if horizonDays <= 0 {
		return Result{}, fmt.Errorf("forecast: horizon must be positive, got %d", horizonDays)
	}

	point := make([]float64, horizonDays)
	for h := 0; h < horizonDays; h++ {
		idx := (m.cursor + h) % yearlyPeriod
		point[h] = m.level + float64(h+1)*m.trend + m.seasonal[idx]
	}
	return intervalResult(m.Name(), m.lastDate.AddDate(0, 0, 1), point, m.residualStd, confidence)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
