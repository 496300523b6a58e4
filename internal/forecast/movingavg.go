package forecast

import (
	"fmt"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// MovingAverage is the last-resort baseline: the recent-window mean
// projected forward with the recent linear trend. It succeeds on any
// non-empty history.
type MovingAverage struct {
	window int

	ma          float64
	trend       float64
	residualStd float64
	lastDate    time.Time
	fitted      bool
}

// NewMovingAverage constructs the baseline with a 30-day window.
func NewMovingAverage() *MovingAverage {
	return &MovingAverage{window: 30}
}

func (m *MovingAverage) Name() string { return "SMA" }

// Fit computes the window mean and the per-day trend across the window.
func (m *MovingAverage) Fit(history timeseries.Series) error {
	if history.IsEmpty() {
		return fmt.Errorf("%w: empty history", ErrInsufficientData)
	}
	recent := history.Tail(m.window)
	values := recent.Values()

	m.ma = mean(values)
	m.trend = 0
	if len(values) > 1 {
		m.trend = (values[len(values)-1] - values[0]) / float64(len(values))
	}
	m.residualStd = recent.Std()
	if m.residualStd != m.residualStd { // NaN for single-point histories
		m.residualStd = 0
	}
	if last, ok := history.Last(); ok {
		m.lastDate = last.Date
	}
	m.fitted = true
	return nil
}

// Forecast projects mean plus trend times step.
func (m *MovingAverage) Forecast(horizonDays int, confidence float64) (Result, error) {
	if !m.fitted {
		return Result{}, ErrNotFitted
	}
	if horizonDays <= 0 {
		return Result{}, fmt.Errorf("forecast: horizon must be positive, got %d", horizonDays)
	}
	point := make([]float64, horizonDays)
	for h := 0; h < horizonDays; h++ {
		point[h] = m.ma + m.trend*float64(h+1)
	}
	return intervalResult(m.Name(), m.lastDate.AddDate(0, 0, 1), point, m.residualStd, confidence)
}
