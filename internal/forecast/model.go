package forecast

import (
	"errors"
	"math"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

var (
	// ErrInsufficientData reports too little history to fit a model.
	ErrInsufficientData = errors.New("forecast: insufficient history")
	// ErrFitFailed reports a numerical failure while fitting.
	ErrFitFailed = errors.New("forecast: model fit failed")
	// ErrNotFitted reports a forecast request before a successful fit.
	ErrNotFitted = errors.New("forecast: model not fitted")
)

// Result is a model's forecast output: a point estimate with a symmetric
// interval on a contiguous daily axis. Never mutated after creation.
type Result struct {
	Dates           []time.Time
	Point           timeseries.Series
	Lower           timeseries.Series
	Upper           timeseries.Series
	ModelName       string
	ConfidenceLevel float64
}

// Model is the two-operation forecaster capability the ensemble is
// polymorphic over.
type Model interface {
	Name() string
	Fit(history timeseries.Series) error
	Forecast(horizonDays int, confidence float64) (Result, error)
}

// VolatilityModel forecasts per-day return volatility rather than price
// level. GARCHVolatility is the one implementation.
type VolatilityModel interface {
	Fit(history timeseries.Series) error
	ForecastVolatility(horizonDays int) ([]float64, error)
}

// zScore converts a two-sided confidence level into a standard-normal
// quantile.
func zScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.90
	}
	return math.Sqrt2 * math.Erfinv(confidence)
}

// intervalResult assembles a Result around a point path with a residual
// deviation that grows as sqrt of the step index.
func intervalResult(name string, start time.Time, point []float64, residualStd, confidence float64) (Result, error) {
	axis := timeseries.DailyAxis(start, len(point))
	lower := make([]float64, len(point))
	upper := make([]float64, len(point))
	z := zScore(confidence)
	for i, v := range point {
		spread := z * residualStd * math.Sqrt(float64(i+1))
		lower[i] = v - spread
		upper[i] = v + spread
	}

	pointSeries, err := timeseries.New(axis, point)
	if err != nil {
		return Result{}, err
	}
	lowerSeries, err := timeseries.New(axis, lower)
	if err != nil {
		return Result{}, err
	}
	upperSeries, err := timeseries.New(axis, upper)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Dates:           axis,
		Point:           pointSeries,
		Lower:           lowerSeries,
		Upper:           upperSeries,
		ModelName:       name,
		ConfidenceLevel: confidence,
	}, nil
}
