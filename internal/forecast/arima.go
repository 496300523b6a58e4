package forecast

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"pulp-price-forecast/internal/timeseries"
)

// minARIMAObservations is the shortest differenced history the estimator
// accepts.
const minARIMAObservations = 30

// ARIMA is an autoregressive integrated moving-average model of the
// (2,1,2) class, estimated by the two-stage Hannan-Rissanen procedure:
// a long autoregression recovers innovation estimates, then AR and MA
// coefficients come from a single least-squares regression on lagged
// values and lagged innovations. The history is resampled to daily
// resolution with forward fill before differencing.
type ARIMA struct {
	p, d, q int

	arCoef      []float64
	maCoef      []float64
	intercept   float64
	residualStd float64

	lastLevels []float64 // last p levels of the original series
	lastDiffs  []float64 // last p differenced values
	lastErrs   []float64 // last q innovation estimates
	lastDate   time.Time
	fitted     bool
}

// NewARIMA constructs an ARIMA(2,1,2) forecaster.
func NewARIMA() *ARIMA {
	return &ARIMA{p: 2, d: 1, q: 2}
}

func (m *ARIMA) Name() string { return fmt.Sprintf("ARIMA(%d,%d,%d)", m.p, m.d, m.q) }

// Fit estimates the model. Too little history returns
// ErrInsufficientData; a singular regression returns ErrFitFailed. Both
// are distinguishable so callers can fall back to simpler models.
func (m *ARIMA) Fit(history timeseries.Series) error {
	daily := history.ResampleDaily()
	levels := daily.Values()
	if len(levels) < minARIMAObservations+m.d {
		return fmt.Errorf("%w: %d observations, need %d", ErrInsufficientData, len(levels), minARIMAObservations+m.d)
	}

	y := make([]float64, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		y[i-1] = levels[i] - levels[i-1]
	}

	// Stage 1: long AR to estimate the innovation sequence.
	longOrder := len(y) / 4
	if longOrder > 10 {
		longOrder = 10
	}
	if longOrder < m.p+m.q {
		longOrder = m.p + m.q
	}
	longCoef, err := fitAR(y, longOrder)
	if err != nil {
		return err
	}
	errs := make([]float64, len(y))
	for t := longOrder; t < len(y); t++ {
		pred := longCoef[0]
		for k := 0; k < longOrder; k++ {
			pred += longCoef[k+1] * y[t-1-k]
		}
		errs[t] = y[t] - pred
	}

	// Stage 2: regress y[t] on p lagged values and q lagged innovations.
	start := longOrder + m.q
	rows := len(y) - start
	if rows < m.p+m.q+1 {
		return fmt.Errorf("%w: %d usable rows after lagging", ErrInsufficientData, rows)
	}
	cols := 1 + m.p + m.q
	x := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for t := start; t < len(y); t++ {
		row := t - start
		x.Set(row, 0, 1)
		for k := 0; k < m.p; k++ {
			x.Set(row, 1+k, y[t-1-k])
		}
		for k := 0; k < m.q; k++ {
			x.Set(row, 1+m.p+k, errs[t-1-k])
		}
		target.SetVec(row, y[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, target); err != nil {
		return fmt.Errorf("%w: regression singular: %v", ErrFitFailed, err)
	}

	m.intercept = beta.AtVec(0)
	m.arCoef = make([]float64, m.p)
	m.maCoef = make([]float64, m.q)
	for k := 0; k < m.p; k++ {
		m.arCoef[k] = beta.AtVec(1 + k)
	}
	for k := 0; k < m.q; k++ {
		m.maCoef[k] = beta.AtVec(1 + m.p + k)
	}

	// Residual variance from the stage-2 fit.
	sumSq := 0.0
	for t := start; t < len(y); t++ {
		pred := m.intercept
		for k := 0; k < m.p; k++ {
			pred += m.arCoef[k] * y[t-1-k]
		}
		for k := 0; k < m.q; k++ {
			pred += m.maCoef[k] * errs[t-1-k]
		}
		diff := y[t] - pred
		sumSq += diff * diff
	}
	m.residualStd = math.Sqrt(sumSq / float64(rows))
	if math.IsNaN(m.residualStd) || math.IsInf(m.residualStd, 0) {
		return fmt.Errorf("%w: non-finite residual variance", ErrFitFailed)
	}

	m.lastDiffs = append([]float64(nil), y[len(y)-m.p:]...)
	m.lastErrs = append([]float64(nil), errs[len(errs)-m.q:]...)
	m.lastLevels = append([]float64(nil), levels[len(levels)-1:]...)
	if last, ok := daily.Last(); ok {
		m.lastDate = last.Date
	}
	m.fitted = true
	return nil
}

// Forecast iterates the fitted recursion with future innovations at zero
// and re-integrates the differenced path back into price levels.
func (m *ARIMA) Forecast(horizonDays int, confidence float64) (Result, error) {
	if !m.fitted {
		return Result{}, ErrNotFitted
	}
	if horizonDays <= 0 {
		return Result{}, fmt.Errorf("forecast: horizon must be positive, got %d", horizonDays)
	}

	diffs := append([]float64(nil), m.lastDiffs...)
	errs := append([]float64(nil), m.lastErrs...)
	level := m.lastLevels[len(m.lastLevels)-1]

	point := make([]float64, horizonDays)
	for h := 0; h < horizonDays; h++ {
		next := m.intercept
		for k := 0; k < m.p; k++ {
			next += m.arCoef[k] * diffs[len(diffs)-1-k]
		}
		for k := 0; k < m.q; k++ {
			next += m.maCoef[k] * errs[len(errs)-1-k]
		}
		level += next
		point[h] = level
		diffs = append(diffs, next)
		errs = append(errs, 0)
	}

	return intervalResult(m.Name(), m.lastDate.AddDate(0, 0, 1), point, m.residualStd, confidence)
}

// fitAR estimates an AR(order) model with intercept by least squares,
// returning [intercept, phi_1..phi_order].
func fitAR(y []float64, order int) ([]float64, error) {
	rows := len(y) - order
	if rows <= order+1 {
		return nil, fmt.Errorf("%w: %d observations for AR(%d)", ErrInsufficientData, len(y), order)
	}
	x := mat.NewDense(rows, order+1, nil)
	target := mat.NewVecDense(rows, nil)
	for t := order; t < len(y); t++ {
		row := t - order
		x.Set(row, 0, 1)
		for k := 0; k < order; k++ {
			x.Set(row, 1+k, y[t-1-k])
		}
		target.SetVec(row, y[t])
	}
	var beta mat.VecDense
	if err := beta.SolveVec(x, target); err != nil {
		return nil, fmt.Errorf("%w: long autoregression singular: %v", ErrFitFailed, err)
	}
	out := make([]float64, order+1)
	for i := range out {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}
