package forecast

import (
	"fmt"
	"math"

	"pulp-price-forecast/internal/timeseries"
)

// minGARCHReturns is the shortest return series the estimator accepts.
const minGARCHReturns = 30

// GARCHVolatility fits a GARCH(1,1) conditional-variance model on daily
// percentage returns. It forecasts volatility only, not price; the
// ensemble uses it to size confidence bands. Parameters are chosen by
// gaussian likelihood over a coarse (alpha, beta) lattice, which is
// plenty for band sizing and keeps the fit deterministic.
type GARCHVolatility struct {
	omega, alpha, beta float64

	lastVariance float64
	fitted       bool
}

// NewGARCHVolatility constructs the volatility model.
func NewGARCHVolatility() *GARCHVolatility {
	return &GARCHVolatility{}
}

func (m *GARCHVolatility) Name() string { return "GARCH(1,1)" }

// Fit estimates (omega, alpha, beta) on pct-returns scaled to percent.
func (m *GARCHVolatility) Fit(history timeseries.Series) error {
	returns := history.PctReturns()
	if len(returns) < minGARCHReturns {
		return fmt.Errorf("%w: %d returns, need %d", ErrInsufficientData, len(returns), minGARCHReturns)
	}
	for i := range returns {
		returns[i] *= 100
	}

	sample := variance(returns)
	if sample <= 0 || math.IsNaN(sample) {
		return fmt.Errorf("%w: degenerate return variance", ErrFitFailed)
	}

	bestLL := math.Inf(-1)
	found := false
	for alpha := 0.05; alpha <= 0.30+1e-9; alpha += 0.05 {
		for beta := 0.50; beta <= 0.94+1e-9; beta += 0.04 {
			if alpha+beta >= 0.999 {
				continue
			}
			omega := sample * (1 - alpha - beta)
			ll, lastVar := garchLogLikelihood(returns, omega, alpha, beta, sample)
			if ll > bestLL {
				bestLL = ll
				m.omega, m.alpha, m.beta = omega, alpha, beta
				m.lastVariance = lastVar
				found = true
			}
		}
	}
	if !found {
		return fmt.Errorf("%w: no admissible garch parameters", ErrFitFailed)
	}
	m.fitted = true
	return nil
}

// ForecastVolatility returns the per-day return standard deviation (as a
// fraction, not percent) for each step of the horizon.
func (m *GARCHVolatility) ForecastVolatility(horizonDays int) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if horizonDays <= 0 {
		return nil, fmt.Errorf("forecast: horizon must be positive, got %d", horizonDays)
	}

	out := make([]float64, horizonDays)
	v := m.lastVariance
	persistence := m.alpha + m.beta
	for h := 0; h < horizonDays; h++ {
		v = m.omega + persistence*v
		out[h] = math.Sqrt(v) / 100
	}
	return out, nil
}

// garchLogLikelihood runs the variance recursion and returns the gaussian
// log-likelihood plus the final conditional variance.
func garchLogLikelihood(returns []float64, omega, alpha, beta, initVar float64) (float64, float64) {
	v := initVar
	ll := 0.0
	for _, r := range returns {
		if v <= 0 {
			return math.Inf(-1), v
		}
		ll += -0.5 * (math.Log(2*math.Pi) + math.Log(v) + r*r/v)
		v = omega + alpha*r*r + beta*v
	}
	return ll, v
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	mu := mean(xs)
	sum := 0.0
	for _, v := range xs {
		sum += (v - mu) * (v - mu)
	}
	return sum / float64(len(xs)-1)
}
