package curve

import (
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/timeseries"
)

// SplineBuilder is the fast approximate strategy: a natural cubic spline
// through the spot anchor and each contract's midpoint day, sampled daily
// and clipped to the envelope. Block averages are matched only
// approximately, the trade-off for closed-form speed; use
// SmoothnessBuilder when exact arbitrage-free averages are required.
type SplineBuilder struct {
	bounds Bounds
	logger zerolog.Logger
}

// NewSplineBuilder constructs the approximate curve builder.
func NewSplineBuilder(bounds Bounds, logger zerolog.Logger) *SplineBuilder {
	return &SplineBuilder{
		bounds: bounds,
		logger: logger.With().Str("component", "curve_spline").Logger(),
	}
}

// Build fits and samples the spline. Always succeeds for retained input.
func (b *SplineBuilder) Build(spotDate time.Time, spotPrice float64, contracts []ContractBlock) (timeseries.Series, error) {
	blocks, days := prepare(spotDate, spotPrice, b.bounds, contracts, b.logger)
	if days == 0 {
		return timeseries.Series{}, nil
	}

	knotDays := []float64{0}
	knotPrices := []float64{spotPrice}
	for _, blk := range blocks {
		mid := (blk.startIdx + blk.endIdx) / 2
		if mid > 0 && float64(mid) != knotDays[len(knotDays)-1] {
			knotDays = append(knotDays, float64(mid))
			knotPrices = append(knotPrices, blk.price)
		}
	}
	// Hold the last knot price flat out to the end of the horizon.
	if knotDays[len(knotDays)-1] != float64(days-1) {
		knotDays = append(knotDays, float64(days-1))
		knotPrices = append(knotPrices, knotPrices[len(knotPrices)-1])
	}

	spline := fitNaturalCubic(knotDays, knotPrices)
	values := make([]float64, days)
	for i := 0; i < days; i++ {
		values[i] = clip(spline.at(float64(i)), b.bounds.MinPrice, b.bounds.MaxPrice)
	}

	b.logger.Info().Int("knots", len(knotDays)).Int("days", days).Msg("cubic spline curve built")

	result, err := timeseries.New(timeseries.DailyAxis(spotDate, days), values)
	if err != nil {
		return timeseries.Series{}, err
	}
	checkDailyMoves(result, b.bounds, b.logger)
	return result, nil
}

// naturalCubic holds per-interval polynomial coefficients.
type naturalCubic struct {
	xs []float64
	ys []float64
	m  []float64 // second derivatives at the knots
}

// fitNaturalCubic solves the tridiagonal second-derivative system with
// natural boundary conditions (zero curvature at both ends).
func fitNaturalCubic(xs, ys []float64) naturalCubic {
	n := len(xs)
	m := make([]float64, n)
	if n < 3 {
		return naturalCubic{xs: xs, ys: ys, m: m}
	}

	// Thomas algorithm on the interior knots.
	sub := make([]float64, n)
	diag := make([]float64, n)
	sup := make([]float64, n)
	rhs := make([]float64, n)
	for i := 1; i < n-1; i++ {
		h0 := xs[i] - xs[i-1]
		h1 := xs[i+1] - xs[i]
		sub[i] = h0
		diag[i] = 2 * (h0 + h1)
		sup[i] = h1
		rhs[i] = 6 * ((ys[i+1]-ys[i])/h1 - (ys[i]-ys[i-1])/h0)
	}
	for i := 2; i < n-1; i++ {
		factor := sub[i] / diag[i-1]
		diag[i] -= factor * sup[i-1]
		rhs[i] -= factor * rhs[i-1]
	}
	for i := n - 2; i >= 1; i-- {
		m[i] = (rhs[i] - sup[i]*m[i+1]) / diag[i]
	}
	return naturalCubic{xs: xs, ys: ys, m: m}
}

// at evaluates the spline, extrapolating flat beyond the knot range.
func (s naturalCubic) at(x float64) float64 {
	n := len(s.xs)
	if n == 0 {
		return 0
	}
	if x <= s.xs[0] {
		return s.ys[0]
	}
	if x >= s.xs[n-1] {
		return s.ys[n-1]
	}

	i := 0
	for i < n-2 && x > s.xs[i+1] {
		i++
	}
	h := s.xs[i+1] - s.xs[i]
	a := (s.xs[i+1] - x) / h
	b := (x - s.xs[i]) / h
	return a*s.ys[i] + b*s.ys[i+1] +
		((a*a*a-a)*s.m[i]+(b*b*b-b)*s.m[i+1])*h*h/6
}
