// Package ensemble blends the futures curve with statistical and
// mean-reversion models under horizon-dependent weights.
package ensemble

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/forecast"
	"pulp-price-forecast/internal/timeseries"
)

// Component keys. These names are persisted and displayed verbatim
// downstream; do not rename.
const (
	ComponentFuturesCurve  = "futures_curve"
	ComponentStatistical   = "statistical"
	ComponentMeanReversion = "mean_reversion"
)

// volatilityCap limits band width to this fraction of the current price so
// long horizons do not produce unbounded bands.
const volatilityCap = 0.30

// z-scores for the two paired confidence bands.
const (
	z90 = 1.645
	z50 = 0.674
)

// Weights are the ensemble component weights.
type Weights struct {
	FuturesCurve  float64
	Statistical   float64
	MeanReversion float64
}

// DefaultWeights is the fixed split used when horizon adaptation is off.
func DefaultWeights() Weights {
	return Weights{FuturesCurve: 0.50, Statistical: 0.30, MeanReversion: 0.20}
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 { return w.FuturesCurve + w.Statistical + w.MeanReversion }

// weightSumTolerance is how far from unit mass the weights may drift
// before Normalized rescales them.
const weightSumTolerance = 1e-9

// Normalized rescales the weights to sum to 1. Weights already at unit
// mass pass through untouched, so configured splits like 0.7/0.2/0.1 keep
// their exact values. Zero-mass weights fall back to the default split.
func (w Weights) Normalized() Weights {
	total := w.Sum()
	if total <= 0 {
		return DefaultWeights()
	}
	if math.Abs(total-1) < weightSumTolerance {
		return w
	}
	return Weights{
		FuturesCurve:  w.FuturesCurve / total,
		Statistical:   w.Statistical / total,
		MeanReversion: w.MeanReversion / total,
	}
}

// Result is the complete ensemble output: the point forecast, two paired
// confidence bands, the weights used, and each component's aligned series.
type Result struct {
	Dates      []time.Time
	Point      timeseries.Series
	Lower90    timeseries.Series
	Upper90    timeseries.Series
	Lower50    timeseries.Series
	Upper50    timeseries.Series
	Weights    Weights
	Components map[string]timeseries.Series
}

// Options configure a Forecaster.
type Options struct {
	Weights      Weights
	LongTermMean float64
	HalfLifeDays int
	AdaptWeights bool
	// StatisticalModels is the ordered fallback chain for the statistical
	// component; models are tried in sequence and the first successful
	// fit+forecast wins. Defaults to ARIMA then the moving-average
	// baseline.
	StatisticalModels []forecast.Model
	// VolatilityModel optionally sizes the confidence bands from fitted
	// conditional volatility instead of the flat historical return std.
	// Fit or forecast failures fall back to the historical path.
	VolatilityModel forecast.VolatilityModel
}

// Forecaster combines the curve, a statistical model, and mean reversion.
// The curve and statistical components are soft: any failure substitutes a
// flat spot-price projection instead of propagating the error.
type Forecaster struct {
	builder curve.Builder
	opts    Options
	logger  zerolog.Logger
}

// New constructs an ensemble forecaster around a curve-building strategy.
func New(builder curve.Builder, opts Options, logger zerolog.Logger) *Forecaster {
	if opts.Weights.Sum() == 0 {
		opts.Weights = DefaultWeights()
	}
	opts.Weights = opts.Weights.Normalized()
	if opts.LongTermMean <= 0 {
		opts.LongTermMean = 1100
	}
	if opts.HalfLifeDays <= 0 {
		opts.HalfLifeDays = 180
	}
	if len(opts.StatisticalModels) == 0 {
		opts.StatisticalModels = []forecast.Model{forecast.NewARIMA(), forecast.NewMovingAverage()}
	}
	return &Forecaster{
		builder: builder,
		opts:    opts,
		logger:  logger.With().Str("component", "ensemble").Logger(),
	}
}

// HorizonWeights returns the weight split for a horizon: the configured
// split when adaptation is off, otherwise bucketed by horizon. Near-term
// trusts market-implied forwards; far-term decays toward equilibrium.
func (f *Forecaster) HorizonWeights(horizonDays int) Weights {
	if !f.opts.AdaptWeights {
		return f.opts.Weights
	}
	switch {
	case horizonDays <= 30:
		return Weights{FuturesCurve: 0.60, Statistical: 0.25, MeanReversion: 0.15}
	case horizonDays <= 90:
		return Weights{FuturesCurve: 0.45, Statistical: 0.30, MeanReversion: 0.25}
	default:
		return Weights{FuturesCurve: 0.30, Statistical: 0.30, MeanReversion: 0.40}
	}
}

// Forecast produces the blended multi-horizon forecast with confidence
// bands.
func (f *Forecaster) Forecast(spotPrice float64, spotDate time.Time, contracts []curve.ContractBlock, history timeseries.Series, horizonDays int) Result {
	axis := timeseries.DailyAxis(spotDate, horizonDays)
	curveSeries := f.curveComponent(spotPrice, spotDate, contracts, axis)
	return f.blend(spotPrice, spotDate, curveSeries, history, horizonDays, axis)
}

// ForecastFromCurve blends a previously built (or stored) curve instead of
// building one from contracts. Used when forecasting from persisted
// snapshots.
func (f *Forecaster) ForecastFromCurve(spotPrice float64, spotDate time.Time, curveSeries timeseries.Series, history timeseries.Series, horizonDays int) Result {
	axis := timeseries.DailyAxis(spotDate, horizonDays)
	if curveSeries.IsEmpty() {
		curveSeries = timeseries.Constant(axis, spotPrice)
	} else {
		curveSeries = curveSeries.Reindex(axis, spotPrice)
	}
	return f.blend(spotPrice, spotDate, curveSeries, history, horizonDays, axis)
}

func (f *Forecaster) blend(spotPrice float64, spotDate time.Time, curveSeries timeseries.Series, history timeseries.Series, horizonDays int, axis []time.Time) Result {
	components := make(map[string]timeseries.Series, 3)

	components[ComponentFuturesCurve] = curveSeries
	components[ComponentStatistical] = f.statisticalComponent(spotPrice, history, axis)

	reversion := forecast.NewMeanReversion(f.opts.LongTermMean, f.opts.HalfLifeDays)
	components[ComponentMeanReversion] = reversion.Forecast(spotPrice, spotDate, horizonDays).Reindex(axis, spotPrice)

	weights := f.HorizonWeights(horizonDays).Normalized()
	combined := make([]float64, len(axis))
	addWeighted := func(series timeseries.Series, weight float64) {
		for i, v := range series.Values() {
			combined[i] += weight * v
		}
	}
	addWeighted(components[ComponentFuturesCurve], weights.FuturesCurve)
	addWeighted(components[ComponentStatistical], weights.Statistical)
	addWeighted(components[ComponentMeanReversion], weights.MeanReversion)

	volatility := f.volatilityCurve(history, spotPrice, horizonDays)
	lower90 := make([]float64, len(axis))
	upper90 := make([]float64, len(axis))
	lower50 := make([]float64, len(axis))
	upper50 := make([]float64, len(axis))
	for i := range combined {
		lower90[i] = combined[i] - z90*volatility[i]
		upper90[i] = combined[i] + z90*volatility[i]
		lower50[i] = combined[i] - z50*volatility[i]
		upper50[i] = combined[i] + z50*volatility[i]
	}

	mustSeries := func(values []float64) timeseries.Series {
		s, _ := timeseries.New(axis, values)
		return s
	}
	return Result{
		Dates:      axis,
		Point:      mustSeries(combined),
		Lower90:    mustSeries(lower90),
		Upper90:    mustSeries(upper90),
		Lower50:    mustSeries(lower50),
		Upper50:    mustSeries(upper50),
		Weights:    weights,
		Components: components,
	}
}

// curveComponent builds the futures-curve series, substituting a flat
// spot projection on any failure. The curve is a soft component.
func (f *Forecaster) curveComponent(spotPrice float64, spotDate time.Time, contracts []curve.ContractBlock, axis []time.Time) timeseries.Series {
	built, err := f.builder.Build(spotDate, spotPrice, contracts)
	if err != nil {
		f.logger.Warn().Err(err).Msg("curve build failed, using flat projection")
		return timeseries.Constant(axis, spotPrice)
	}
	if built.IsEmpty() {
		return timeseries.Constant(axis, spotPrice)
	}
	return built.Reindex(axis, spotPrice)
}

// statisticalComponent walks the fallback chain in order, with the model
// scoring best on a validation split tried first; if every model fails
// the component is a flat spot projection.
func (f *Forecaster) statisticalComponent(spotPrice float64, history timeseries.Series, axis []time.Time) timeseries.Series {
	models := f.orderBySelection(history)
	for _, model := range models {
		if err := model.Fit(history); err != nil {
			f.logger.Warn().Err(err).Str("model", model.Name()).Msg("statistical model fit failed, trying next")
			continue
		}
		result, err := model.Forecast(len(axis), 0.90)
		if err != nil {
			f.logger.Warn().Err(err).Str("model", model.Name()).Msg("statistical model forecast failed, trying next")
			continue
		}
		f.logger.Info().Str("model", model.Name()).Msg("statistical component generated")
		return result.Point.Reindex(axis, spotPrice)
	}
	f.logger.Warn().Msg("all statistical models failed, using flat projection")
	return timeseries.Constant(axis, spotPrice)
}

// selectionValidationDays is the holdout used to rank the statistical
// chain before forecasting.
const selectionValidationDays = 30

// orderBySelection moves the model that wins holdout validation to the
// front of the fallback chain. The rest keep their configured order, so a
// selection miss still degrades along the usual path.
func (f *Forecaster) orderBySelection(history timeseries.Series) []forecast.Model {
	models := f.opts.StatisticalModels
	if len(models) < 2 || history.Len() <= selectionValidationDays {
		return models
	}
	best := forecast.SelectBest(history, selectionValidationDays, f.logger)
	for i, model := range models {
		if model.Name() == best && i > 0 {
			reordered := make([]forecast.Model, 0, len(models))
			reordered = append(reordered, models[i])
			reordered = append(reordered, models[:i]...)
			reordered = append(reordered, models[i+1:]...)
			return reordered
		}
	}
	return models
}

// volatilityCurve scales the historical daily-return deviation by the
// square root of the day index and the current price, capped so bands stay
// bounded at long horizons.
func (f *Forecaster) volatilityCurve(history timeseries.Series, spotPrice float64, horizonDays int) []float64 {
	current := spotPrice
	if last, ok := history.Last(); ok {
		current = last.Value
	}

	if f.opts.VolatilityModel != nil {
		out, err := f.modelVolatility(history, current, horizonDays)
		if err == nil {
			return out
		}
		f.logger.Warn().Err(err).Msg("volatility model failed, using historical return std")
	}

	returns := history.PctReturns()
	dailyVol := 0.0
	if len(returns) >= 2 {
		dailyVol = math.Sqrt(variance(returns))
	}

	ceiling := volatilityCap * current
	out := make([]float64, horizonDays)
	for i := 0; i < horizonDays; i++ {
		v := dailyVol * math.Sqrt(float64(i+1)) * current
		if v > ceiling {
			v = ceiling
		}
		out[i] = v
	}
	return out
}

// modelVolatility sizes the bands from the fitted volatility model: the
// per-day vols accumulate in variance, so the band still widens with the
// square root of elapsed time, under the same ceiling as the flat path.
func (f *Forecaster) modelVolatility(history timeseries.Series, current float64, horizonDays int) ([]float64, error) {
	if err := f.opts.VolatilityModel.Fit(history); err != nil {
		return nil, err
	}
	vols, err := f.opts.VolatilityModel.ForecastVolatility(horizonDays)
	if err != nil {
		return nil, err
	}

	ceiling := volatilityCap * current
	out := make([]float64, horizonDays)
	cumVariance := 0.0
	for i, vol := range vols {
		cumVariance += vol * vol
		v := math.Sqrt(cumVariance) * current
		if v > ceiling {
			v = ceiling
		}
		out[i] = v
	}
	return out, nil
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := 0.0
	for _, v := range xs {
		mu += v
	}
	mu /= float64(len(xs))
	sum := 0.0
	for _, v := range xs {
		sum += (v - mu) * (v - mu)
	}
	return sum / float64(len(xs)-1)
}
