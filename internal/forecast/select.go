package forecast

import (
	"math"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/timeseries"
)

// SelectBest fits each candidate model on a train split and scores it by
// MAPE against the held-out validation tail. The lowest MAPE wins; ties
// favor the earliest-tried model. Returns the model's symbolic name, never
// an instance, so the caller controls instantiation.
func SelectBest(history timeseries.Series, validationDays int, logger zerolog.Logger) string {
	if validationDays <= 0 || history.Len() <= validationDays {
		return NewMovingAverage().Name()
	}

	dates := history.Dates()
	values := history.Values()
	split := history.Len() - validationDays
	train, _ := timeseries.New(dates[:split], values[:split])
	holdout := values[split:]

	candidates := []Model{NewARIMA(), NewSeasonalTrend(), NewMovingAverage()}

	bestName := NewMovingAverage().Name()
	bestMAPE := math.Inf(1)
	for _, model := range candidates {
		if err := model.Fit(train); err != nil {
			logger.Debug().Err(err).Str("model", model.Name()).Msg("candidate dropped during selection")
			continue
		}
		result, err := model.Forecast(validationDays, 0.90)
		if err != nil {
			logger.Debug().Err(err).Str("model", model.Name()).Msg("candidate forecast failed during selection")
			continue
		}
		mape := validationMAPE(holdout, result.Point.Values())
		logger.Debug().Str("model", model.Name()).Float64("mape", mape).Msg("candidate scored")
		if !math.IsNaN(mape) && mape < bestMAPE {
			bestMAPE = mape
			bestName = model.Name()
		}
	}

	logger.Info().Str("model", bestName).Float64("mape", bestMAPE).Msg("model selection complete")
	return bestName
}

// validationMAPE scores predicted against actual over their common prefix.
func validationMAPE(actual, predicted []float64) float64 {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	sum, count := 0.0, 0
	for i := 0; i < n; i++ {
		if actual[i] == 0 {
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count) * 100
}
