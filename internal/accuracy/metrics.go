// Package accuracy scores predictions against realized prices. All
// metrics operate on the date intersection of the two series and return
// NaN, never an error and never zero, when no overlap exists.
package accuracy

import (
	"math"

	"pulp-price-forecast/internal/timeseries"
)

// MAPE is the mean absolute percentage error, in percent. Lower is
// better; under 5% is excellent, over 20% needs attention.
func MAPE(predictions, actuals timeseries.Series) float64 {
	sum, count := 0.0, 0
	eachOverlap(predictions, actuals, func(pred, actual float64) {
		if actual == 0 {
			return
		}
		sum += math.Abs((actual - pred) / actual)
		count++
	})
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count) * 100
}

// RMSE is the root mean square error, penalising large misses.
func RMSE(predictions, actuals timeseries.Series) float64 {
	sum, count := 0.0, 0
	eachOverlap(predictions, actuals, func(pred, actual float64) {
		diff := actual - pred
		sum += diff * diff
		count++
	})
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(count))
}

// Bias is the mean of predicted minus actual: positive means the model
// systematically overestimates.
func Bias(predictions, actuals timeseries.Series) float64 {
	sum, count := 0.0, 0
	eachOverlap(predictions, actuals, func(pred, actual float64) {
		sum += pred - actual
		count++
	})
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// DirectionalAccuracy is the percentage of day-over-day moves whose sign
// the prediction got right, over the aligned first differences. Above 50
// beats a coin flip.
func DirectionalAccuracy(predictions, actuals timeseries.Series) float64 {
	correct, count := 0, 0
	eachOverlap(predictions.Diff(), actuals.Diff(), func(pred, actual float64) {
		if sign(pred) == sign(actual) {
			correct++
		}
		count++
	})
	if count == 0 {
		return math.NaN()
	}
	return float64(correct) / float64(count) * 100
}

// SkillScore compares a model's MAPE against the naive no-change
// forecast's: positive means the model beats "no change", 1 would be a
// perfect forecast.
func SkillScore(modelMAPE, naiveMAPE float64) float64 {
	if naiveMAPE == 0 || math.IsNaN(naiveMAPE) || math.IsNaN(modelMAPE) {
		return math.NaN()
	}
	return 1 - modelMAPE/naiveMAPE
}

// NaiveForecast builds the no-change benchmark: each observed price is
// re-dated `horizon` days forward as the prediction for that target date.
func NaiveForecast(history timeseries.Series, horizon int) timeseries.Series {
	dates := history.Dates()
	for i := range dates {
		dates[i] = dates[i].AddDate(0, 0, horizon)
	}
	shifted, _ := timeseries.New(dates, history.Values())
	return shifted
}

// eachOverlap visits every date present in both series.
func eachOverlap(predictions, actuals timeseries.Series, visit func(pred, actual float64)) {
	dates := predictions.Dates()
	values := predictions.Values()
	for i, d := range dates {
		if actual, ok := actuals.At(d); ok {
			visit(values[i], actual)
		}
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
