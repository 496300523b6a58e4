package ensemble

import (
	"math"
	"sort"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// minComponentWeight is the floor under which a grid combination is
// rejected during weight learning.
const minComponentWeight = 0.05

// LearnWeights grid-searches the three component weights over a coarse
// lattice (step 0.1, third weight = 1 - w1 - w2), scoring each admissible
// combination by MAPE of historical curve snapshots against realized
// prices at the validation horizon. Ties keep the first combination found
// in lattice order. Returns the current weights unchanged when no
// snapshot can be scored.
func (f *Forecaster) LearnWeights(snapshots map[time.Time]timeseries.Series, realized timeseries.Series, validationHorizon int) Weights {
	best := f.opts.Weights
	bestMAPE := math.Inf(1)

	for w1 := 0.1; w1 <= 0.6+1e-9; w1 += 0.1 {
		for w2 := 0.1; w2 <= 0.6+1e-9; w2 += 0.1 {
			w3 := 1.0 - w1 - w2
			if w3 < minComponentWeight {
				continue
			}
			candidate := Weights{FuturesCurve: w1, Statistical: w2, MeanReversion: w3}
			mape := f.evaluateWeights(candidate, snapshots, realized, validationHorizon)
			if mape < bestMAPE {
				bestMAPE = mape
				best = candidate
			}
		}
	}

	if !math.IsInf(bestMAPE, 1) {
		f.opts.Weights = best
		f.logger.Info().
			Float64("futures_curve", best.FuturesCurve).
			Float64("statistical", best.Statistical).
			Float64("mean_reversion", best.MeanReversion).
			Float64("mape", bestMAPE).
			Msg("learned ensemble weights")
	}
	return best
}

// evaluateWeights scores one weight combination against history. The
// evaluation follows the curve snapshot as the dominant signal at the
// validation horizon; combinations that cannot be scored return +Inf.
func (f *Forecaster) evaluateWeights(weights Weights, snapshots map[time.Time]timeseries.Series, realized timeseries.Series, horizon int) float64 {
	snapshotDates := make([]time.Time, 0, len(snapshots))
	for d := range snapshots {
		snapshotDates = append(snapshotDates, d)
	}
	sort.Slice(snapshotDates, func(i, j int) bool { return snapshotDates[i].Before(snapshotDates[j]) })

	sum, count := 0.0, 0
	for _, snapshotDate := range snapshotDates {
		snapshot := snapshots[snapshotDate]
		if snapshot.IsEmpty() {
			continue
		}
		target := timeseries.Day(snapshotDate).AddDate(0, 0, horizon)
		actual, ok := realized.At(target)
		if !ok || actual == 0 {
			continue
		}

		curvePredicted, ok := snapshot.At(target)
		if !ok {
			last, _ := snapshot.Last()
			curvePredicted = last.Value
		}

		// Equilibrium stands in for the mean-reversion component and the
		// snapshot's own level for the statistical one.
		spot, _ := snapshot.First()
		predicted := weights.FuturesCurve*curvePredicted +
			weights.Statistical*spot.Value +
			weights.MeanReversion*f.opts.LongTermMean

		sum += math.Abs(predicted-actual) / actual * 100
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}
