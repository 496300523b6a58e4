package accuracy

import (
	"math"
	"sort"
	"time"

	"pulp-price-forecast/internal/timeseries"
)

// Observation is one scored (prediction, actual) pair from a backtest.
type Observation struct {
	SnapshotDate time.Time
	TargetDate   time.Time
	HorizonDays  int
	Predicted    float64
	Actual       float64
	Error        float64 // predicted - actual
	ErrorPct     float64 // error / actual * 100
}

// Summary aggregates error statistics over a set of observations.
type Summary struct {
	MAPE float64
	RMSE float64
	Bias float64
	N    int
}

// Report is the backtest output: overall statistics plus a per-horizon
// breakdown keyed by horizon days.
type Report struct {
	Overall   Summary
	ByHorizon map[int]Summary
}

// BacktestCurves scores each historical curve snapshot at each requested
// horizon: predicted is the curve value at snapshot date plus horizon,
// actual the realized price on that same date. Pairs missing either side
// are skipped. Snapshot order is deterministic.
func BacktestCurves(snapshots map[time.Time]timeseries.Series, realized timeseries.Series, horizons []int) []Observation {
	snapshotDates := make([]time.Time, 0, len(snapshots))
	for d := range snapshots {
		snapshotDates = append(snapshotDates, d)
	}
	sort.Slice(snapshotDates, func(i, j int) bool { return snapshotDates[i].Before(snapshotDates[j]) })

	var out []Observation
	for _, snapshotDate := range snapshotDates {
		snapshotCurve := snapshots[snapshotDate]
		for _, horizon := range horizons {
			target := timeseries.Day(snapshotDate).AddDate(0, 0, horizon)
			predicted, ok := snapshotCurve.At(target)
			if !ok {
				continue
			}
			actual, ok := realized.At(target)
			if !ok {
				continue
			}

			obs := Observation{
				SnapshotDate: timeseries.Day(snapshotDate),
				TargetDate:   target,
				HorizonDays:  horizon,
				Predicted:    predicted,
				Actual:       actual,
				Error:        predicted - actual,
			}
			if actual != 0 {
				obs.ErrorPct = obs.Error / actual * 100
			}
			out = append(out, obs)
		}
	}
	return out
}

// Summarize aggregates observations into an overall summary and a
// per-horizon breakdown.
func Summarize(observations []Observation) Report {
	report := Report{
		Overall:   summarize(observations),
		ByHorizon: make(map[int]Summary),
	}

	byHorizon := make(map[int][]Observation)
	for _, obs := range observations {
		byHorizon[obs.HorizonDays] = append(byHorizon[obs.HorizonDays], obs)
	}
	for horizon, subset := range byHorizon {
		report.ByHorizon[horizon] = summarize(subset)
	}
	return report
}

func summarize(observations []Observation) Summary {
	if len(observations) == 0 {
		return Summary{MAPE: math.NaN(), RMSE: math.NaN(), Bias: math.NaN()}
	}
	var absPct, sqErr, bias float64
	for _, obs := range observations {
		absPct += math.Abs(obs.ErrorPct)
		sqErr += obs.Error * obs.Error
		bias += obs.Error
	}
	n := float64(len(observations))
	return Summary{
		MAPE: absPct / n,
		RMSE: math.Sqrt(sqErr / n),
		Bias: bias / n,
		N:    len(observations),
	}
}
