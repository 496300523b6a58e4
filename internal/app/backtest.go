package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"pulp-price-forecast/internal/accuracy"
	"pulp-price-forecast/internal/timeseries"
)

// Backtest replays stored curve snapshots against realized prices and
// prints per-horizon accuracy.
func (a *App) Backtest(ctx context.Context, opts BacktestOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("from must be before to")
	}
	if len(opts.Horizons) == 0 {
		opts.Horizons = a.Config.Forecast.SavedHorizons
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dates, err := store.ListSnapshotDates(ctx, opts.Product, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Fprintln(os.Stdout, "no curve snapshots in window")
		return nil
	}

	snapshots := make(map[time.Time]timeseries.Series, len(dates))
	for _, date := range dates {
		points, err := store.GetCurve(ctx, date, opts.Product)
		if err != nil {
			return err
		}
		curveDates := make([]time.Time, 0, len(points))
		curveValues := make([]float64, 0, len(points))
		for _, p := range points {
			curveDates = append(curveDates, p.ContractDate)
			curveValues = append(curveValues, p.Price.InexactFloat64())
		}
		series, err := timeseries.New(curveDates, curveValues)
		if err != nil {
			a.Logger.Warn().Err(err).Time("snapshot", date).Msg("skipping malformed stored curve")
			continue
		}
		snapshots[date] = series
	}

	maxHorizon := 0
	for _, h := range opts.Horizons {
		if h > maxHorizon {
			maxHorizon = h
		}
	}
	prices, err := store.ListRealizedPrices(ctx, opts.Product, opts.From, opts.To.AddDate(0, 0, maxHorizon))
	if err != nil {
		return err
	}
	priceDates := make([]time.Time, 0, len(prices))
	priceValues := make([]float64, 0, len(prices))
	for _, p := range prices {
		priceDates = append(priceDates, p.PriceDate)
		priceValues = append(priceValues, p.Price.InexactFloat64())
	}
	realized, err := timeseries.New(priceDates, priceValues)
	if err != nil {
		return fmt.Errorf("realized price history malformed: %w", err)
	}

	observations := accuracy.BacktestCurves(snapshots, realized, opts.Horizons)
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshot/realization overlap in window")
		return nil
	}
	report := accuracy.Summarize(observations)

	printBacktestReport(opts.Product, report)

	if opts.TuneWeights {
		validationHorizon := opts.Horizons[0]
		for _, h := range opts.Horizons[1:] {
			if h < validationHorizon {
				validationHorizon = h
			}
		}
		weights := a.newForecaster(opts.Product).LearnWeights(snapshots, realized, validationHorizon)
		fmt.Fprintf(os.Stdout, "suggested weights (%dd validation): futures_curve=%.2f statistical=%.2f mean_reversion=%.2f\n",
			validationHorizon, weights.FuturesCurve, weights.Statistical, weights.MeanReversion)
	}
	return nil
}

func printBacktestReport(product string, report accuracy.Report) {
	fmt.Fprintf(os.Stdout, "curve backtest: %s\n", product)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Horizon\tN\tMAPE%\tRMSE\tBias")

	horizons := make([]int, 0, len(report.ByHorizon))
	for h := range report.ByHorizon {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)
	for _, h := range horizons {
		s := report.ByHorizon[h]
		fmt.Fprintf(writer, "%dd\t%d\t%.2f\t%.2f\t%.2f\n", h, s.N, s.MAPE, s.RMSE, s.Bias)
	}
	s := report.Overall
	fmt.Fprintf(writer, "overall\t%d\t%.2f\t%.2f\t%.2f\n", s.N, s.MAPE, s.RMSE, s.Bias)
	writer.Flush()
}
