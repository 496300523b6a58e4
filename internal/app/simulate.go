package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/ensemble"
	"pulp-price-forecast/internal/fetcher"
	"pulp-price-forecast/internal/timeseries"
)

// Simulate runs the curve build and ensemble once from quotes supplied on
// the command line, without touching the database or the exchange.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.SpotPrice <= 0 {
		return errors.New("--spot must be greater than zero")
	}
	if _, ok := a.Config.Products[opts.Product]; !ok {
		return fmt.Errorf("unknown product %q", opts.Product)
	}
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = a.Config.Forecast.HorizonDays
	}

	spotDate := time.Now().UTC().Truncate(24 * time.Hour)
	quotes := make([]curve.PeriodQuote, 0, len(opts.Quotes))
	for _, q := range opts.Quotes {
		quotes = append(quotes, curve.PeriodQuote{
			Product:    opts.Product,
			AnchorDate: q.AnchorDate,
			Period:     q.Period,
			Price:      q.Price,
		})
	}

	static := fetcher.NewStatic(map[string]fetcher.MarketSnapshot{
		opts.Product: {
			Product:   opts.Product,
			SpotDate:  spotDate,
			SpotPrice: opts.SpotPrice,
			Quotes:    quotes,
		},
	})
	snapshot, err := static.FetchContracts(ctx, opts.Product)
	if err != nil {
		return err
	}

	blocks := curve.BlocksFromPeriodQuotes(snapshot.Quotes, a.Logger)
	forecaster := a.newForecaster(opts.Product)
	result := forecaster.Forecast(snapshot.SpotPrice, snapshot.SpotDate, blocks, timeseries.Series{}, horizon)

	printSimulatedForecast(opts.Product, snapshot.SpotPrice, result, a.Config.Forecast.SavedHorizons)

	if built, buildErr := a.newBuilder(opts.Product).Build(snapshot.SpotDate, snapshot.SpotPrice, blocks); buildErr == nil {
		residuals := curve.Residuals(built, snapshot.SpotDate, blocks)
		for _, r := range residuals {
			a.Logger.Info().
				Time("contract_start", r.Contract.Start).
				Time("contract_end", r.Contract.End).
				Float64("target", r.Target).
				Float64("realized_mean", r.RealizedMean).
				Float64("error", r.Error).
				Msg("contract fit residual")
		}
	} else {
		a.Logger.Warn().Err(buildErr).Msg("curve build failed in simulation")
	}

	return nil
}

func printSimulatedForecast(product string, spot float64, result ensemble.Result, horizons []int) {
	fmt.Fprintf(os.Stdout, "simulated forecast: %s (spot %.2f)\n", product, spot)
	fmt.Fprintf(os.Stdout, "weights: curve %.2f / statistical %.2f / reversion %.2f\n",
		result.Weights.FuturesCurve, result.Weights.Statistical, result.Weights.MeanReversion)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Horizon\tDate\tPoint\t50% band\t90% band")
	for _, h := range horizons {
		if h > len(result.Dates) {
			continue
		}
		i := h - 1
		fmt.Fprintf(writer, "%dd\t%s\t%.2f\t[%.2f, %.2f]\t[%.2f, %.2f]\n",
			h,
			result.Dates[i].Format("2006-01-02"),
			result.Point.Values()[i],
			result.Lower50.Values()[i], result.Upper50.Values()[i],
			result.Lower90.Values()[i], result.Upper90.Values()[i],
		)
	}
	writer.Flush()
}
