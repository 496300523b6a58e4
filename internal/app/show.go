package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"pulp-price-forecast/internal/storage"
)

// Show prints recent forecast rows and an accuracy summary for a product.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	realized, err := store.ListRealizedForecasts(ctx, opts.Product)
	if err != nil {
		return err
	}
	pending, err := store.ListPendingForecasts(ctx, opts.Product, time.Now().UTC())
	if err != nil {
		return err
	}

	if len(realized) == 0 && len(pending) == 0 {
		fmt.Fprintln(os.Stdout, "no forecasts found")
		return nil
	}

	if opts.Limit > 0 && len(realized) > opts.Limit {
		realized = realized[len(realized)-opts.Limit:]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Predicted On\tTarget\tHorizon\tPredicted\tActual\tError%\tModel")
	for _, row := range realized {
		fmt.Fprintf(writer, "%s\t%s\t%dd\t%s\t%s\t%s\t%s\n",
			row.PredictionDate.Format("2006-01-02"),
			row.TargetDate.Format("2006-01-02"),
			row.HorizonDays,
			formatDecimal(row.PredictedPrice, 2),
			formatOptionalDecimal(row.ActualPrice, 2),
			formatOptionalDecimal(row.ErrorPct, 2),
			row.ModelVersion,
		)
	}
	for _, row := range pending {
		fmt.Fprintf(writer, "%s\t%s\t%dd\t%s\tpending\t\t%s\n",
			row.PredictionDate.Format("2006-01-02"),
			row.TargetDate.Format("2006-01-02"),
			row.HorizonDays,
			formatDecimal(row.PredictedPrice, 2),
			row.ModelVersion,
		)
	}
	writer.Flush()

	printAccuracySummary(realized)
	return nil
}

func printAccuracySummary(realized []storage.ForecastRow) {
	if len(realized) == 0 {
		return
	}

	var sumAbsPct, sumSq, sumErr float64
	n := 0
	for _, row := range realized {
		if row.Error == nil || row.ErrorPct == nil {
			continue
		}
		errVal := row.Error.InexactFloat64()
		sumAbsPct += math.Abs(row.ErrorPct.InexactFloat64())
		sumSq += errVal * errVal
		sumErr += errVal
		n++
	}
	if n == 0 {
		return
	}

	fmt.Fprintf(os.Stdout, "\nrealized rows: %d  MAPE: %.2f%%  RMSE: %.2f  bias: %.2f\n",
		n, sumAbsPct/float64(n), math.Sqrt(sumSq/float64(n)), sumErr/float64(n))
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func formatOptionalDecimal(d *decimal.Decimal, places int32) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(places)
}
