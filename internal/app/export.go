package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pulp-price-forecast/internal/ensemble"
	"pulp-price-forecast/internal/storage"
	"pulp-price-forecast/internal/timeseries"
)

// Export renders the forecast from a stored curve snapshot as CSV and/or
// PNG with the 90%/50% confidence bands.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if _, ok := a.Config.Products[opts.Product]; !ok {
		return fmt.Errorf("unknown product %q", opts.Product)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	points, err := a.loadCurve(ctx, store, opts)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("product", opts.Product).Msg("no stored curve found for export")
		return nil
	}

	snapshotDate := points[0].SnapshotDate
	dates := make([]time.Time, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		dates[i] = p.ContractDate
		values[i] = p.Price.InexactFloat64()
	}
	curveSeries, err := timeseries.New(dates, values)
	if err != nil {
		return fmt.Errorf("stored curve malformed: %w", err)
	}
	spotPrice := values[0]

	history, err := a.loadHistory(ctx, store, opts.Product, snapshotDate)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("price history unavailable for export")
	}

	forecaster := a.newForecaster(opts.Product)
	result := forecaster.ForecastFromCurve(spotPrice, snapshotDate, curveSeries, history, a.Config.Forecast.HorizonDays)

	a.Logger.Info().
		Str("product", opts.Product).
		Time("snapshot", snapshotDate).
		Int("days", len(result.Dates)).
		Msg("exporting forecast")

	if opts.CSVPath != "" {
		if err := writeForecastCSV(opts.CSVPath, result); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeForecastPNG(opts.PNGPath, opts.Product, result, opts.MaxPoints); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) loadCurve(ctx context.Context, store *storage.Store, opts ExportOptions) ([]storage.CurvePoint, error) {
	if opts.Snapshot != nil {
		return store.GetCurve(ctx, *opts.Snapshot, opts.Product)
	}
	return store.GetLatestCurve(ctx, opts.Product)
}

func writeForecastCSV(path string, result ensemble.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "point", "lower50", "upper50", "lower90", "upper90", "futures_curve", "statistical", "mean_reversion"}
	if err := writer.Write(header); err != nil {
		return err
	}

	point := result.Point.Values()
	lower50 := result.Lower50.Values()
	upper50 := result.Upper50.Values()
	lower90 := result.Lower90.Values()
	upper90 := result.Upper90.Values()
	futures := result.Components[ensemble.ComponentFuturesCurve].Values()
	statistical := result.Components[ensemble.ComponentStatistical].Values()
	reversion := result.Components[ensemble.ComponentMeanReversion].Values()

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	for i, date := range result.Dates {
		record := []string{
			date.Format("2006-01-02"),
			f(point[i]), f(lower50[i]), f(upper50[i]), f(lower90[i]), f(upper90[i]),
			f(futures[i]), f(statistical[i]), f(reversion[i]),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeForecastPNG(path, product string, result ensemble.Result, maxPoints int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	idx := downsampleIndices(len(result.Dates), maxPoints)
	x := make([]time.Time, len(idx))
	point := make([]float64, len(idx))
	lower90 := make([]float64, len(idx))
	upper90 := make([]float64, len(idx))
	lower50 := make([]float64, len(idx))
	upper50 := make([]float64, len(idx))

	pv := result.Point.Values()
	l90 := result.Lower90.Values()
	u90 := result.Upper90.Values()
	l50 := result.Lower50.Values()
	u50 := result.Upper50.Values()
	for i, j := range idx {
		x[i] = result.Dates[j]
		point[i] = pv[j]
		lower90[i] = l90[j]
		upper90[i] = u90[j]
		lower50[i] = l50[j]
		upper50[i] = u50[j]
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("%s (USD/tonne)", product),
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "90% band",
				XValues: x,
				YValues: upper90,
				Style:   chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeDashArray: []float64{4, 4}},
			},
			chart.TimeSeries{
				XValues: x,
				YValues: lower90,
				Style:   chart.Style{StrokeColor: chart.ColorAlternateGray, StrokeDashArray: []float64{4, 4}},
			},
			chart.TimeSeries{
				Name:    "50% band",
				XValues: x,
				YValues: upper50,
				Style:   chart.Style{StrokeColor: chart.ColorAlternateLightGray},
			},
			chart.TimeSeries{
				XValues: x,
				YValues: lower50,
				Style:   chart.Style{StrokeColor: chart.ColorAlternateLightGray},
			},
			chart.TimeSeries{
				Name:    "Point forecast",
				XValues: x,
				YValues: point,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func downsampleIndices(n, max int) []int {
	if max <= 0 || n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	idx := make([]int, 0, max)
	step := float64(n-1) / float64(max-1)
	for i := 0; i < max; i++ {
		j := int(math.Round(step * float64(i)))
		if j >= n {
			j = n - 1
		}
		idx = append(idx, j)
	}
	return idx
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
