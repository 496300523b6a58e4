package app

import (
	"context"
	"strings"
	"time"

	"pulp-price-forecast/internal/config"
	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/ensemble"
	"pulp-price-forecast/internal/logging"
	"pulp-price-forecast/internal/service"
	"pulp-price-forecast/internal/storage"
	"pulp-price-forecast/internal/timeseries"
)

func (a *App) productBounds(product string) curve.Bounds {
	p, ok := a.Config.Products[product]
	if !ok {
		return curve.DefaultBounds()
	}
	return curve.Bounds{
		MinPrice:       p.MinPrice,
		MaxPrice:       p.MaxPrice,
		MaxDailyChange: p.MaxDailyChange,
	}
}

func (a *App) newBuilder(product string) curve.Builder {
	logger := logging.ForProduct(a.Logger, product)
	bounds := a.productBounds(product)
	if strings.EqualFold(a.Config.Curve.Strategy, config.CurveStrategySpline) {
		return curve.NewSplineBuilder(bounds, logger)
	}
	return curve.NewSmoothnessBuilder(bounds, logger)
}

func (a *App) newForecaster(product string) *ensemble.Forecaster {
	p := a.Config.Products[product]
	return ensemble.New(a.newBuilder(product), ensemble.Options{
		Weights: ensemble.Weights{
			FuturesCurve:  a.Config.Forecast.FuturesWeight,
			Statistical:   a.Config.Forecast.StatisticalWeight,
			MeanReversion: a.Config.Forecast.ReversionWeight,
		},
		LongTermMean:    p.LongTermMean,
		HalfLifeDays:    p.HalfLifeDays,
		AdaptWeights:    a.Config.Forecast.AdaptWeights,
		VolatilityModel: service.BandModel(a.Config),
	}, logging.ForProduct(a.Logger, product))
}

func (a *App) loadHistory(ctx context.Context, store *storage.Store, product string, asOf time.Time) (timeseries.Series, error) {
	prices, err := store.ListRealizedPrices(ctx, product, asOf.AddDate(-2, 0, 0), asOf)
	if err != nil {
		return timeseries.Series{}, err
	}
	dates := make([]time.Time, 0, len(prices))
	values := make([]float64, 0, len(prices))
	for _, p := range prices {
		dates = append(dates, p.PriceDate)
		values = append(values, p.Price.InexactFloat64())
	}
	return timeseries.New(dates, values)
}
