package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pulp-price-forecast/internal/accuracy"
	"pulp-price-forecast/internal/alerting"
	"pulp-price-forecast/internal/config"
	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/ensemble"
	"pulp-price-forecast/internal/fetcher"
	"pulp-price-forecast/internal/forecast"
	"pulp-price-forecast/internal/logging"
	"pulp-price-forecast/internal/scheduler"
	"pulp-price-forecast/internal/storage"
	"pulp-price-forecast/internal/timeseries"
)

const (
	modelVersion      = "ensemble-v1"
	spotSource        = "exchange_spot"
	historyYears      = 2
	realizeMaxAgeDays = 366
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	storage.CurveStore
	storage.ForecastStore
	storage.RealizedPriceStore
}

// Service orchestrates the daily per-product pipeline: fetch quotes,
// build the forward curve, persist the snapshot, forecast, and realize
// pending accuracy rows.
type Service struct {
	scheduler *scheduler.Scheduler
	fetch     fetcher.ContractFetcher
	store     Store
	notifier  alerting.Notifier
	logger    zerolog.Logger
	cfg       *config.Config

	builders    map[string]curve.Builder
	forecasters map[string]*ensemble.Forecaster

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the pipeline service. A builder and forecaster are wired
// per configured product from its bounds and reversion parameters.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.ContractFetcher, store Store, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	builders := make(map[string]curve.Builder, len(cfg.Products))
	forecasters := make(map[string]*ensemble.Forecaster, len(cfg.Products))
	for name, product := range cfg.Products {
		productLogger := logging.ForProduct(logger, name)
		bounds := curve.Bounds{
			MinPrice:       product.MinPrice,
			MaxPrice:       product.MaxPrice,
			MaxDailyChange: product.MaxDailyChange,
		}

		var builder curve.Builder
		if strings.EqualFold(cfg.Curve.Strategy, config.CurveStrategySpline) {
			builder = curve.NewSplineBuilder(bounds, productLogger)
		} else {
			builder = curve.NewSmoothnessBuilder(bounds, productLogger)
		}
		builders[name] = builder

		forecasters[name] = ensemble.New(builder, ensemble.Options{
			Weights: ensemble.Weights{
				FuturesCurve:  cfg.Forecast.FuturesWeight,
				Statistical:   cfg.Forecast.StatisticalWeight,
				MeanReversion: cfg.Forecast.ReversionWeight,
			},
			LongTermMean:    product.LongTermMean,
			HalfLifeDays:    product.HalfLifeDays,
			AdaptWeights:    cfg.Forecast.AdaptWeights,
			VolatilityModel: BandModel(cfg),
		}, productLogger)
	}

	return &Service{
		scheduler:   sched,
		fetch:       fetch,
		store:       store,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		cfg:         cfg,
		builders:    builders,
		forecasters: forecasters,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
	}
}

// BandModel returns a fresh conditional-volatility model per forecaster
// when GARCH band sizing is enabled, nil otherwise.
func BandModel(cfg *config.Config) forecast.VolatilityModel {
	if !cfg.Forecast.GARCHBands {
		return nil
	}
	return forecast.NewGARCHVolatility()
}

// Run begins the aligned daily loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs the pipeline once for every configured product.
// Products run concurrently and fail independently; the joined error is
// returned for job history.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	products := s.cfg.ProductNames()
	errs := make([]error, len(products))
	var wg sync.WaitGroup
	for i, name := range products {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			if err := s.processProduct(ctx, bucket, name); err != nil {
				s.logger.Error().Err(err).Str("product", name).Time("bucket", bucket).Msg("product pipeline failed")
				errs[i] = fmt.Errorf("%s: %w", name, err)
			}
		}(i, name)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *Service) processProduct(ctx context.Context, bucket time.Time, product string) error {
	logger := logging.ForProduct(s.logger, product)

	snapshot, err := s.fetch.FetchContracts(ctx, product)
	if err != nil {
		s.alert(ctx, alerting.Notification{
			Event:    alerting.EventDataQuality,
			Product:  product,
			Occurred: bucket,
			Summary:  "contract quote fetch failed",
			Detail:   err.Error(),
		})
		return fmt.Errorf("fetch contracts: %w", err)
	}

	spot := storage.RealizedPrice{
		PriceDate: snapshot.SpotDate,
		Product:   product,
		Price:     decimal.NewFromFloat(snapshot.SpotPrice),
		Source:    spotSource,
	}
	if err := s.store.UpsertRealizedPrice(ctx, spot); err != nil {
		logger.Error().Err(err).Msg("failed to persist spot price")
	}

	if err := s.realizePending(ctx, product, bucket); err != nil {
		logger.Error().Err(err).Msg("failed to realize pending forecasts")
	}

	blocks := curve.BlocksFromPeriodQuotes(snapshot.Quotes, logger)
	built, keep := s.buildCurve(ctx, snapshot, blocks, logger)
	if !keep {
		if err := s.persistCurve(ctx, snapshot, built); err != nil {
			logger.Error().Err(err).Msg("failed to persist curve snapshot")
		}
	}

	history, err := s.loadHistory(ctx, product, snapshot.SpotDate)
	if err != nil {
		logger.Warn().Err(err).Msg("price history unavailable, forecasting from spot only")
	}

	forecaster := s.forecasters[product]
	if forecaster == nil {
		return fmt.Errorf("no forecaster configured for product %q", product)
	}
	result := forecaster.Forecast(snapshot.SpotPrice, snapshot.SpotDate, blocks, history, s.cfg.Forecast.HorizonDays)

	rows := s.forecastRows(product, snapshot.SpotDate, result)
	if len(rows) > 0 {
		if err := s.store.InsertForecasts(ctx, rows); err != nil {
			return fmt.Errorf("persist forecasts: %w", err)
		}
	}

	logger.Info().
		Time("snapshot_date", snapshot.SpotDate).
		Float64("spot", snapshot.SpotPrice).
		Int("contracts", len(blocks)).
		Int("forecast_rows", len(rows)).
		Bool("kept_prior_curve", keep).
		Msg("product pipeline complete")
	return nil
}

// buildCurve builds the forward curve and decides whether to keep the
// previously stored snapshot instead. keep is true when the scrape was
// empty, the build failed, or the curve degenerated to a flat line.
func (s *Service) buildCurve(ctx context.Context, snapshot fetcher.MarketSnapshot, blocks []curve.ContractBlock, logger zerolog.Logger) (timeseries.Series, bool) {
	if len(blocks) == 0 {
		logger.Warn().Msg("no usable contract quotes, keeping prior curve")
		s.alert(ctx, alerting.Notification{
			Event:    alerting.EventDataQuality,
			Product:  snapshot.Product,
			Occurred: snapshot.SpotDate,
			Summary:  "scrape returned no usable contract quotes",
		})
		return timeseries.Series{}, true
	}

	builder := s.builders[snapshot.Product]
	if builder == nil {
		logger.Error().Msg("no curve builder configured, keeping prior curve")
		return timeseries.Series{}, true
	}

	built, err := builder.Build(snapshot.SpotDate, snapshot.SpotPrice, blocks)
	if err != nil {
		logger.Error().Err(err).Msg("curve build failed, keeping prior curve")
		s.alert(ctx, alerting.Notification{
			Event:    alerting.EventCurveBuildFailed,
			Product:  snapshot.Product,
			Occurred: snapshot.SpotDate,
			Summary:  "forward curve build failed",
			Detail:   err.Error(),
		})
		return timeseries.Series{}, true
	}

	if curve.IsDegenerateFlat(built) {
		logger.Warn().Msg("curve is degenerate flat, keeping prior curve")
		s.alert(ctx, alerting.Notification{
			Event:    alerting.EventDegenerateCurve,
			Product:  snapshot.Product,
			Occurred: snapshot.SpotDate,
			Summary:  "built curve is flat across the horizon",
		})
		return built, true
	}

	return built, false
}

func (s *Service) persistCurve(ctx context.Context, snapshot fetcher.MarketSnapshot, built timeseries.Series) error {
	if built.IsEmpty() {
		return nil
	}
	dates := built.Dates()
	values := built.Values()
	points := make([]storage.CurvePoint, 0, built.Len())
	for i := range dates {
		points = append(points, storage.CurvePoint{
			SnapshotDate:   snapshot.SpotDate,
			ContractDate:   dates[i],
			Product:        snapshot.Product,
			Price:          decimal.NewFromFloat(values[i]),
			IsInterpolated: i != 0,
		})
	}
	return s.store.ReplaceCurve(ctx, points)
}

func (s *Service) loadHistory(ctx context.Context, product string, asOf time.Time) (timeseries.Series, error) {
	from := asOf.AddDate(-historyYears, 0, 0)
	prices, err := s.store.ListRealizedPrices(ctx, product, from, asOf)
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

// forecastRows snapshots the point forecast at the configured saved
// horizons. Each row starts pending; realization fills the actuals later.
func (s *Service) forecastRows(product string, spotDate time.Time, result ensemble.Result) []storage.ForecastRow {
	rows := make([]storage.ForecastRow, 0, len(s.cfg.Forecast.SavedHorizons))
	for _, horizon := range s.cfg.Forecast.SavedHorizons {
		if horizon <= 0 || horizon > s.cfg.Forecast.HorizonDays {
			continue
		}
		target := spotDate.AddDate(0, 0, horizon)
		predicted, ok := result.Point.At(target)
		if !ok {
			if last, exists := result.Point.Last(); exists {
				predicted = last.Value
			} else {
				continue
			}
		}
		record := accuracy.NewRecord(spotDate, target, product, predicted, modelVersion)
		rows = append(rows, storage.ForecastRow{
			PredictionDate:      record.PredictionDate,
			TargetDate:          record.TargetDate,
			Product:             record.Product,
			PredictedPrice:      decimal.NewFromFloat(record.PredictedPrice),
			ModelVersion:        record.ModelVersion,
			HorizonDays:         record.HorizonDays,
			FuturesWeight:       result.Weights.FuturesCurve,
			StatisticalWeight:   result.Weights.Statistical,
			MeanReversionWeight: result.Weights.MeanReversion,
		})
	}
	return rows
}

// realizePending fills actuals on forecasts whose target date has passed
// and a published price exists. Rows without a price stay pending.
func (s *Service) realizePending(ctx context.Context, product string, asOf time.Time) error {
	pending, err := s.store.ListPendingForecasts(ctx, product, asOf)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	seen := make(map[time.Time]bool, len(pending))
	cutoff := asOf.AddDate(0, 0, -realizeMaxAgeDays)
	realized := 0
	for _, row := range pending {
		if seen[row.TargetDate] || row.TargetDate.Before(cutoff) {
			continue
		}
		seen[row.TargetDate] = true

		prices, err := s.store.ListRealizedPrices(ctx, product, row.TargetDate, row.TargetDate)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			continue
		}
		n, err := s.store.UpdateWithActual(ctx, row.TargetDate, product, prices[0].Price)
		if err != nil {
			return err
		}
		realized += int(n)
	}

	if realized > 0 {
		s.logger.Info().Str("product", product).Int("rows", realized).Msg("realized pending forecasts")
	}
	return nil
}

func (s *Service) alert(ctx context.Context, note alerting.Notification) {
	if !s.cfg.Alerting.Enabled || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("event", string(note.Event)).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
