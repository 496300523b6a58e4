package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pulp-price-forecast/internal/config"
	"pulp-price-forecast/internal/curve"
	"pulp-price-forecast/internal/fetcher"
	"pulp-price-forecast/internal/storage"
)

// memoryStore is a mutex-guarded fake; the pipeline hits it from one
// goroutine per product.
type memoryStore struct {
	mu        sync.Mutex
	curves    map[string][]storage.CurvePoint
	forecasts []storage.ForecastRow
	realized  map[string][]storage.RealizedPrice
	updates   []time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		curves:   make(map[string][]storage.CurvePoint),
		realized: make(map[string][]storage.RealizedPrice),
	}
}

func curveKey(snapshotDate time.Time, product string) string {
	return snapshotDate.Format("2006-01-02") + "/" + product
}

func (m *memoryStore) ReplaceCurve(_ context.Context, points []storage.CurvePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(points) == 0 {
		return nil
	}
	m.curves[curveKey(points[0].SnapshotDate, points[0].Product)] = points
	return nil
}

func (m *memoryStore) GetCurve(_ context.Context, snapshotDate time.Time, product string) ([]storage.CurvePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curves[curveKey(snapshotDate, product)], nil
}

func (m *memoryStore) GetLatestCurve(_ context.Context, product string) ([]storage.CurvePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest []storage.CurvePoint
	for _, points := range m.curves {
		if len(points) == 0 || points[0].Product != product {
			continue
		}
		if latest == nil || points[0].SnapshotDate.After(latest[0].SnapshotDate) {
			latest = points
		}
	}
	return latest, nil
}

func (m *memoryStore) ListSnapshotDates(_ context.Context, product string, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates := make([]time.Time, 0)
	for _, points := range m.curves {
		if len(points) == 0 || points[0].Product != product {
			continue
		}
		d := points[0].SnapshotDate
		if !d.Before(from) && !d.After(to) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}

func (m *memoryStore) InsertForecasts(_ context.Context, rows []storage.ForecastRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts = append(m.forecasts, rows...)
	return nil
}

func (m *memoryStore) UpdateWithActual(_ context.Context, targetDate time.Time, product string, actual decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, targetDate)
	var n int64
	for i := range m.forecasts {
		row := &m.forecasts[i]
		if row.Product != product || !row.TargetDate.Equal(targetDate) || row.ActualPrice != nil {
			continue
		}
		row.ActualPrice = &actual
		n++
	}
	return n, nil
}

func (m *memoryStore) ListPendingForecasts(_ context.Context, product string, asOf time.Time) ([]storage.ForecastRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := make([]storage.ForecastRow, 0)
	for _, row := range m.forecasts {
		if row.Product == product && row.ActualPrice == nil && !row.TargetDate.After(asOf) {
			pending = append(pending, row)
		}
	}
	return pending, nil
}

func (m *memoryStore) ListRealizedForecasts(_ context.Context, product string) ([]storage.ForecastRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	realized := make([]storage.ForecastRow, 0)
	for _, row := range m.forecasts {
		if row.Product == product && row.ActualPrice != nil {
			realized = append(realized, row)
		}
	}
	return realized, nil
}

func (m *memoryStore) UpsertRealizedPrice(_ context.Context, price storage.RealizedPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realized[price.Product] = append(m.realized[price.Product], price)
	return nil
}

func (m *memoryStore) ListRealizedPrices(_ context.Context, product string, from, to time.Time) ([]storage.RealizedPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prices := make([]storage.RealizedPrice, 0)
	for _, p := range m.realized[product] {
		if !p.PriceDate.Before(from) && !p.PriceDate.After(to) {
			prices = append(prices, p)
		}
	}
	return prices, nil
}

func (m *memoryStore) LatestRealizedPrice(_ context.Context, product string) (*storage.RealizedPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *storage.RealizedPrice
	for i := range m.realized[product] {
		p := m.realized[product][i]
		if latest == nil || p.PriceDate.After(latest.PriceDate) {
			latest = &p
		}
	}
	return latest, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: 24 * time.Hour},
		Curve:     config.CurveConfig{Strategy: config.CurveStrategySmoothness},
		Forecast: config.ForecastConfig{
			HorizonDays:       90,
			SavedHorizons:     []int{30, 60},
			AdaptWeights:      true,
			FuturesWeight:     0.5,
			StatisticalWeight: 0.3,
			ReversionWeight:   0.2,
		},
		Products: map[string]config.ProductConfig{
			"NBSK": {MinPrice: 500, MaxPrice: 1200, MaxDailyChange: 50, LongTermMean: 1100, HalfLifeDays: 180},
		},
	}
}

func testSnapshot() fetcher.MarketSnapshot {
	spotDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return fetcher.MarketSnapshot{
		Product:   "NBSK",
		SpotDate:  spotDate,
		SpotPrice: 1000,
		Quotes: []curve.PeriodQuote{
			{Product: "NBSK", AnchorDate: spotDate, Period: curve.PeriodMonthly, Price: 1000, Ticker: "NBSKP JAN6"},
			{Product: "NBSK", AnchorDate: spotDate.AddDate(0, 1, 0), Period: curve.PeriodMonthly, Price: 1050, Ticker: "NBSKP FEB6"},
			{Product: "NBSK", AnchorDate: spotDate.AddDate(0, 2, 0), Period: curve.PeriodMonthly, Price: 1100, Ticker: "NBSKP MAR6"},
		},
	}
}

func TestProcessProductPersistsCurveAndForecasts(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	static := fetcher.NewStatic(map[string]fetcher.MarketSnapshot{"NBSK": testSnapshot()})

	svc := New(cfg, nil, static, store, nil, zerolog.Nop())
	bucket := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := svc.processProduct(context.Background(), bucket, "NBSK"); err != nil {
		t.Fatalf("pipeline should succeed: %v", err)
	}

	points, _ := store.GetLatestCurve(context.Background(), "NBSK")
	if len(points) == 0 {
		t.Fatal("curve snapshot should be persisted")
	}
	if !points[0].Price.Sub(decimal.NewFromInt(1000)).Abs().LessThan(decimal.NewFromFloat(0.01)) {
		t.Fatalf("first curve point should equal spot, got %s", points[0].Price)
	}
	if points[0].IsInterpolated {
		t.Fatal("spot point should not be flagged interpolated")
	}

	if len(store.forecasts) != 2 {
		t.Fatalf("expected 2 forecast rows (30d, 60d), got %d", len(store.forecasts))
	}
	for _, row := range store.forecasts {
		if row.ActualPrice != nil {
			t.Fatal("fresh forecast rows must be pending")
		}
		if row.ModelVersion != modelVersion {
			t.Fatalf("unexpected model version %q", row.ModelVersion)
		}
	}

	if len(store.realized["NBSK"]) != 1 {
		t.Fatalf("spot price should be recorded, got %d rows", len(store.realized["NBSK"]))
	}
}

func TestProcessProductKeepsPriorCurveOnEmptyScrape(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()

	snapshot := testSnapshot()
	snapshot.Quotes = nil
	static := fetcher.NewStatic(map[string]fetcher.MarketSnapshot{"NBSK": snapshot})

	svc := New(cfg, nil, static, store, nil, zerolog.Nop())

	if err := svc.processProduct(context.Background(), snapshot.SpotDate, "NBSK"); err != nil {
		t.Fatalf("empty scrape should not fail the pipeline: %v", err)
	}
	if len(store.curves) != 0 {
		t.Fatal("no curve snapshot should be written for an empty scrape")
	}
	if len(store.forecasts) == 0 {
		t.Fatal("forecast rows should still be written from fallback components")
	}
}

func TestRealizePendingFillsActuals(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	static := fetcher.NewStatic(map[string]fetcher.MarketSnapshot{"NBSK": testSnapshot()})
	svc := New(cfg, nil, static, store, nil, zerolog.Nop())

	target := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	store.forecasts = append(store.forecasts, storage.ForecastRow{
		PredictionDate: target.AddDate(0, 0, -30),
		TargetDate:     target,
		Product:        "NBSK",
		PredictedPrice: decimal.NewFromInt(1050),
		HorizonDays:    30,
	})
	store.realized["NBSK"] = append(store.realized["NBSK"], storage.RealizedPrice{
		PriceDate: target,
		Product:   "NBSK",
		Price:     decimal.NewFromInt(1040),
		Source:    "index",
	})

	if err := svc.realizePending(context.Background(), "NBSK", target.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("realize should succeed: %v", err)
	}
	if store.forecasts[0].ActualPrice == nil {
		t.Fatal("pending row should be realized")
	}
	if !store.forecasts[0].ActualPrice.Equal(decimal.NewFromInt(1040)) {
		t.Fatalf("wrong actual: %s", store.forecasts[0].ActualPrice)
	}
}

func TestProcessBucketRunsAllProducts(t *testing.T) {
	store := newMemoryStore()
	cfg := testConfig()
	cfg.Products["BEK"] = config.ProductConfig{MinPrice: 400, MaxPrice: 1000, MaxDailyChange: 50, LongTermMean: 900, HalfLifeDays: 180}

	bek := testSnapshot()
	bek.Product = "BEK"
	bek.SpotPrice = 880
	for i := range bek.Quotes {
		bek.Quotes[i].Product = "BEK"
		bek.Quotes[i].Price -= 150
	}
	static := fetcher.NewStatic(map[string]fetcher.MarketSnapshot{
		"NBSK": testSnapshot(),
		"BEK":  bek,
	})

	svc := New(cfg, nil, static, store, nil, zerolog.Nop())
	bucket := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("both products should succeed: %v", err)
	}
	if len(store.realized["NBSK"]) == 0 || len(store.realized["BEK"]) == 0 {
		t.Fatal("both products should record spot prices")
	}
}
