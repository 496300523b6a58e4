package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	deleteCurveSQL = `DELETE FROM market_snapshots
    WHERE snapshot_date = $1
      AND product = $2;`

	insertCurvePointSQL = `INSERT INTO market_snapshots (
        snapshot_date,
        contract_date,
        product,
        price,
        is_interpolated,
        source_ticker
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (snapshot_date, contract_date, product) DO UPDATE
    SET price           = EXCLUDED.price,
        is_interpolated = EXCLUDED.is_interpolated,
        source_ticker   = EXCLUDED.source_ticker;`

	getCurveSQL = `SELECT
        snapshot_date,
        contract_date,
        product,
        price,
        is_interpolated,
        source_ticker,
        created_at
    FROM market_snapshots
    WHERE snapshot_date = $1
      AND product = $2
    ORDER BY contract_date;`

	latestSnapshotDateSQL = `SELECT MAX(snapshot_date)
    FROM market_snapshots
    WHERE product = $1;`

	listSnapshotDatesSQL = `SELECT DISTINCT snapshot_date
    FROM market_snapshots
    WHERE product = $1
      AND snapshot_date >= $2
      AND snapshot_date <= $3
    ORDER BY snapshot_date;`

	insertForecastSQL = `INSERT INTO forecast_accuracy (
        prediction_date,
        target_date,
        product,
        predicted_price,
        model_version,
        horizon_days,
        futures_weight,
        statistical_weight,
        mean_reversion_weight
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	updateForecastActualSQL = `UPDATE forecast_accuracy
    SET actual_price = $3,
        error        = predicted_price - $3,
        error_pct    = (predicted_price - $3) / $3 * 100
    WHERE target_date = $1
      AND product = $2
      AND actual_price IS NULL;`

	pendingForecastsSQL = `SELECT
        id,
        prediction_date,
        target_date,
        product,
        predicted_price,
        actual_price,
        error,
        error_pct,
        model_version,
        horizon_days,
        futures_weight,
        statistical_weight,
        mean_reversion_weight,
        created_at
    FROM forecast_accuracy
    WHERE product = $1
      AND actual_price IS NULL
      AND target_date <= $2
    ORDER BY target_date;`

	realizedForecastsSQL = `SELECT
        id,
        prediction_date,
        target_date,
        product,
        predicted_price,
        actual_price,
        error,
        error_pct,
        model_version,
        horizon_days,
        futures_weight,
        statistical_weight,
        mean_reversion_weight,
        created_at
    FROM forecast_accuracy
    WHERE product = $1
      AND actual_price IS NOT NULL
    ORDER BY prediction_date;`

	upsertRealizedPriceSQL = `INSERT INTO realized_prices (
        price_date,
        product,
        price,
        source
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (price_date, product) DO UPDATE
    SET price  = EXCLUDED.price,
        source = EXCLUDED.source;`

	listRealizedPricesSQL = `SELECT
        price_date,
        product,
        price,
        source,
        created_at
    FROM realized_prices
    WHERE product = $1
      AND price_date >= $2
      AND price_date <= $3
    ORDER BY price_date;`

	latestRealizedPriceSQL = `SELECT
        price_date,
        product,
        price,
        source,
        created_at
    FROM realized_prices
    WHERE product = $1
    ORDER BY price_date DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CurveStore defines operations for forward-curve snapshot persistence.
type CurveStore interface {
	ReplaceCurve(ctx context.Context, points []CurvePoint) error
	GetCurve(ctx context.Context, snapshotDate time.Time, product string) ([]CurvePoint, error)
	GetLatestCurve(ctx context.Context, product string) ([]CurvePoint, error)
	ListSnapshotDates(ctx context.Context, product string, from, to time.Time) ([]time.Time, error)
}

// ForecastStore defines operations for accuracy-row persistence.
type ForecastStore interface {
	InsertForecasts(ctx context.Context, rows []ForecastRow) error
	UpdateWithActual(ctx context.Context, targetDate time.Time, product string, actual decimal.Decimal) (int64, error)
	ListPendingForecasts(ctx context.Context, product string, asOf time.Time) ([]ForecastRow, error)
	ListRealizedForecasts(ctx context.Context, product string) ([]ForecastRow, error)
}

// RealizedPriceStore defines operations for published index prices.
type RealizedPriceStore interface {
	UpsertRealizedPrice(ctx context.Context, price RealizedPrice) error
	ListRealizedPrices(ctx context.Context, product string, from, to time.Time) ([]RealizedPrice, error)
	LatestRealizedPrice(ctx context.Context, product string) (*RealizedPrice, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to curves, forecasts, and realized prices.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ReplaceCurve atomically swaps the stored curve for the points' snapshot
// date and product: the old snapshot is deleted and the new points
// inserted in one transaction. All points must share a snapshot date and
// product.
func (s *Store) ReplaceCurve(ctx context.Context, points []CurvePoint) error {
	if len(points) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	snapshotDate := points[0].SnapshotDate
	product := points[0].Product
	for _, p := range points[1:] {
		if !p.SnapshotDate.Equal(snapshotDate) || p.Product != product {
			return fmt.Errorf("replace curve: mixed snapshot keys (%s/%s vs %s/%s)",
				p.SnapshotDate.Format("2006-01-02"), p.Product,
				snapshotDate.Format("2006-01-02"), product)
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace curve: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteCurveSQL, snapshotDate, product); err != nil {
		return fmt.Errorf("delete existing curve: %w", err)
	}
	for _, p := range points {
		var ticker interface{}
		if p.SourceTicker != nil {
			ticker = *p.SourceTicker
		}
		if _, err := tx.Exec(ctx, insertCurvePointSQL,
			p.SnapshotDate,
			p.ContractDate,
			p.Product,
			p.Price.String(),
			p.IsInterpolated,
			ticker,
		); err != nil {
			return fmt.Errorf("insert curve point: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace curve: %w", err)
	}
	return nil
}

// GetCurve returns the stored curve for a snapshot date and product,
// ordered by contract date.
func (s *Store) GetCurve(ctx context.Context, snapshotDate time.Time, product string) ([]CurvePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getCurveSQL, snapshotDate, product)
	if queryErr != nil {
		return nil, fmt.Errorf("get curve: %w", queryErr)
	}
	defer rows.Close()

	return scanCurvePoints(rows)
}

// GetLatestCurve returns the most recent snapshot's curve for a product.
func (s *Store) GetLatestCurve(ctx context.Context, product string) ([]CurvePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var latest sql.NullTime
	if scanErr := pool.QueryRow(ctx, latestSnapshotDateSQL, product).Scan(&latest); scanErr != nil {
		return nil, fmt.Errorf("latest snapshot date: %w", scanErr)
	}
	if !latest.Valid {
		return nil, nil
	}
	return s.GetCurve(ctx, latest.Time, product)
}

// ListSnapshotDates lists distinct snapshot dates within a window.
func (s *Store) ListSnapshotDates(ctx context.Context, product string, from, to time.Time) ([]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotDatesSQL, product, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshot dates: %w", queryErr)
	}
	defer rows.Close()

	dates := make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// InsertForecasts persists a batch of pending accuracy rows.
func (s *Store) InsertForecasts(ctx context.Context, forecastRows []ForecastRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert forecasts: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range forecastRows {
		if _, err := tx.Exec(ctx, insertForecastSQL,
			row.PredictionDate,
			row.TargetDate,
			row.Product,
			row.PredictedPrice.String(),
			row.ModelVersion,
			row.HorizonDays,
			row.FuturesWeight,
			row.StatisticalWeight,
			row.MeanReversionWeight,
		); err != nil {
			return fmt.Errorf("insert forecast row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert forecasts: %w", err)
	}
	return nil
}

// UpdateWithActual fills actual price and derived errors on every pending
// row targeting the given date. Returns the number of rows realized.
// Already-realized rows are never touched; the first write is final.
func (s *Store) UpdateWithActual(ctx context.Context, targetDate time.Time, product string, actual decimal.Decimal) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, updateForecastActualSQL, targetDate, product, actual.String())
	if execErr != nil {
		return 0, fmt.Errorf("update forecast actual: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// ListPendingForecasts returns unrealized rows whose target date has
// passed.
func (s *Store) ListPendingForecasts(ctx context.Context, product string, asOf time.Time) ([]ForecastRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, pendingForecastsSQL, product, asOf)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending forecasts: %w", queryErr)
	}
	defer rows.Close()
	return scanForecastRows(rows)
}

// ListRealizedForecasts returns all realized rows for accuracy summaries.
func (s *Store) ListRealizedForecasts(ctx context.Context, product string) ([]ForecastRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, realizedForecastsSQL, product)
	if queryErr != nil {
		return nil, fmt.Errorf("list realized forecasts: %w", queryErr)
	}
	defer rows.Close()
	return scanForecastRows(rows)
}

// UpsertRealizedPrice stores or refreshes a published index price.
func (s *Store) UpsertRealizedPrice(ctx context.Context, price RealizedPrice) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertRealizedPriceSQL,
		price.PriceDate,
		price.Product,
		price.Price.String(),
		price.Source,
	); execErr != nil {
		return fmt.Errorf("upsert realized price: %w", execErr)
	}
	return nil
}

// ListRealizedPrices lists published prices within a window, ascending.
func (s *Store) ListRealizedPrices(ctx context.Context, product string, from, to time.Time) ([]RealizedPrice, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRealizedPricesSQL, product, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list realized prices: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]RealizedPrice, 0)
	for rows.Next() {
		price, scanErr := scanRealizedPrice(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

// LatestRealizedPrice returns the most recent published price, or nil when
// none exists.
func (s *Store) LatestRealizedPrice(ctx context.Context, product string) (*RealizedPrice, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, latestRealizedPriceSQL, product)
	if queryErr != nil {
		return nil, fmt.Errorf("latest realized price: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	price, scanErr := scanRealizedPrice(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &price, rows.Err()
}

func scanCurvePoints(rows pgx.Rows) ([]CurvePoint, error) {
	points := make([]CurvePoint, 0)
	for rows.Next() {
		var (
			point    CurvePoint
			priceStr string
			ticker   sql.NullString
		)
		if err := rows.Scan(
			&point.SnapshotDate,
			&point.ContractDate,
			&point.Product,
			&priceStr,
			&point.IsInterpolated,
			&ticker,
			&point.CreatedAt,
		); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse curve price: %w", err)
		}
		point.Price = price
		if ticker.Valid {
			v := ticker.String
			point.SourceTicker = &v
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

func scanForecastRows(rows pgx.Rows) ([]ForecastRow, error) {
	out := make([]ForecastRow, 0)
	for rows.Next() {
		var (
			row          ForecastRow
			predictedStr string
			actualStr    sql.NullString
			errStr       sql.NullString
			errPctStr    sql.NullString
		)
		if err := rows.Scan(
			&row.ID,
			&row.PredictionDate,
			&row.TargetDate,
			&row.Product,
			&predictedStr,
			&actualStr,
			&errStr,
			&errPctStr,
			&row.ModelVersion,
			&row.HorizonDays,
			&row.FuturesWeight,
			&row.StatisticalWeight,
			&row.MeanReversionWeight,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}

		predicted, err := decimal.NewFromString(predictedStr)
		if err != nil {
			return nil, fmt.Errorf("parse predicted price: %w", err)
		}
		row.PredictedPrice = predicted

		assign := func(src sql.NullString, dst **decimal.Decimal, label string) error {
			if !src.Valid {
				return nil
			}
			v, convErr := decimal.NewFromString(src.String)
			if convErr != nil {
				return fmt.Errorf("parse %s: %w", label, convErr)
			}
			*dst = &v
			return nil
		}
		if err := assign(actualStr, &row.ActualPrice, "actual price"); err != nil {
			return nil, err
		}
		if err := assign(errStr, &row.Error, "error"); err != nil {
			return nil, err
		}
		if err := assign(errPctStr, &row.ErrorPct, "error pct"); err != nil {
			return nil, err
		}

		out = append(out, row)
	}
	return out, rows.Err()
}

func scanRealizedPrice(rows pgx.Rows) (RealizedPrice, error) {
	var (
		price    RealizedPrice
		priceStr string
	)
	if err := rows.Scan(
		&price.PriceDate,
		&price.Product,
		&priceStr,
		&price.Source,
		&price.CreatedAt,
	); err != nil {
		return RealizedPrice{}, err
	}
	parsed, err := decimal.NewFromString(priceStr)
	if err != nil {
		return RealizedPrice{}, fmt.Errorf("parse realized price: %w", err)
	}
	price.Price = parsed
	return price, nil
}
