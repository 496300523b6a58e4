package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurvePoint is one persisted day of a forward curve snapshot. Curves are
// keyed by (snapshot_date, product, contract_date): querying on
// snapshot_date recovers what the market looked like on any past day.
type CurvePoint struct {
	SnapshotDate   time.Time
	ContractDate   time.Time
	Product        string
	Price          decimal.Decimal
	IsInterpolated bool
	SourceTicker   *string
	CreatedAt      time.Time
}

// ForecastRow is a persisted prediction awaiting realization. Created with
// the actual fields null; UpdateWithActual fills them exactly once.
type ForecastRow struct {
	ID             int64
	PredictionDate time.Time
	TargetDate     time.Time
	Product        string
	PredictedPrice decimal.Decimal
	ActualPrice    *decimal.Decimal
	Error          *decimal.Decimal
	ErrorPct       *decimal.Decimal
	ModelVersion   string
	HorizonDays    int

	FuturesWeight       float64
	StatisticalWeight   float64
	MeanReversionWeight float64

	CreatedAt time.Time
}

// RealizedPrice is an actual published index price used for accuracy
// validation and model history.
type RealizedPrice struct {
	PriceDate time.Time
	Product   string
	Price     decimal.Decimal
	Source    string
	CreatedAt time.Time
}
