package fetcher

import (
	"context"
	"time"

	"pulp-price-forecast/internal/curve"
)

// MarketSnapshot is one product's market state at a point in time: the
// spot price plus the contract quotes trading against it.
type MarketSnapshot struct {
	Product   string
	SpotDate  time.Time
	SpotPrice float64
	Quotes    []curve.PeriodQuote
}

// ContractFetcher retrieves contract quotes for a product.
type ContractFetcher interface {
	FetchContracts(ctx context.Context, product string) (MarketSnapshot, error)
}
