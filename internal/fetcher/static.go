package fetcher

import (
	"context"
	"fmt"
)

// Static serves canned snapshots keyed by product. Used by the simulate
// command to exercise the pipeline without a live exchange.
type Static struct {
	snapshots map[string]MarketSnapshot
}

// NewStatic constructs a fetcher over fixed snapshots.
func NewStatic(snapshots map[string]MarketSnapshot) *Static {
	return &Static{snapshots: snapshots}
}

// FetchContracts returns the canned snapshot for a product.
func (s *Static) FetchContracts(_ context.Context, product string) (MarketSnapshot, error) {
	snapshot, ok := s.snapshots[product]
	if !ok {
		return MarketSnapshot{}, fmt.Errorf("no snapshot configured for product %q", product)
	}
	return snapshot, nil
}

var _ ContractFetcher = (*Static)(nil)
