package curve

import (
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/timeseries"
)

// ErrNoConvergence reports that the curve optimization failed to satisfy
// its constraints within the iteration and tolerance budget. Callers must
// treat this as a hard failure; no partial curve is returned alongside it.
var ErrNoConvergence = errors.New("curve: optimization did not converge")

// maxHorizonDays caps the curve length from the spot date. Contracts whose
// range extends past the cap lose their constraint past that point.
const maxHorizonDays = 400

// flatEpsilon is the max-minus-min below which a multi-day curve is
// considered degenerately flat.
const flatEpsilon = 0.01

// ContractBlock describes a settlement period traded at a flat price: the
// average daily price over [Start, End] (inclusive) equals Price.
type ContractBlock struct {
	Start time.Time
	End   time.Time
	Price float64
}

// Bounds defines the admissible price envelope and a soft daily-move
// threshold. Configured per product; a build-time parameter, not a
// constant.
type Bounds struct {
	MinPrice       float64
	MaxPrice       float64
	MaxDailyChange float64
}

// DefaultBounds matches the NBSK spot-futures regime.
func DefaultBounds() Bounds {
	return Bounds{MinPrice: 500, MaxPrice: 1200, MaxDailyChange: 50}
}

// Builder produces a daily forward curve from a spot anchor and contract
// blocks. Implementations share input policy: contracts are sorted,
// malformed or out-of-range ones dropped with a warning, the horizon
// capped at 400 days, and an empty contract list yields an empty curve.
type Builder interface {
	Build(spotDate time.Time, spotPrice float64, contracts []ContractBlock) (timeseries.Series, error)
}

// IsDegenerateFlat reports whether a curve spanning more than one day has
// collapsed to a single price. Scheduled refreshes should prefer keeping a
// prior curve over persisting such a result.
func IsDegenerateFlat(c timeseries.Series) bool {
	if c.Len() <= 1 {
		return false
	}
	values := c.Values()
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo < flatEpsilon
}

// block is a contract projected onto day indices relative to the spot date.
type block struct {
	startIdx int
	endIdx   int
	price    float64
	src      ContractBlock
}

// prepare validates and projects contracts onto the capped day axis.
// Returns the retained blocks sorted by start date and the total day count
// (zero when nothing is retained).
func prepare(spotDate time.Time, spotPrice float64, bounds Bounds, contracts []ContractBlock, logger zerolog.Logger) ([]block, int) {
	if len(contracts) == 0 {
		logger.Warn().Msg("no contracts provided to curve builder")
		return nil, 0
	}

	if spotPrice < bounds.MinPrice || spotPrice > bounds.MaxPrice {
		logger.Warn().
			Float64("spot_price", spotPrice).
			Float64("min", bounds.MinPrice).
			Float64("max", bounds.MaxPrice).
			Msg("spot price outside expected range; check data source configuration")
	}

	spot := timeseries.Day(spotDate)
	maxEnd := spot
	valid := make([]ContractBlock, 0, len(contracts))
	for _, c := range contracts {
		start, end := timeseries.Day(c.Start), timeseries.Day(c.End)
		if c.Price <= 0 || end.Before(start) {
			logger.Warn().
				Time("start", start).Time("end", end).Float64("price", c.Price).
				Msg("rejecting malformed contract")
			continue
		}
		if c.Price < bounds.MinPrice || c.Price > bounds.MaxPrice {
			logger.Warn().
				Float64("price", c.Price).Time("start", start).Time("end", end).
				Msg("contract price outside expected range")
		}
		valid = append(valid, ContractBlock{Start: start, End: end, Price: c.Price})
		if end.After(maxEnd) {
			maxEnd = end
		}
	}
	if len(valid) == 0 {
		return nil, 0
	}

	horizonCap := spot.AddDate(0, 0, maxHorizonDays)
	if maxEnd.After(horizonCap) {
		logger.Info().Time("from", maxEnd).Time("to", horizonCap).Msg("capping curve horizon at 400 days")
		maxEnd = horizonCap
	}
	days := daysBetween(spot, maxEnd) + 1

	blocks := make([]block, 0, len(valid))
	for _, c := range valid {
		startIdx := daysBetween(spot, c.Start)
		endIdx := daysBetween(spot, c.End)
		if endIdx < 0 || startIdx >= days {
			logger.Warn().Time("start", c.Start).Time("end", c.End).Msg("contract entirely out of range, skipping")
			continue
		}
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > days-1 {
			endIdx = days - 1
		}
		blocks = append(blocks, block{startIdx: startIdx, endIdx: endIdx, price: c.Price, src: c})
	}
	if len(blocks) == 0 {
		return nil, 0
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].startIdx < blocks[j].startIdx })
	return blocks, days
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// checkDailyMoves logs a data-quality warning when the built curve moves
// faster day-over-day than the configured threshold. Never fails the build.
func checkDailyMoves(c timeseries.Series, bounds Bounds, logger zerolog.Logger) {
	values := c.Values()
	maxChange := 0.0
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change < 0 {
			change = -change
		}
		if change > maxChange {
			maxChange = change
		}
	}
	if bounds.MaxDailyChange > 0 && maxChange > bounds.MaxDailyChange {
		logger.Warn().
			Float64("max_daily_change", maxChange).
			Float64("threshold", bounds.MaxDailyChange).
			Msg("curve has large daily changes; this may indicate data issues")
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
