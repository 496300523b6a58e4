package curve

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pulp-price-forecast/internal/timeseries"
)

// Period tags carried by raw market quotes.
const (
	PeriodMonthly   = "Monthly"
	PeriodQuarterly = "Quarterly"
	PeriodCalendar  = "Calendar"
)

// PeriodQuote is a raw contract quote: a single anchor date plus a period
// tag describing the settlement window it stands for.
type PeriodQuote struct {
	Product    string
	AnchorDate time.Time
	Period     string
	Price      float64
	Ticker     string
}

// BlocksFromPeriodQuotes converts period-tagged quotes into explicit
// ContractBlock date ranges: Monthly covers the anchor month, Quarterly
// the 3-month quarter containing the anchor, Calendar the anchor year.
// An unrecognised tag is treated as Monthly with a warning. Quotes with a
// non-positive price are skipped. The result is sorted by start date.
func BlocksFromPeriodQuotes(quotes []PeriodQuote, logger zerolog.Logger) []ContractBlock {
	blocks := make([]ContractBlock, 0, len(quotes))
	for _, q := range quotes {
		if q.Price <= 0 {
			logger.Warn().Str("ticker", q.Ticker).Float64("price", q.Price).Msg("skipping invalid quote")
			continue
		}

		anchor := timeseries.Day(q.AnchorDate)
		var start, end time.Time
		switch strings.TrimSpace(q.Period) {
		case PeriodMonthly:
			start, end = monthSpan(anchor.Year(), anchor.Month())
		case PeriodQuarterly:
			quarter := (int(anchor.Month()) - 1) / 3
			startMonth := time.Month(quarter*3 + 1)
			start = time.Date(anchor.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)
			_, end = monthSpan(anchor.Year(), startMonth+2)
		case PeriodCalendar:
			start = time.Date(anchor.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
			end = time.Date(anchor.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		default:
			logger.Warn().Str("period", q.Period).Str("ticker", q.Ticker).Msg("unknown period type, treating as Monthly")
			start, end = monthSpan(anchor.Year(), anchor.Month())
		}

		blocks = append(blocks, ContractBlock{Start: start, End: end, Price: q.Price})
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })

	logger.Info().Int("blocks", len(blocks)).Int("quotes", len(quotes)).Msg("contract blocks created from quotes")
	return blocks
}

// monthSpan returns the first and last day of a month.
func monthSpan(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}
