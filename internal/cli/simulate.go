package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pulp-price-forecast/internal/app"
)

var (
	simulateProduct string
	simulateSpot    float64
	simulateQuotes  []string
	simulateHorizon int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the curve and forecast once from quotes given on the command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateProduct == "" {
			return errors.New("--product must be provided")
		}
		if simulateSpot <= 0 {
			return errors.New("--spot must be greater than 0")
		}

		quotes := make([]app.SimulatedQuote, 0, len(simulateQuotes))
		for _, raw := range simulateQuotes {
			quote, err := parseQuoteFlag(raw)
			if err != nil {
				return err
			}
			quotes = append(quotes, quote)
		}

		opts := app.SimulateOptions{
			Product:     simulateProduct,
			SpotPrice:   simulateSpot,
			Quotes:      quotes,
			HorizonDays: simulateHorizon,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

// parseQuoteFlag parses "PERIOD:ANCHOR:PRICE", e.g. "Monthly:2026-02-01:1090".
func parseQuoteFlag(raw string) (app.SimulatedQuote, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return app.SimulatedQuote{}, fmt.Errorf("invalid --quote %q, expected PERIOD:YYYY-MM-DD:PRICE", raw)
	}

	anchor, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return app.SimulatedQuote{}, fmt.Errorf("invalid anchor date in --quote %q: %w", raw, err)
	}
	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return app.SimulatedQuote{}, fmt.Errorf("invalid price in --quote %q: %w", raw, err)
	}

	return app.SimulatedQuote{
		Period:     parts[0],
		AnchorDate: anchor,
		Price:      price,
	}, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateProduct, "product", "", "Product to simulate (e.g. NBSK)")
	simulateCmd.Flags().Float64Var(&simulateSpot, "spot", 0, "Spot price")
	simulateCmd.Flags().StringArrayVar(&simulateQuotes, "quote", nil, "Contract quote as PERIOD:YYYY-MM-DD:PRICE (repeatable)")
	simulateCmd.Flags().IntVar(&simulateHorizon, "horizon", 0, "Forecast horizon in days (defaults to config)")
}
