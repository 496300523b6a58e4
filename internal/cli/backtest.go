package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pulp-price-forecast/internal/app"
)

var (
	backtestProduct  string
	backtestFrom     string
	backtestTo       string
	backtestHorizons []int
	backtestTune     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Evaluate stored curve snapshots against realized prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backtestProduct == "" {
			return fmt.Errorf("--product must be provided")
		}
		if backtestFrom == "" || backtestTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse("2006-01-02", backtestFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}
		to, err := time.Parse("2006-01-02", backtestTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}
		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BacktestOptions{
			Product:     backtestProduct,
			From:        from,
			To:          to,
			Horizons:    backtestHorizons,
			TuneWeights: backtestTune,
		}

		return getApp().Backtest(cmd.Context(), opts)
	},
}

func init() {
	backtestCmd.Flags().StringVar(&backtestProduct, "product", "", "Product to evaluate (e.g. NBSK)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "First snapshot date (YYYY-MM-DD, inclusive)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "Last snapshot date (YYYY-MM-DD, inclusive)")
	backtestCmd.Flags().IntSliceVar(&backtestHorizons, "horizons", nil, "Horizons in days (defaults to config saved horizons)")
	backtestCmd.Flags().BoolVar(&backtestTune, "tune-weights", false, "Grid-search ensemble weights against the backtest window")
}
