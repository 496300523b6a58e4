package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pulp-price-forecast/internal/app"
)

var (
	exportProduct   string
	exportSnapshot  string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a forecast from a stored curve as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportProduct == "" {
			return fmt.Errorf("--product must be provided")
		}

		opts := app.ExportOptions{
			Product:   exportProduct,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportSnapshot != "" {
			snapshot, err := time.Parse("2006-01-02", exportSnapshot)
			if err != nil {
				return fmt.Errorf("invalid --snapshot value: %w", err)
			}
			opts.Snapshot = &snapshot
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportProduct, "product", "", "Product to export (e.g. NBSK)")
	exportCmd.Flags().StringVar(&exportSnapshot, "snapshot", "", "Curve snapshot date (YYYY-MM-DD, defaults to latest)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum chart points (defaults to config)")
}
