package cli

import (
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
)

var (
	exportSeries    seriesFlags
	exportDays      int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a price series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			State:     exportSeries.state,
			District:  exportSeries.district,
			Commodity: exportSeries.commodity,
			Days:      exportDays,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportSeries.bind(exportCmd)
	exportSeries.require(exportCmd)
	exportCmd.Flags().IntVar(&exportDays, "days", 0, "History window in days (defaults to history.default_days)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
