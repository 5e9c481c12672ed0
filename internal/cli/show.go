package cli

import (
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
)

var (
	showSeries seriesFlags
	showDays   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the stored price history of a series",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			State:     showSeries.state,
			District:  showSeries.district,
			Commodity: showSeries.commodity,
			Days:      showDays,
		})
	},
}

func init() {
	showSeries.bind(showCmd)
	showSeries.require(showCmd)
	showCmd.Flags().IntVar(&showDays, "days", 0, "Number of days to display (defaults to history.default_days)")
}
