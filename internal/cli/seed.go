package cli

import (
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
	"mandi-advisor/internal/service"
)

var (
	seedSeries seriesFlags
	seedDays   int
	seedBase   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic daily history for a series",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := parsePrice("base-price", seedBase)
		if err != nil {
			return err
		}
		return getApp().Seed(cmd.Context(), app.SeedOptions{SeedRequest: service.SeedRequest{
			State:     seedSeries.state,
			District:  seedSeries.district,
			Commodity: seedSeries.commodity,
			Days:      seedDays,
			BasePrice: base,
		}})
	},
}

func init() {
	seedSeries.bind(seedCmd)
	seedSeries.require(seedCmd)
	seedCmd.Flags().IntVar(&seedDays, "days", 0, "Days of history to generate (defaults to history.default_days)")
	seedCmd.Flags().StringVar(&seedBase, "base-price", "1000", "Base modal price (₹/quintal)")
}
