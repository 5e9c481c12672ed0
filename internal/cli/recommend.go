package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
	"mandi-advisor/internal/service"
)

var (
	recommendSeries seriesFlags
	recommendMin    string
	recommendMax    string
	recommendModal  string
	recommendJSON   bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Advise SELL or HOLD for a quote against stored history",
	RunE: func(cmd *cobra.Command, args []string) error {
		minPrice, err := parsePrice("min", recommendMin)
		if err != nil {
			return err
		}
		maxPrice, err := parsePrice("max", recommendMax)
		if err != nil {
			return err
		}
		modal, err := parsePrice("modal", recommendModal)
		if err != nil {
			return err
		}

		return getApp().Recommend(cmd.Context(), app.RecommendOptions{
			AdviceRequest: service.AdviceRequest{
				State:      recommendSeries.state,
				District:   recommendSeries.district,
				Commodity:  recommendSeries.commodity,
				MinPrice:   minPrice,
				MaxPrice:   maxPrice,
				ModalPrice: modal,
			},
			JSON: recommendJSON,
		})
	},
}

func init() {
	recommendSeries.bind(recommendCmd)
	recommendSeries.require(recommendCmd)
	recommendCmd.Flags().StringVar(&recommendMin, "min", "", "Minimum price today (₹/quintal)")
	recommendCmd.Flags().StringVar(&recommendMax, "max", "", "Maximum price today (₹/quintal)")
	recommendCmd.Flags().StringVar(&recommendModal, "modal", "", "Modal price today (₹/quintal)")
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "Print the recommendation as JSON")
	for _, name := range []string{"min", "max", "modal"} {
		_ = recommendCmd.MarkFlagRequired(name)
	}
}

func parsePrice(flag, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s value %q: %w", flag, raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s must not be negative", flag)
	}
	return d, nil
}
