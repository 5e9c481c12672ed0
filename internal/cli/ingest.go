package cli

import (
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
	"mandi-advisor/internal/fetcher"
)

var ingestSeries seriesFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch today's prices from the government feed and record them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context(), app.IngestOptions{Query: fetcher.Query{
			State:     ingestSeries.state,
			District:  ingestSeries.district,
			Commodity: ingestSeries.commodity,
		}})
	},
}

func init() {
	ingestSeries.bind(ingestCmd)
	_ = ingestCmd.MarkFlagRequired("state")
}
