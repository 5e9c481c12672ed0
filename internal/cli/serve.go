package cli

import (
	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
)

var (
	serveAddr      string
	serveNoCollect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled price collector",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), app.ServeOptions{
			Addr:           serveAddr,
			DisableCollect: serveNoCollect,
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to http.addr)")
	serveCmd.Flags().BoolVar(&serveNoCollect, "no-collect", false, "Serve the API without the scheduled collector")
}
