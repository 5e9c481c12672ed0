package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mandi-advisor/internal/app"
	"mandi-advisor/internal/config"
	"mandi-advisor/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:          "mandi-advisor",
	Short:        "Track mandi commodity prices and advise when to sell",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		// keep tables on stdout readable
		if cmd.Name() != serveCmd.Name() {
			cfg.Logging.Stderr = true
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

// seriesFlags binds the state/district/commodity triple shared by several commands.
type seriesFlags struct {
	state     string
	district  string
	commodity string
}

func (f *seriesFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.state, "state", "", "State name, e.g. Maharashtra")
	cmd.Flags().StringVar(&f.district, "district", "", "District name, e.g. Nashik")
	cmd.Flags().StringVar(&f.commodity, "commodity", "", "Commodity name, e.g. Onion")
}

func (f *seriesFlags) require(cmd *cobra.Command) {
	for _, name := range []string{"state", "district", "commodity"} {
		_ = cmd.MarkFlagRequired(name)
	}
}
