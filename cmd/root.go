package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/app"
	"github.com/maxkimambo/energy-etl/internal/logger"
)

var (
	pipelinePath string
	ledgerDir    string
	debug        bool
	verbose      bool
	jsonLogs     bool
	quiet        bool
	version      = "v0.1.0"

	rootCmd = &cobra.Command{
		Use:   "energy-etl",
		Short: "Run the euro energy warehouse pipeline",
		Long:  `Loads processed energy CSVs from S3 into Redshift staging tables, gates them with data quality checks and builds the energy_loads fact and its dimension tables.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(verbose || debug, jsonLogs, quiet)
			if debug {
				logger.Op.Debug("Debug logging enabled")
			}
		},
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&pipelinePath, "pipeline", "p", app.DefaultPipelinePath, "Pipeline definition file (HCL)")
	rootCmd.PersistentFlags().StringVar(&ledgerDir, "ledger-dir", "", "Directory of the run ledger; run history is kept in memory when empty")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(scheduleCmd)
}
