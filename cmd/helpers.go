package cmd

import (
	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/app"
)

func createAppConfig(cmd *cobra.Command) (*app.Config, error) {
	credentialsFile, _ := cmd.Flags().GetString("credentials")
	runKey, _ := cmd.Flags().GetString("run-key")
	bucket, _ := cmd.Flags().GetString("bucket")
	maxParallel, _ := cmd.Flags().GetInt("max-parallel")
	dotOut, _ := cmd.Flags().GetString("dot-out")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg := &app.Config{
		PipelinePath:    pipelinePath,
		CredentialsFile: credentialsFile,
		LedgerDir:       ledgerDir,
		RunKey:          runKey,
		BucketOverride:  bucket,
		MaxParallel:     maxParallel,
		DotOut:          dotOut,
		MetricsAddr:     metricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := createAppConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}
