package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/app"
	"github.com/maxkimambo/energy-etl/internal/engine"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline for one schedule key",
	Long: `Execute every task of the pipeline once for a schedule key.

WHAT THIS COMMAND DOES:
Builds the task graph from the pipeline file and runs it against the warehouse
named by the pipeline's connection credential. Tasks start as soon as all of
their upstream tasks have succeeded; independent tasks run in parallel.

TASK KINDS:
• stage: recreate a staging table and COPY CSV objects into it from S3
• quality_check: run scalar queries and fail when any result differs from its expectation
• load_fact: rebuild the fact table from the staging tables in one transaction
• load_dimension: fully refresh a dimension table in one transaction
• noop: marker tasks that always succeed

FAILURES:
• Transient warehouse errors and timeouts are retried with the pipeline's retry policy
• A failed task marks its direct children upstream_failed and everything below skipped
• Ctrl-C stops dispatching; running tasks finish and the run ends aborted

RUN KEYS:
Without --run-key a scheduled pipeline runs its latest fire time, an
unscheduled one runs the current time. Re-running a key replaces the stored run.

CREDENTIALS:
Credentials are read from ENERGY_ETL_CREDENTIAL_<ID>_ACCESS_KEY, _SECRET_KEY and
_DSN and then from the --credentials YAML file.

EXAMPLES:
# Run the latest scheduled key with a persistent ledger; re-running a stored key asks first
energy-etl run --credentials credentials.yaml --ledger-dir .ledger

# Backfill one day against a test bucket with two tasks at a time
energy-etl run --run-key 2020-05-28T05:00:00Z --bucket energy-etl-test --max-parallel 2

# Expose metrics while running and keep the run graph
energy-etl run --metrics-addr :9102 --dot-out run.dot
`,
	PreRunE: validateRunCmdFlags,
	RunE:    runPipeline,
}

func init() {
	runCmd.Flags().String("credentials", "", "YAML credentials file")
	runCmd.Flags().String("run-key", "", "Schedule key to run (RFC 3339), defaults to the latest fire time")
	runCmd.Flags().String("bucket", "", "Replace the bucket of every stage source")
	runCmd.Flags().Int("max-parallel", 0, "Maximum tasks running at once, overrides the pipeline setting")
	runCmd.Flags().String("dot-out", "", "Write the finished run graph to this file (.json, .txt or DOT)")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	runCmd.Flags().Bool("auto-approve", false, "Replace a stored run of the same key without asking")
}

func validateRunCmdFlags(cmd *cobra.Command, args []string) error {
	_, err := createAppConfig(cmd)
	return err
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	cfg, _ := createAppConfig(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trig, err := a.Trigger()
	if err != nil {
		return err
	}
	stored, err := a.StoredRun(ctx, trig)
	if err != nil {
		return err
	}
	if stored {
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		ok, err := promptForConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), autoApprove,
			fmt.Sprintf("re-run %s of %s", trig.RunKey, trig.Pipeline),
			"the stored run is replaced and every table the pipeline loads is rebuilt")
		if err != nil {
			return err
		}
		if !ok {
			logger.User.Info("Run cancelled")
			return nil
		}
	}

	var registerer prometheus.Registerer
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registerer = reg

		srv := app.NewMetricsServer(cfg.MetricsAddr, reg)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Op.Warnf("Metrics server shutdown: %v", err)
			}
		}()
	}

	client, err := a.OpenWarehouse(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer client.Close()

	result, err := a.Run(ctx, trig, client, registerer)
	if err != nil {
		return err
	}

	stats := client.Stats()
	logger.Op.WithFields(map[string]interface{}{
		"max_open":  stats.MaxOpenConnections,
		"wait":      stats.WaitCount,
		"wait_time": stats.WaitDuration.String(),
	}).Debug("Warehouse pool stats")

	return printResult(cmd, a, result)
}

func printResult(cmd *cobra.Command, a *app.App, result *engine.ExecutionResult) error {
	var order []string
	if g, err := a.Graph(); err == nil {
		order = g.TopologicalOrder()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.StatusTable(result.Run, order))
	fmt.Fprintln(out, report.Summary(result.Run))

	if result.Success {
		return nil
	}
	if result.Error != nil {
		fmt.Fprint(cmd.ErrOrStderr(), etlerrors.FormatForCLI(result.Error))
	}
	return fmt.Errorf("run %s of %s ended %s", result.Run.RunKey, result.Run.Pipeline, result.Run.Outcome)
}
