package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/pipeline"
	"github.com/maxkimambo/energy-etl/internal/report"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect runs stored in the run ledger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCmd.PersistentPreRun(cmd, args)
		if ledgerDir == "" {
			return errors.New("--ledger-dir is required to read stored runs")
		}
		return nil
	},
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored runs of the pipeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		runs, err := a.Ledger().List(cmd.Context(), a.Pipeline().Name)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No runs stored for %s\n", a.Pipeline().Name)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.RunList(runs))
		return nil
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <run-key>",
	Short: "Print the task states of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := pipeline.ParseRunKey(args[0])
		if err != nil {
			return err
		}
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		rec, err := a.Ledger().Load(cmd.Context(), a.Pipeline().Name, pipeline.RunKey(at))
		if err != nil {
			return err
		}

		var order []string
		if g, err := a.Graph(); err == nil {
			order = g.TopologicalOrder()
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, report.StatusTable(rec.Run, order))
		fmt.Fprintln(out, report.Summary(rec.Run))

		history, _ := cmd.Flags().GetBool("history")
		if history {
			for _, tr := range rec.Transitions {
				fmt.Fprintf(out, "%s  %-28s %s -> %s\n", tr.At.UTC().Format("15:04:05.000"), tr.TaskID, tr.From, tr.To)
			}
		}
		return nil
	},
}

func init() {
	ledgerShowCmd.Flags().Bool("history", false, "Also print every recorded state transition")
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
}
