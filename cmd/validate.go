package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/operators"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a pipeline file without running it",
	Long: `Parse the pipeline file, build its task graph and check every task's configuration.

Reports unknown task kinds, missing attributes, duplicate ids, unknown upstream
references and cycles. Nothing is sent to the warehouse.

EXAMPLES:
energy-etl validate --pipeline pipelines/euro_energy.hcl
energy-etl validate --dot graph.dot
energy-etl validate --dot graph.json
energy-etl validate --dot - | dot -Tpng > graph.png
`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("dot", "", "Write the graph to this file (.json, .txt or DOT), - for DOT on stdout")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	g, err := a.Graph()
	if err == nil {
		err = operators.DefaultRegistry().Validate(g)
	}
	if err != nil {
		if etlerrors.IsUserError(err) {
			fmt.Fprint(cmd.ErrOrStderr(), etlerrors.FormatForCLI(err))
		}
		return err
	}

	viz := dag.NewVisualization(g, nil)
	dot, _ := cmd.Flags().GetString("dot")
	switch dot {
	case "":
		fmt.Fprint(cmd.OutOrStdout(), viz.GenerateTextSummary())
	case "-":
		fmt.Fprint(cmd.OutOrStdout(), viz.GenerateDOTGraph())
		return nil
	default:
		if err := viz.Export(dot); err != nil {
			return fmt.Errorf("failed to write %s: %w", dot, err)
		}
	}

	p := a.Pipeline()
	logger.User.Successf("Pipeline %s is valid: %d tasks, %d roots", p.Name, g.Size(), len(g.Roots()))
	return nil
}
