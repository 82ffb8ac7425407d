package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/energy-etl/internal/pipeline"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the run keys derived from the pipeline schedule",
	Long: `Print the latest and upcoming run keys of a scheduled pipeline.

Each key is a cron fire time in RFC 3339 UTC. The key before a run is the one
whose task states depends_on_past consults.

EXAMPLES:
energy-etl schedule
energy-etl schedule --count 10 --from 2020-05-27T00:00:00Z
`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().Int("count", 5, "Number of upcoming keys to print")
	scheduleCmd.Flags().String("from", "", "Reference time (RFC 3339), defaults to now")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	p := a.Pipeline()
	if p.Schedule == nil {
		return fmt.Errorf("pipeline %s has no schedule", p.Name)
	}

	count, _ := cmd.Flags().GetInt("count")
	if count < 0 {
		return fmt.Errorf("count cannot be negative, got %d", count)
	}
	from := time.Now().UTC()
	if s, _ := cmd.Flags().GetString("from"); s != "" {
		if from, err = pipeline.ParseRunKey(s); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pipeline %s, schedule %q\n", p.Name, p.Schedule.Expr)
	if latest, ok := p.Schedule.Latest(from); ok {
		runKey, previous := p.Schedule.Keys(latest)
		if previous == "" {
			previous = "none"
		}
		fmt.Fprintf(out, "Latest:   %s (previous %s)\n", runKey, previous)
	} else {
		fmt.Fprintln(out, "Latest:   none")
	}
	for _, t := range p.Schedule.Upcoming(from, count) {
		fmt.Fprintf(out, "Upcoming: %s\n", pipeline.RunKey(t))
	}
	return nil
}
