// Package report renders finished runs for the terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/maxkimambo/energy-etl/internal/progress"
	"github.com/maxkimambo/energy-etl/internal/runstate"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	statusStyles = map[runstate.Status]lipgloss.Style{
		runstate.StatusSucceeded:      cellStyle.Foreground(lipgloss.Color("42")),
		runstate.StatusFailed:         cellStyle.Foreground(lipgloss.Color("196")),
		runstate.StatusUpstreamFailed: cellStyle.Foreground(lipgloss.Color("208")),
		runstate.StatusSkipped:        cellStyle.Foreground(lipgloss.Color("244")),
		runstate.StatusRunning:        cellStyle.Foreground(lipgloss.Color("39")),
	}
)

const statusColumn = 2

// StatusTable renders one row per task of run. Tasks are listed in order;
// tasks of the run missing from order are appended alphabetically.
func StatusTable(run *runstate.RunInstance, order []string) string {
	rows := make([][]string, 0, len(run.Tasks))
	statuses := make([]runstate.Status, 0, len(run.Tasks))
	for _, id := range taskOrder(run, order) {
		state := run.Tasks[id]
		rows = append(rows, []string{
			state.TaskID,
			state.Kind,
			state.Status.String(),
			strconv.Itoa(state.Attempts),
			duration(state),
			errorText(state.LastError),
		})
		statuses = append(statuses, state.Status)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("TASK", "KIND", "STATUS", "ATTEMPTS", "DURATION", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(statuses) {
				if s, ok := statusStyles[statuses[row]]; ok {
					return s
				}
			}
			return cellStyle
		})
	return t.String()
}

// Summary renders the run outcome in a message box
func Summary(run *runstate.RunInstance) string {
	counts := run.Counts()
	skipped := counts[runstate.StatusSkipped] + counts[runstate.StatusUpstreamFailed]

	kind := SuccessMessage
	switch run.Outcome {
	case runstate.OutcomeFailed:
		kind = ErrorMessage
	case runstate.OutcomeAborted, runstate.OutcomeRunning:
		kind = WarningMessage
	}

	box := NewBox(kind, fmt.Sprintf("Run %s of %s %s", run.RunKey, run.Pipeline, run.Outcome))
	box.AddLine(fmt.Sprintf("%d succeeded, %d failed, %d skipped of %d tasks",
		counts[runstate.StatusSucceeded], counts[runstate.StatusFailed], skipped, len(run.Tasks)))
	if run.FinishedAt != nil {
		box.AddLine(fmt.Sprintf("Duration: %s", progress.FormatDuration(run.FinishedAt.Sub(run.StartedAt))))
	}
	box.AddLine(fmt.Sprintf("Execution: %s", run.ExecutionID))

	for _, id := range run.TaskIDs() {
		state := run.Tasks[id]
		if state.Status != runstate.StatusFailed || state.LastError == nil {
			continue
		}
		box.AddBullet(fmt.Sprintf("%s: %s", id, state.LastError.Message))
		for _, f := range state.LastError.Failures {
			box.AddLine("    - " + f)
		}
	}
	return box.Render()
}

func taskOrder(run *runstate.RunInstance, order []string) []string {
	seen := make(map[string]bool, len(run.Tasks))
	ids := make([]string, 0, len(run.Tasks))
	for _, id := range order {
		if _, ok := run.Tasks[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range run.TaskIDs() {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func duration(state *runstate.TaskState) string {
	if state.StartedAt == nil || state.FinishedAt == nil {
		return "-"
	}
	return progress.FormatDuration(state.FinishedAt.Sub(*state.StartedAt))
}

func errorText(info *runstate.ErrorInfo) string {
	if info == nil {
		return ""
	}
	text := fmt.Sprintf("%s: %s", info.Kind, info.Message)
	if len(info.Failures) > 0 {
		text += "\n" + strings.Join(info.Failures, "\n")
	}
	return text
}

// RunList renders one row per stored run in the order given
func RunList(runs []*runstate.RunInstance) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		elapsed := "-"
		if run.FinishedAt != nil {
			elapsed = progress.FormatDuration(run.FinishedAt.Sub(run.StartedAt))
		}
		counts := run.Counts()
		rows = append(rows, []string{
			run.RunKey,
			string(run.Outcome),
			fmt.Sprintf("%d/%d", counts[runstate.StatusSucceeded], len(run.Tasks)),
			elapsed,
			run.ExecutionID,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("RUN KEY", "OUTCOME", "SUCCEEDED", "DURATION", "EXECUTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
