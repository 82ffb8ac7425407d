package report

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/energy-etl/internal/runstate"
)

func sampleRun() *runstate.RunInstance {
	start := time.Date(2020, 5, 27, 5, 0, 0, 0, time.UTC)
	run := runstate.NewRunInstance("euro_energy", "2020-05-27T05:00:00Z", map[string]string{
		"stage_a":   "stage",
		"gate":      "quality_check",
		"load_fact": "load_fact",
	}, start)

	end := start.Add(90 * time.Second)
	run.Tasks["stage_a"].Status = runstate.StatusSucceeded
	run.Tasks["stage_a"].Attempts = 2
	run.Tasks["stage_a"].StartedAt = &start
	run.Tasks["stage_a"].FinishedAt = &end

	run.Tasks["gate"].Status = runstate.StatusFailed
	run.Tasks["gate"].Attempts = 1
	run.Tasks["gate"].LastError = &runstate.ErrorInfo{
		Kind:     "QUALITY_ASSERTION_FAILED",
		Message:  "1 of 2 data quality checks failed",
		Failures: []string{"staging_b rows: query returned 2, expected 5"},
	}

	run.Tasks["load_fact"].Status = runstate.StatusUpstreamFailed
	run.Tasks["load_fact"].LastError = &runstate.ErrorInfo{Kind: "UPSTREAM_FAILED", Message: "upstream task 'gate' failed", Upstream: "gate"}

	run.Outcome = runstate.OutcomeFailed
	run.FinishedAt = &end
	return run
}

func TestStatusTable(t *testing.T) {
	out := StatusTable(sampleRun(), []string{"stage_a", "gate"})

	for _, want := range []string{"TASK", "ATTEMPTS", "stage_a", "1m30s", "upstream_failed", "staging_b rows: query returned 2, expected 5"} {
		assert.Contains(t, out, want)
	}
	stage := strings.Index(out, "stage_a")
	gate := strings.Index(out, "gate")
	load := strings.Index(out, "load_fact")
	require.True(t, stage >= 0 && gate >= 0 && load >= 0)
	assert.Less(t, stage, gate)
	assert.Less(t, gate, load, "tasks missing from order are appended")
}

func TestSummary(t *testing.T) {
	out := Summary(sampleRun())

	assert.Contains(t, out, "Run 2020-05-27T05:00:00Z of euro_energy failed")
	assert.Contains(t, out, "1 succeeded, 1 failed, 1 skipped of 3 tasks")
	assert.Contains(t, out, "gate: 1 of 2 data quality checks failed")
	assert.Contains(t, out, "staging_b rows")
	assert.Contains(t, out, tones[ErrorMessage].marker)
}

func TestBox_WrapsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 30)
	out := NewBox(InfoMessage, "Title").WithWidth(40).AddLine(long).Render()

	lines := strings.Split(out, "\n")
	assert.Greater(t, len(lines), 4)
	assert.Contains(t, lines[0], lipgloss.RoundedBorder().TopLeft)
	assert.Contains(t, lines[1], tones[InfoMessage].marker)
	assert.Contains(t, lines[1], "Title")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"aa bb", "cc"}, wrapText("aa bb cc", 5))
	assert.Equal(t, []string{""}, wrapText("   ", 5))
}

func TestRunList(t *testing.T) {
	finished := sampleRun()
	open := runstate.NewRunInstance("euro_energy", "2020-05-28T05:00:00Z", map[string]string{"stage_a": "stage"}, time.Now())

	out := RunList([]*runstate.RunInstance{finished, open})
	assert.Contains(t, out, "RUN KEY")
	assert.Contains(t, out, "2020-05-27T05:00:00Z")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "running")
	assert.Less(t, strings.Index(out, "2020-05-27"), strings.Index(out, "2020-05-28"))
}
