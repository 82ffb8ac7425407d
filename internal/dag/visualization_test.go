package dag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/energy-etl/internal/runstate"
)

func sampleGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := Build([]TaskDefinition{
		{ID: "stage", Kind: KindStage},
		{ID: "check", Kind: KindQualityCheck, Upstream: []string{"stage"}},
		{ID: "fact", Kind: KindLoadFact, Upstream: []string{"check"}},
	})
	require.NoError(t, err)
	return g
}

func sampleRun(g *Graph) *runstate.RunInstance {
	start := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	run := runstate.NewRunInstance("euro_energy", "2024-01-01T05:00:00Z", g.Kinds(), start)
	run.Tasks["stage"].Status = runstate.StatusSucceeded
	run.Tasks["stage"].Attempts = 1
	run.Tasks["stage"].StartedAt = &start
	run.Tasks["stage"].FinishedAt = &end
	run.Tasks["check"].Status = runstate.StatusFailed
	run.Tasks["check"].Attempts = 1
	run.Tasks["check"].LastError = &runstate.ErrorInfo{Kind: "QUALITY_ASSERTION_FAILED", Message: "1 of 2 data quality checks failed"}
	run.Tasks["fact"].Status = runstate.StatusUpstreamFailed
	return run
}

func TestVisualization_GraphInfo(t *testing.T) {
	g := sampleGraph(t)
	info := NewVisualization(g, sampleRun(g)).GenerateGraphInfo()

	require.Len(t, info.Nodes, 3)
	assert.Equal(t, "stage", info.Nodes[0].ID)
	assert.Equal(t, "2s", info.Nodes[0].Duration)
	assert.Equal(t, []EdgeInfo{{From: "stage", To: "check"}, {From: "check", To: "fact"}}, info.Edges)
	assert.Equal(t, 1, info.Stats.Succeeded)
	assert.Equal(t, 1, info.Stats.Failed)
	assert.Equal(t, 1, info.Stats.UpstreamFailed)
	assert.Equal(t, "2s", info.Stats.TotalDuration)
}

func TestVisualization_BareGraphIsPending(t *testing.T) {
	info := NewVisualization(sampleGraph(t), nil).GenerateGraphInfo()
	assert.Equal(t, 3, info.Stats.Pending)
	for _, n := range info.Nodes {
		assert.Equal(t, runstate.StatusPending, n.Status)
	}
}

func TestVisualization_DOT(t *testing.T) {
	g := sampleGraph(t)
	dot := NewVisualization(g, sampleRun(g)).GenerateDOTGraph()

	assert.True(t, strings.HasPrefix(dot, "digraph PipelineDAG {"))
	assert.Contains(t, dot, `"stage" -> "check";`)
	assert.Contains(t, dot, `"check" -> "fact";`)
	assert.Contains(t, dot, `fillcolor="salmon"`)
	assert.Contains(t, dot, `fillcolor="orange"`)
	assert.Contains(t, dot, "euro_energy run 2024-01-01T05:00:00Z")
}

func TestVisualization_TextSummary(t *testing.T) {
	g := sampleGraph(t)
	summary := NewVisualization(g, sampleRun(g)).GenerateTextSummary()

	assert.Contains(t, summary, "Total Tasks: 3")
	assert.Contains(t, summary, "Failed Tasks (1):")
	assert.Contains(t, summary, "check (quality_check) - Error: 1 of 2 data quality checks failed")
	assert.Contains(t, summary, "Upstream Failed Tasks (1):")
	assert.Less(t, strings.Index(summary, "Failed Tasks"), strings.Index(summary, "Succeeded Tasks"))
}

func TestVisualization_Exports(t *testing.T) {
	g := sampleGraph(t)
	v := NewVisualization(g, sampleRun(g))
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "run.json")
	require.NoError(t, v.ExportToJSON(jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var info GraphInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Len(t, info.Nodes, 3)

	dotPath := filepath.Join(dir, "run.dot")
	require.NoError(t, v.ExportToDOT(dotPath))
	dot, err := os.ReadFile(dotPath)
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph")

	txtPath := filepath.Join(dir, "run.txt")
	require.NoError(t, v.ExportToText(txtPath))
	txt, err := os.ReadFile(txtPath)
	require.NoError(t, err)
	assert.Contains(t, string(txt), "Pipeline: euro_energy")
}

func TestVisualization_ExportByExtension(t *testing.T) {
	g := sampleGraph(t)
	v := NewVisualization(g, sampleRun(g))
	dir := t.TempDir()

	for name, want := range map[string]string{
		"graph.JSON": `"nodes"`,
		"graph.txt":  "Pipeline: euro_energy",
		"graph.gv":   "digraph",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, v.Export(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), want, name)
	}
}
