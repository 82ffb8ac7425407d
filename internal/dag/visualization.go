package dag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxkimambo/energy-etl/internal/runstate"
)

// Visualization renders a graph, optionally overlaid with the task states of a run
type Visualization struct {
	graph *Graph
	run   *runstate.RunInstance
}

// NewVisualization creates a visualization helper. run may be nil to render
// the bare graph.
func NewVisualization(graph *Graph, run *runstate.RunInstance) *Visualization {
	return &Visualization{graph: graph, run: run}
}

// NodeInfo contains information about a task for visualization
type NodeInfo struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Status   runstate.Status `json:"status"`
	Attempts int             `json:"attempts"`
	Duration string          `json:"duration,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// EdgeInfo contains information about an edge for visualization
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphStats contains per-status task counts
type GraphStats struct {
	Total          int    `json:"total"`
	Succeeded      int    `json:"succeeded"`
	Failed         int    `json:"failed"`
	UpstreamFailed int    `json:"upstreamFailed"`
	Skipped        int    `json:"skipped"`
	Running        int    `json:"running"`
	Pending        int    `json:"pending"`
	TotalDuration  string `json:"totalDuration,omitempty"`
}

// GraphInfo contains the full graph structure for visualization
type GraphInfo struct {
	Pipeline string     `json:"pipeline,omitempty"`
	RunKey   string     `json:"runKey,omitempty"`
	Nodes    []NodeInfo `json:"nodes"`
	Edges    []EdgeInfo `json:"edges"`
	Stats    GraphStats `json:"stats"`
}

// GenerateGraphInfo creates the node, edge and stats representation in topological order
func (v *Visualization) GenerateGraphInfo() *GraphInfo {
	info := &GraphInfo{
		Nodes: make([]NodeInfo, 0, v.graph.Size()),
		Edges: []EdgeInfo{},
		Stats: GraphStats{Total: v.graph.Size()},
	}
	if v.run != nil {
		info.Pipeline = v.run.Pipeline
		info.RunKey = v.run.RunKey
	}

	var earliest, latest *time.Time
	for _, id := range v.graph.TopologicalOrder() {
		def, _ := v.graph.Task(id)
		node := NodeInfo{ID: id, Kind: def.Kind, Status: runstate.StatusPending}

		if v.run != nil {
			if ts, ok := v.run.Tasks[id]; ok {
				node.Status = ts.Status
				node.Attempts = ts.Attempts
				if ts.StartedAt != nil && ts.FinishedAt != nil {
					node.Duration = ts.FinishedAt.Sub(*ts.StartedAt).Round(time.Millisecond).String()
				}
				if ts.LastError != nil {
					node.Error = ts.LastError.Message
				}
				if ts.StartedAt != nil && (earliest == nil || ts.StartedAt.Before(*earliest)) {
					earliest = ts.StartedAt
				}
				if ts.FinishedAt != nil && (latest == nil || ts.FinishedAt.After(*latest)) {
					latest = ts.FinishedAt
				}
			}
		}

		switch node.Status {
		case runstate.StatusSucceeded:
			info.Stats.Succeeded++
		case runstate.StatusFailed:
			info.Stats.Failed++
		case runstate.StatusUpstreamFailed:
			info.Stats.UpstreamFailed++
		case runstate.StatusSkipped:
			info.Stats.Skipped++
		case runstate.StatusRunning:
			info.Stats.Running++
		default:
			info.Stats.Pending++
		}
		info.Nodes = append(info.Nodes, node)
	}

	if earliest != nil && latest != nil {
		info.Stats.TotalDuration = latest.Sub(*earliest).Round(time.Millisecond).String()
	}

	for _, e := range v.graph.Edges() {
		info.Edges = append(info.Edges, EdgeInfo{From: e[0], To: e[1]})
	}
	return info
}

// ExportToJSON writes the graph info as JSON
func (v *Visualization) ExportToJSON(filename string) error {
	data, err := json.MarshalIndent(v.GenerateGraphInfo(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

func statusColor(s runstate.Status) string {
	switch s {
	case runstate.StatusRunning:
		return "lightblue"
	case runstate.StatusSucceeded:
		return "lightgreen"
	case runstate.StatusFailed:
		return "salmon"
	case runstate.StatusUpstreamFailed:
		return "orange"
	case runstate.StatusSkipped:
		return "khaki"
	default:
		return "lightgrey"
	}
}

// GenerateDOTGraph creates a DOT format graph for rendering with Graphviz
func (v *Visualization) GenerateDOTGraph() string {
	info := v.GenerateGraphInfo()

	title := "Pipeline DAG"
	if info.Pipeline != "" {
		title = fmt.Sprintf("%s run %s", info.Pipeline, info.RunKey)
	}

	var sb strings.Builder
	sb.WriteString("digraph PipelineDAG {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=filled];\n")
	sb.WriteString(fmt.Sprintf("  label=%q;\n", title))
	sb.WriteString("  labelloc=\"t\";\n\n")

	for _, node := range info.Nodes {
		label := fmt.Sprintf("%s\\n%s", node.ID, node.Kind)
		if v.run != nil {
			label += fmt.Sprintf("\\n%s", node.Status)
			if node.Attempts > 1 {
				label += fmt.Sprintf(" (%d attempts)", node.Attempts)
			}
		}
		if node.Duration != "" {
			label += fmt.Sprintf("\\n%s", node.Duration)
		}
		if node.Error != "" {
			msg := node.Error
			if len(msg) > 50 {
				msg = msg[:47] + "..."
			}
			label += fmt.Sprintf("\\nError: %s", strings.ReplaceAll(msg, "\"", "'"))
		}
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\", fillcolor=\"%s\"];\n",
			node.ID, label, statusColor(node.Status)))
	}

	sb.WriteString("\n")
	for _, edge := range info.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", edge.From, edge.To))
	}
	sb.WriteString("}\n")

	return sb.String()
}

// ExportToDOT writes the DOT graph to filename
func (v *Visualization) ExportToDOT(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateDOTGraph()), 0644)
}

// GenerateTextSummary creates a human-readable summary grouped by status
func (v *Visualization) GenerateTextSummary() string {
	info := v.GenerateGraphInfo()

	var sb strings.Builder
	sb.WriteString("=== Pipeline Execution Summary ===\n\n")
	if info.Pipeline != "" {
		sb.WriteString(fmt.Sprintf("Pipeline: %s\nRun key: %s\n\n", info.Pipeline, info.RunKey))
	}

	sb.WriteString("Overall Statistics:\n")
	sb.WriteString(fmt.Sprintf("  Total Tasks: %d\n", info.Stats.Total))
	sb.WriteString(fmt.Sprintf("  Succeeded: %d\n", info.Stats.Succeeded))
	sb.WriteString(fmt.Sprintf("  Failed: %d\n", info.Stats.Failed))
	sb.WriteString(fmt.Sprintf("  Upstream Failed: %d\n", info.Stats.UpstreamFailed))
	sb.WriteString(fmt.Sprintf("  Skipped: %d\n", info.Stats.Skipped))
	if info.Stats.TotalDuration != "" {
		sb.WriteString(fmt.Sprintf("  Total Duration: %s\n", info.Stats.TotalDuration))
	}
	if info.Stats.Total > 0 {
		progress := float64(info.Stats.Succeeded) / float64(info.Stats.Total) * 100
		sb.WriteString(fmt.Sprintf("  Progress: %.1f%%\n", progress))
	}
	sb.WriteString("\n")

	groups := []struct {
		title  string
		status runstate.Status
	}{
		{"Failed", runstate.StatusFailed},
		{"Upstream Failed", runstate.StatusUpstreamFailed},
		{"Skipped", runstate.StatusSkipped},
		{"Running", runstate.StatusRunning},
		{"Succeeded", runstate.StatusSucceeded},
		{"Pending", runstate.StatusPending},
	}
	for _, group := range groups {
		var nodes []NodeInfo
		for _, n := range info.Nodes {
			if n.Status == group.status {
				nodes = append(nodes, n)
			}
		}
		if len(nodes) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s Tasks (%d):\n", group.title, len(nodes)))
		for _, n := range nodes {
			sb.WriteString(fmt.Sprintf("  - %s (%s)", n.ID, n.Kind))
			if n.Duration != "" {
				sb.WriteString(fmt.Sprintf(" - %s", n.Duration))
			}
			if n.Error != "" {
				sb.WriteString(fmt.Sprintf(" - Error: %s", n.Error))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ExportToText writes the text summary to filename
func (v *Visualization) ExportToText(filename string) error {
	return os.WriteFile(filename, []byte(v.GenerateTextSummary()), 0644)
}

// Export writes to filename in the format named by its extension:
// .json for graph info, .txt for the text summary, DOT otherwise.
func (v *Visualization) Export(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return v.ExportToJSON(filename)
	case ".txt":
		return v.ExportToText(filename)
	default:
		return v.ExportToDOT(filename)
	}
}
