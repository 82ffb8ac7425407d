package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/energy-etl/internal/credentials"
	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/ledger"
	"github.com/maxkimambo/energy-etl/internal/objectstore"
	"github.com/maxkimambo/energy-etl/internal/operators"
	"github.com/maxkimambo/energy-etl/internal/runstate"
	"github.com/maxkimambo/energy-etl/internal/warehouse/warehousetest"
)

func stage(id, table, prefix string) dag.TaskDefinition {
	return dag.TaskDefinition{
		ID:   id,
		Kind: dag.KindStage,
		Config: operators.StageConfig{
			Table:        table,
			CreateSQL:    "CREATE TABLE IF NOT EXISTS " + table + " (event_date VARCHAR(256), value NUMERIC(12,2))",
			Source:       objectstore.Reference{Scheme: "s3", Bucket: "energy-etl-processed", Prefix: prefix},
			CredentialID: "aws_credentials",
		},
	}
}

// pipelineDefs is StageA, StageB -> Gate -> LoadFact -> {DimX, DimY}
func pipelineDefs(expectedB int) []dag.TaskDefinition {
	return []dag.TaskDefinition{
		stage("stage_a", "staging_a", "a"),
		stage("stage_b", "staging_b", "b"),
		{
			ID:       "gate",
			Kind:     dag.KindQualityCheck,
			Upstream: []string{"stage_a", "stage_b"},
			Config: operators.QualityCheckConfig{Checks: []operators.QualityCheckSpec{
				{Name: "staging_a rows", Query: "SELECT count(*) FROM staging_a", Expected: 2},
				{Name: "staging_b rows", Query: "SELECT count(*) FROM staging_b", Expected: expectedB},
			}},
		},
		{
			ID:       "load_fact",
			Kind:     dag.KindLoadFact,
			Upstream: []string{"gate"},
			Config: operators.LoadFactConfig{
				Table:     "energy_loads",
				CreateSQL: "CREATE TABLE energy_loads (event_date VARCHAR(256), value NUMERIC(12,2))",
				SelectSQL: "SELECT a.event_date, a.value FROM staging_a a JOIN staging_b b ON a.event_date = b.event_date",
			},
		},
		{
			ID:       "dim_x",
			Kind:     dag.KindLoadDimension,
			Upstream: []string{"load_fact"},
			Config:   operators.LoadDimensionConfig{Table: "dim_x", SelectSQL: "SELECT DISTINCT event_date FROM energy_loads"},
		},
		{
			ID:       "dim_y",
			Kind:     dag.KindLoadDimension,
			Upstream: []string{"load_fact"},
			Config:   operators.LoadDimensionConfig{Table: "dim_y", SelectSQL: "SELECT DISTINCT value FROM energy_loads"},
		},
	}
}

func warehouseClients() (*warehousetest.Warehouse, operators.Clients) {
	w := warehousetest.New()
	w.PutObjects("s3://energy-etl-processed/a", "2020-05-27,1", "2020-05-28,2")
	w.PutObjects("s3://energy-etl-processed/b", "2020-05-27,3", "2020-05-28,4")
	return w, operators.Clients{
		Warehouse: w,
		Resolver:  objectstore.BucketResolver{},
		Credentials: credentials.StaticProvider{
			"aws_credentials": {AccessKey: "AKIATEST", SecretKey: "secret"},
		},
	}
}

func TestEndToEnd_AllSucceed(t *testing.T) {
	w, clients := warehouseClients()
	l := ledger.NewMemoryLedger()
	e, err := NewFromDefinitions(pipelineDefs(2), operators.DefaultRegistry(), clients, l, WithConfig(testConfig()))
	require.NoError(t, err)

	res, err := e.Run(context.Background(), Trigger{Pipeline: "euro_energy", RunKey: "2020-05-27T05:00:00Z"})
	require.NoError(t, err)
	require.True(t, res.Success, "run error: %v", res.Error)

	rec, err := l.Load(context.Background(), "euro_energy", "2020-05-27T05:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, runstate.OutcomeSucceeded, rec.Run.Outcome)
	for id, state := range rec.Run.Tasks {
		assert.Equal(t, runstate.StatusSucceeded, state.Status, id)
		assert.Equal(t, 1, state.Attempts, id)
	}

	for _, table := range []string{"staging_a", "staging_b", "energy_loads", "dim_x", "dim_y"} {
		_, ok := w.Table(table)
		assert.True(t, ok, "table %s should exist", table)
	}
	acquired, released := w.Sessions()
	assert.Equal(t, acquired, released)
}

func TestEndToEnd_QualityGateBlocksLoads(t *testing.T) {
	w, clients := warehouseClients()
	l := ledger.NewMemoryLedger()
	e, err := NewFromDefinitions(pipelineDefs(5), operators.DefaultRegistry(), clients, l, WithConfig(testConfig()))
	require.NoError(t, err)

	res, err := e.Run(context.Background(), Trigger{Pipeline: "euro_energy", RunKey: "2020-05-27T05:00:00Z"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	rec, err := l.Load(context.Background(), "euro_energy", "2020-05-27T05:00:00Z")
	require.NoError(t, err)
	tasks := rec.Run.Tasks
	assert.Equal(t, runstate.OutcomeFailed, rec.Run.Outcome)
	assert.Equal(t, runstate.StatusSucceeded, tasks["stage_a"].Status)
	assert.Equal(t, runstate.StatusSucceeded, tasks["stage_b"].Status)

	gate := tasks["gate"]
	assert.Equal(t, runstate.StatusFailed, gate.Status)
	assert.Equal(t, 1, gate.Attempts)
	assert.Equal(t, string(etlerrors.KindQualityAssertionFailed), gate.LastError.Kind)
	require.Len(t, gate.LastError.Failures, 1)
	assert.Contains(t, gate.LastError.Failures[0], "staging_b rows")

	assert.Equal(t, runstate.StatusUpstreamFailed, tasks["load_fact"].Status)
	assert.True(t, tasks["dim_x"].Status.IsSkipped())
	assert.True(t, tasks["dim_y"].Status.IsSkipped())

	for _, q := range w.Statements() {
		assert.False(t, strings.Contains(q, "energy_loads") || strings.Contains(q, "dim_"),
			"downstream statement executed: %s", q)
	}
}

func TestEndToEnd_MissingCredentialFailsStage(t *testing.T) {
	w, clients := warehouseClients()
	clients.Credentials = credentials.StaticProvider{}
	e, err := NewFromDefinitions(pipelineDefs(2), operators.DefaultRegistry(), clients, nil, WithConfig(testConfig()))
	require.NoError(t, err)

	res, err := e.Run(context.Background(), Trigger{Pipeline: "euro_energy", RunKey: "k"})
	require.NoError(t, err)

	for _, id := range []string{"stage_a", "stage_b"} {
		state := res.Run.Tasks[id]
		assert.Equal(t, runstate.StatusFailed, state.Status)
		assert.Equal(t, 1, state.Attempts)
		assert.Equal(t, string(etlerrors.KindCredentialNotFound), state.LastError.Kind)
	}
	assert.Equal(t, runstate.StatusUpstreamFailed, res.Run.Tasks["gate"].Status)
	acquired, _ := w.Sessions()
	assert.Zero(t, acquired)
}
