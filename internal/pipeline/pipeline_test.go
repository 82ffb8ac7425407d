package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/operators"
)

func TestLoad_EuroEnergyPipeline(t *testing.T) {
	p, err := Load("../../pipelines/euro_energy.hcl")
	require.NoError(t, err)

	assert.Equal(t, "euro-energy-etl", p.Name)
	assert.Equal(t, "redshift", p.Connection)
	require.NotNil(t, p.Schedule)
	assert.Equal(t, "0 5 * * *", p.Schedule.Expr)
	assert.Equal(t, 3, p.Engine.Retry.MaxRetries)
	assert.Equal(t, time.Minute, p.Engine.Retry.Delay)
	assert.Equal(t, 15*time.Minute, p.Engine.TaskTimeout)
	assert.True(t, p.Engine.DependsOnPast)
	assert.Len(t, p.Tasks, 12)

	g, err := dag.Build(p.Tasks)
	require.NoError(t, err)
	require.NoError(t, operators.DefaultRegistry().Validate(g))

	assert.ElementsMatch(t, []string{"Begin_execution", "load_countries_table"}, g.Roots())
	assert.ElementsMatch(t, []string{
		"stage_energy_loads", "stage_installed_capacity", "stage_generation", "staging_day_ahead_prices",
	}, g.UpstreamOf("stage_quality_checks"))
	assert.Equal(t, []string{"fact_table_size_check"}, g.DownstreamOf("load_energy_loads_table"))

	stage, _ := g.Task("stage_energy_loads")
	cfg, ok := stage.Config.(operators.StageConfig)
	require.True(t, ok)
	assert.Equal(t, "staging_energy_loads", cfg.Table)
	assert.Equal(t, "energy-etl-processed", cfg.Source.Bucket)
	assert.Equal(t, "total_demand", cfg.Source.Prefix)
	assert.Equal(t, "aws_credentials", cfg.CredentialID)

	gate, _ := g.Task("stage_quality_checks")
	checks := gate.Config.(operators.QualityCheckConfig).Checks
	require.Len(t, checks, 4)
	assert.Equal(t, int64(0), checks[0].Expected)

	size, _ := g.Task("fact_table_size_check")
	assert.Equal(t, "true", size.Config.(operators.QualityCheckConfig).Checks[0].Expected)
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse([]byte(`
pipeline "adhoc" {}

task "a" {
  kind = "noop"
}
`), "adhoc.hcl")
	require.NoError(t, err)

	assert.Nil(t, p.Schedule)
	assert.Equal(t, 3, p.Engine.Retry.MaxRetries)
	assert.False(t, p.Engine.DependsOnPast)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, operators.NoOpConfig{}, p.Tasks[0].Config)
}

func TestParse_ExpectedValueTypes(t *testing.T) {
	p, err := Parse([]byte(`
pipeline "checks" {
  retries = 0
}

task "gate" {
  kind = "quality_check"
  check {
    sql      = "SELECT 1"
    expected = 1
  }
  check {
    sql      = "SELECT 0.5"
    expected = 0.5
  }
  check {
    sql      = "SELECT true"
    expected = true
  }
}
`), "checks.hcl")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Engine.Retry.MaxRetries)

	checks := p.Tasks[0].Config.(operators.QualityCheckConfig).Checks
	require.Len(t, checks, 3)
	assert.Equal(t, int64(1), checks[0].Expected)
	assert.Equal(t, 0.5, checks[1].Expected)
	assert.Equal(t, true, checks[2].Expected)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		kind    etlerrors.Kind
		message string
	}{
		{
			name:    "syntax",
			src:     `pipeline "x" {`,
			message: "failed to parse",
		},
		{
			name:    "missing pipeline block",
			src:     `task "a" { kind = "noop" }`,
			message: "failed to decode",
		},
		{
			name:    "no tasks",
			src:     `pipeline "x" {}`,
			message: "declares no tasks",
		},
		{
			name:    "unknown kind",
			src:     "pipeline \"x\" {}\ntask \"a\" { kind = \"spark\" }",
			kind:    etlerrors.KindInvalidConfig,
			message: "spark",
		},
		{
			name:    "bad duration",
			src:     "pipeline \"x\" { retry_delay = \"soon\" }\ntask \"a\" { kind = \"noop\" }",
			message: "invalid retry_delay",
		},
		{
			name:    "bad schedule",
			src:     "pipeline \"x\" { schedule = \"every day\" }\ntask \"a\" { kind = \"noop\" }",
			message: "invalid schedule",
		},
		{
			name:    "negative retries",
			src:     "pipeline \"x\" { retries = -1 }\ntask \"a\" { kind = \"noop\" }",
			message: "max retries",
		},
		{
			name:    "bad source",
			src:     "pipeline \"x\" {}\ntask \"a\" {\n kind = \"stage\"\n source = \"s3://\"\n}",
			kind:    etlerrors.KindInvalidConfig,
			message: "task 'a'",
		},
		{
			name:    "null expected",
			src:     "pipeline \"x\" {}\ntask \"a\" {\n kind = \"quality_check\"\n check {\n  sql = \"SELECT 1\"\n  expected = null\n }\n}",
			kind:    etlerrors.KindInvalidConfig,
			message: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "test.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			if tt.kind != "" {
				assert.True(t, etlerrors.IsKind(err, tt.kind), "got %v", err)
			}
		})
	}
}
