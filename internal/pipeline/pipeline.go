// Package pipeline loads pipeline definitions written in HCL into task
// definitions and engine settings.
package pipeline

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/maxkimambo/energy-etl/internal/dag"
	"github.com/maxkimambo/energy-etl/internal/engine"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/objectstore"
	"github.com/maxkimambo/energy-etl/internal/operators"
)

// Pipeline is a loaded pipeline definition
type Pipeline struct {
	Name        string
	Description string
	// Schedule is nil for pipelines that are only triggered by hand
	Schedule *Schedule
	// Connection is the credential id holding the warehouse DSN
	Connection string
	// BucketOverride replaces the bucket of every stage source when set
	BucketOverride string
	Engine         engine.Config
	Tasks          []dag.TaskDefinition
}

type fileSchema struct {
	Pipeline pipelineBlock `hcl:"pipeline,block"`
	Tasks    []taskBlock   `hcl:"task,block"`
}

type pipelineBlock struct {
	Name             string `hcl:"name,label"`
	Description      string `hcl:"description,optional"`
	Schedule         string `hcl:"schedule,optional"`
	StartDate        string `hcl:"start_date,optional"`
	Retries          *int   `hcl:"retries,optional"`
	RetryDelay       string `hcl:"retry_delay,optional"`
	RetryExponential bool   `hcl:"retry_exponential,optional"`
	MaxRetryDelay    string `hcl:"max_retry_delay,optional"`
	TaskTimeout      string `hcl:"task_timeout,optional"`
	DependsOnPast    bool   `hcl:"depends_on_past,optional"`
	MaxParallel      int    `hcl:"max_parallel,optional"`
	Connection       string `hcl:"connection,optional"`
	BucketOverride   string `hcl:"bucket_override,optional"`
}

type taskBlock struct {
	ID            string       `hcl:"id,label"`
	Kind          string       `hcl:"kind"`
	Upstream      []string     `hcl:"upstream,optional"`
	DependsOnPast bool         `hcl:"depends_on_past,optional"`
	Table         string       `hcl:"table,optional"`
	CreateSQL     string       `hcl:"create_sql,optional"`
	SelectSQL     string       `hcl:"select_sql,optional"`
	Source        string       `hcl:"source,optional"`
	Credentials   string       `hcl:"credentials,optional"`
	Region        string       `hcl:"region,optional"`
	IgnoreHeader  int          `hcl:"ignore_header,optional"`
	Checks        []checkBlock `hcl:"check,block"`
}

type checkBlock struct {
	Name     string    `hcl:"name,optional"`
	SQL      string    `hcl:"sql"`
	Expected cty.Value `hcl:"expected"`
}

// Load parses the pipeline file at path
func Load(path string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse pipeline file %s: %w", path, diags)
	}
	return decode(file, path)
}

// Parse parses a pipeline definition held in memory
func Parse(src []byte, filename string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse pipeline file %s: %w", filename, diags)
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (*Pipeline, error) {
	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode pipeline file %s: %w", filename, diags)
	}

	p, err := schema.Pipeline.toPipeline()
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", schema.Pipeline.Name, err)
	}

	for _, tb := range schema.Tasks {
		def, err := tb.toDefinition()
		if err != nil {
			return nil, err
		}
		p.Tasks = append(p.Tasks, def)
	}
	if len(p.Tasks) == 0 {
		return nil, fmt.Errorf("pipeline %q declares no tasks", p.Name)
	}
	return p, nil
}

func (b pipelineBlock) toPipeline() (*Pipeline, error) {
	p := &Pipeline{
		Name:           b.Name,
		Description:    b.Description,
		Connection:     b.Connection,
		BucketOverride: b.BucketOverride,
		Engine:         engine.DefaultConfig(),
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("pipeline name cannot be empty")
	}

	if b.Schedule != "" {
		var start time.Time
		if b.StartDate != "" {
			t, err := time.Parse(time.RFC3339, b.StartDate)
			if err != nil {
				return nil, fmt.Errorf("invalid start_date: %w", err)
			}
			start = t
		}
		s, err := ParseSchedule(b.Schedule, start)
		if err != nil {
			return nil, err
		}
		p.Schedule = s
	}

	cfg := &p.Engine
	if b.Retries != nil {
		cfg.Retry.MaxRetries = *b.Retries
	}
	if err := setDuration(&cfg.Retry.Delay, "retry_delay", b.RetryDelay); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Retry.MaxDelay, "max_retry_delay", b.MaxRetryDelay); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.TaskTimeout, "task_timeout", b.TaskTimeout); err != nil {
		return nil, err
	}
	cfg.Retry.Exponential = b.RetryExponential
	cfg.DependsOnPast = b.DependsOnPast
	cfg.MaxParallelTasks = b.MaxParallel

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func setDuration(dst *time.Duration, name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	*dst = d
	return nil
}

func (b taskBlock) toDefinition() (dag.TaskDefinition, error) {
	kind, err := dag.ParseKind(b.Kind)
	if err != nil {
		return dag.TaskDefinition{}, etlerrors.NewInvalidConfigError(b.ID, err.Error())
	}
	def := dag.TaskDefinition{
		ID:            b.ID,
		Kind:          kind,
		Upstream:      b.Upstream,
		DependsOnPast: b.DependsOnPast,
	}

	switch kind {
	case dag.KindStage:
		ref, err := objectstore.ParseReference(b.Source)
		if err != nil {
			return def, etlerrors.NewInvalidConfigError(b.ID, err.Error())
		}
		def.Config = operators.StageConfig{
			Table:        b.Table,
			CreateSQL:    b.CreateSQL,
			Source:       ref,
			CredentialID: b.Credentials,
			Region:       b.Region,
			IgnoreHeader: b.IgnoreHeader,
		}
	case dag.KindLoadFact:
		def.Config = operators.LoadFactConfig{
			Table:     b.Table,
			CreateSQL: b.CreateSQL,
			SelectSQL: b.SelectSQL,
		}
	case dag.KindLoadDimension:
		def.Config = operators.LoadDimensionConfig{
			Table:     b.Table,
			SelectSQL: b.SelectSQL,
		}
	case dag.KindQualityCheck:
		cfg := operators.QualityCheckConfig{}
		for i, cb := range b.Checks {
			expected, err := native(cb.Expected)
			if err != nil {
				return def, etlerrors.NewInvalidConfigError(b.ID, fmt.Sprintf("check %d: %v", i+1, err))
			}
			cfg.Checks = append(cfg.Checks, operators.QualityCheckSpec{
				Name:     cb.Name,
				Query:    cb.SQL,
				Expected: expected,
			})
		}
		def.Config = cfg
	case dag.KindNoOp:
		def.Config = operators.NoOpConfig{}
	}
	return def, nil
}

// native converts an HCL literal into the Go value quality checks compare against
func native(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, fmt.Errorf("expected value cannot be null")
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("expected value must be a literal")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	default:
		return nil, fmt.Errorf("expected value must be a string, number or bool, got %s", v.Type().FriendlyName())
	}
}
