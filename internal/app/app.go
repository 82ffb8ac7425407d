package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maxkimambo/energy-etl/internal/credentials"
	"github.com/maxkimambo/energy-etl/internal/dag"
	"github.com/maxkimambo/energy-etl/internal/engine"
	"github.com/maxkimambo/energy-etl/internal/ledger"
	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/objectstore"
	"github.com/maxkimambo/energy-etl/internal/operators"
	"github.com/maxkimambo/energy-etl/internal/pipeline"
	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

// App holds everything a command needs once the flags are resolved
type App struct {
	config      *Config
	pipeline    *pipeline.Pipeline
	credentials credentials.Provider
	ledger      ledger.Ledger
	now         func() time.Time
}

// New loads the pipeline file, the credentials and the ledger named by cfg
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := pipeline.Load(cfg.PipelinePath)
	if err != nil {
		return nil, err
	}
	logger.Op.WithFields(map[string]interface{}{
		"pipeline": p.Name,
		"tasks":    len(p.Tasks),
		"path":     cfg.PipelinePath,
	}).Debug("Pipeline definition loaded")

	provider, err := newProvider(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	l, err := newLedger(cfg.LedgerDir)
	if err != nil {
		return nil, err
	}

	return &App{
		config:      cfg,
		pipeline:    p,
		credentials: provider,
		ledger:      l,
		now:         time.Now,
	}, nil
}

// Environment variables take precedence over the credentials file
func newProvider(path string) (credentials.Provider, error) {
	chain := credentials.Chain{credentials.EnvProvider{}}
	if path == "" {
		return chain, nil
	}
	fp, err := credentials.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return append(chain, fp), nil
}

func newLedger(dir string) (ledger.Ledger, error) {
	if dir == "" {
		return ledger.NewMemoryLedger(), nil
	}
	return ledger.NewFileLedger(dir)
}

// Pipeline returns the loaded pipeline definition
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Ledger returns the run ledger
func (a *App) Ledger() ledger.Ledger {
	return a.ledger
}

// Graph builds the pipeline's task graph
func (a *App) Graph() (*dag.Graph, error) {
	return dag.Build(a.pipeline.Tasks)
}

// EngineConfig returns the pipeline's engine settings with flag overrides applied
func (a *App) EngineConfig() engine.Config {
	cfg := a.pipeline.Engine
	if a.config.MaxParallel > 0 {
		cfg.MaxParallelTasks = a.config.MaxParallel
	}
	return cfg
}

// Trigger resolves the run key to execute. An explicit key wins; otherwise a
// scheduled pipeline runs its latest fire time and an unscheduled one runs now.
func (a *App) Trigger() (engine.Trigger, error) {
	trig := engine.Trigger{Pipeline: a.pipeline.Name}
	sched := a.pipeline.Schedule

	switch {
	case a.config.RunKey != "":
		at, err := pipeline.ParseRunKey(a.config.RunKey)
		if err != nil {
			return trig, err
		}
		trig.RunKey = pipeline.RunKey(at)
		if sched != nil {
			_, trig.PreviousRunKey = sched.Keys(at)
		}
	case sched != nil:
		at, ok := sched.Latest(a.now())
		if !ok {
			return trig, fmt.Errorf("pipeline %s has no scheduled run before %s", a.pipeline.Name, pipeline.RunKey(a.now()))
		}
		trig.RunKey, trig.PreviousRunKey = sched.Keys(at)
	default:
		trig.RunKey = pipeline.RunKey(a.now().Truncate(time.Second))
	}
	return trig, nil
}

// OpenWarehouse connects to the warehouse named by the pipeline's connection
// credential and checks it is reachable.
func (a *App) OpenWarehouse(ctx context.Context) (*warehouse.SQLClient, error) {
	if a.pipeline.Connection == "" {
		return nil, errors.New("pipeline has no warehouse connection configured")
	}
	cred, err := a.credentials.Resolve(ctx, a.pipeline.Connection)
	if err != nil {
		return nil, err
	}
	if cred.DSN == "" {
		return nil, fmt.Errorf("credential %s has no dsn", a.pipeline.Connection)
	}

	client, err := warehouse.Open(cred.DSN, warehouse.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// StoredRun reports whether the ledger already holds a run for trig
func (a *App) StoredRun(ctx context.Context, trig engine.Trigger) (bool, error) {
	_, err := a.ledger.Load(ctx, trig.Pipeline, trig.RunKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ledger.ErrRunNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Run executes the pipeline once for trig against client. Metrics are
// registered on reg when it is not nil.
func (a *App) Run(ctx context.Context, trig engine.Trigger, client warehouse.Client, reg prometheus.Registerer) (*engine.ExecutionResult, error) {
	bucket := a.pipeline.BucketOverride
	if a.config.BucketOverride != "" {
		bucket = a.config.BucketOverride
	}
	clients := operators.Clients{
		Warehouse:   client,
		Resolver:    objectstore.BucketResolver{BucketOverride: bucket},
		Credentials: a.credentials,
	}

	opts := []engine.Option{engine.WithConfig(a.EngineConfig())}
	if reg != nil {
		m, err := engine.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithMetrics(m))
	}

	eng, err := engine.NewFromDefinitions(a.pipeline.Tasks, operators.DefaultRegistry(), clients, a.ledger, opts...)
	if err != nil {
		return nil, err
	}

	result, err := eng.Run(ctx, trig)
	if err != nil {
		return nil, err
	}

	if a.config.DotOut != "" {
		viz := dag.NewVisualization(eng.Graph(), result.Run)
		if err := viz.Export(a.config.DotOut); err != nil {
			logger.User.Warnf("Failed to write graph to %s: %v", a.config.DotOut, err)
		} else {
			logger.User.Infof("Run graph written to %s", a.config.DotOut)
		}
	}
	return result, nil
}
