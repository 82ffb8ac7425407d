// Package operators implements the units of work a pipeline task can run.
// Every operator is safe to invoke again for the same task after a failure.
package operators

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/maxkimambo/energy-etl/internal/credentials"
	"github.com/maxkimambo/energy-etl/internal/dag"
	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
	"github.com/maxkimambo/energy-etl/internal/objectstore"
	"github.com/maxkimambo/energy-etl/internal/warehouse"
)

// Clients are the external collaborators handed to every operator call
type Clients struct {
	Warehouse   warehouse.Client
	Resolver    objectstore.Resolver
	Credentials credentials.Provider
}

// Operator executes one task. Errors returned from Execute carry an
// errors.Kind so the engine can decide on retries without knowing the store.
type Operator interface {
	Execute(ctx context.Context, task dag.TaskDefinition, clients Clients) error
	// Validate checks the task configuration before any run starts
	Validate(task dag.TaskDefinition) error
}

// Registry is the fixed dispatch table from operator kind to implementation
type Registry map[dag.Kind]Operator

// DefaultRegistry returns the built-in operators
func DefaultRegistry() Registry {
	return Registry{
		dag.KindStage:         StageOperator{},
		dag.KindLoadFact:      LoadFactOperator{},
		dag.KindLoadDimension: LoadDimensionOperator{},
		dag.KindQualityCheck:  QualityCheckOperator{},
		dag.KindNoOp:          NoOpOperator{},
	}
}

// Lookup returns the operator for kind
func (r Registry) Lookup(kind dag.Kind) (Operator, error) {
	op, ok := r[kind]
	if !ok {
		return nil, fmt.Errorf("no operator registered for kind %q", kind)
	}
	return op, nil
}

// Validate checks that every task of the graph has a registered operator
// and a configuration that operator accepts.
func (r Registry) Validate(g *dag.Graph) error {
	for _, id := range g.IDs() {
		task, _ := g.Task(id)
		op, err := r.Lookup(task.Kind)
		if err != nil {
			return etlerrors.NewInvalidConfigError(id, err.Error())
		}
		if err := op.Validate(task); err != nil {
			return err
		}
	}
	return nil
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

func validTable(taskID, table string) error {
	if !identifierRe.MatchString(table) {
		return etlerrors.NewInvalidConfigError(taskID, fmt.Sprintf("invalid table name %q", table))
	}
	return nil
}

// Classify translates a store error into a TaskError of the shared kind set
func Classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var te *etlerrors.TaskError
	if errors.As(err, &te) {
		return err
	}

	var we *warehouse.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || warehouse.IsTimeout(err):
		return etlerrors.Wrap(etlerrors.KindTimeout, err, operation)
	case errors.Is(err, context.Canceled):
		return etlerrors.Wrap(etlerrors.KindCancelled, err, operation)
	case warehouse.IsTransient(err):
		return etlerrors.Wrap(etlerrors.KindConnectionTransient, err, operation)
	case errors.As(err, &we):
		e := etlerrors.Wrap(etlerrors.KindDDLOrDML, err, operation)
		if we.Code != "" {
			e.WithContext("sqlstate", we.Code)
		}
		if we.SQL != "" {
			e.WithContext("sql", we.SQL)
		}
		return e
	default:
		return etlerrors.Wrap(etlerrors.KindConnectionTransient, err, operation)
	}
}

// withSession acquires a session for the duration of fn and releases it on every path
func withSession(ctx context.Context, clients Clients, operation string, fn func(warehouse.Session) error) error {
	if clients.Warehouse == nil {
		return etlerrors.New(etlerrors.KindInvalidConfig, "no warehouse client configured", operation)
	}
	session, err := clients.Warehouse.Acquire(ctx)
	if err != nil {
		return Classify(operation, err)
	}
	defer session.Close()
	return Classify(operation, fn(session))
}

func configError(task dag.TaskDefinition, want any) error {
	return etlerrors.NewInvalidConfigError(task.ID,
		fmt.Sprintf("%s task expects %T, got %T", task.Kind, want, task.Config))
}

// NoOpConfig configures a NoOp task
type NoOpConfig struct{}

// NoOpOperator marks pipeline boundaries and does nothing
type NoOpOperator struct{}

// Validate implements Operator
func (NoOpOperator) Validate(task dag.TaskDefinition) error {
	switch task.Config.(type) {
	case nil, NoOpConfig:
		return nil
	default:
		return configError(task, NoOpConfig{})
	}
}

// Execute implements Operator
func (NoOpOperator) Execute(ctx context.Context, _ dag.TaskDefinition, _ Clients) error {
	return Classify("No-op", ctx.Err())
}
